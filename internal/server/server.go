// Package server provides the HTTP surface of the hook daemon.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"yqhp/hookd/internal/audit"
	"yqhp/hookd/internal/logger"
	"yqhp/hookd/internal/model"
)

// Engine is the hook engine as seen by the transport.
type Engine interface {
	Start(ctx context.Context, name string, create *model.CreateConfig, req model.Request) (uuid.UUID, error)
	Status(ctx context.Context, id uuid.UUID) (*model.Info, error)
	ReadLog(ctx context.Context, stream model.Stream, id uuid.UUID, rng *model.ByteRange) (model.LogChunk, error)
	Hook(name string) (model.Hook, bool)
}

// InstanceLister lists recently launched instances of a hook.
type InstanceLister interface {
	Recent(ctx context.Context, hookName string, limit int) ([]audit.Entry, error)
}

// Metrics is the metrics sink of the transport.
type Metrics interface {
	LogBytesServed(stream model.Stream, n int)
	Handler() http.Handler
}

// Server represents the HTTP server.
type Server struct {
	app     *fiber.App
	engine  Engine
	lister  InstanceLister
	metrics Metrics
	config  *Config
	log     *zap.Logger
}

// Config holds the configuration for the HTTP server.
type Config struct {
	// Address is the address to listen on (e.g., "127.0.0.1:8000").
	Address string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration

	// BodyLimit is the maximum accepted request body size in bytes.
	BodyLimit int

	// EnableCORS enables Cross-Origin Resource Sharing.
	EnableCORS bool

	// MetricsPath is where the Prometheus exposition is served.
	MetricsPath string
}

// DefaultConfig returns a default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      "127.0.0.1:8000",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    1024 * 1024,
		MetricsPath:  "/metrics",
	}
}

// Option configures optional collaborators of a Server.
type Option func(*Server)

// WithInstanceLister enables GET /hook/:name/instances.
func WithInstanceLister(l InstanceLister) Option {
	return func(s *Server) {
		s.lister = l
	}
}

// WithMetrics enables the metrics endpoint and log byte accounting.
func WithMetrics(m Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the logger for access and error logs.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// NewServer creates a new HTTP server.
func NewServer(engine Engine, config *Config, opts ...Option) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	server := &Server{
		engine: engine,
		config: config,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(server)
	}
	server.log = server.log.Named("server")

	server.app = fiber.New(fiber.Config{
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		BodyLimit:             config.BodyLimit,
		ErrorHandler:          server.errorHandler,
		AppName:               "hookd",
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.ConfigStd.Unmarshal,
	})

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.app.Use(requestid.New())

	// panics are recovered inside the access log
	s.app.Use(logger.Middleware(s.log))

	s.app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			s.log.Error("handler panic", zap.Any("panic", e), zap.String("path", c.Path()), zap.Stack("stack"))
		},
	}))

	if s.config.EnableCORS {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins:     "*",
			AllowMethods:     "GET,POST,OPTIONS",
			AllowHeaders:     "Origin,Content-Type,Accept,Range",
			ExposeHeaders:    "Content-Length,Content-Range,Accept-Ranges",
			AllowCredentials: false,
			MaxAge:           86400,
		}))
	}
}

// setupRoutes configures the routes for the server.
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.health)

	s.app.Post("/hook/:name", s.startHook)
	s.app.Get("/hook/:name/instances", s.listInstances)

	s.app.Get("/status/:id", s.getStatus)
	s.app.Get("/status/:id/:stream", s.getLog)

	if s.metrics != nil && s.config.MetricsPath != "" {
		handler := fasthttpadaptor.NewFastHTTPHandler(s.metrics.Handler())
		s.app.Get(s.config.MetricsPath, func(c *fiber.Ctx) error {
			handler(c.Context())
			return nil
		})
	}
}

// Start starts the server and blocks until it stops.
func (s *Server) Start() error {
	return s.app.Listen(s.config.Address)
}

// ShutdownWithTimeout gracefully shuts down the server with a timeout.
func (s *Server) ShutdownWithTimeout(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// errorHandler handles errors returned by handlers and the router.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return Fail(c, fe.Code, fe.Message)
	}
	s.log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
	return ServerError(c)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/hookd/internal/audit"
	"yqhp/hookd/internal/config"
	"yqhp/hookd/internal/hook"
	"yqhp/hookd/internal/logger"
	"yqhp/hookd/internal/metrics"
	"yqhp/hookd/internal/notify"
	"yqhp/hookd/internal/server"
	"yqhp/hookd/internal/shard"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP daemon",
	Long: `Start the HTTP daemon and serve the configured hooks.

On SIGINT or SIGTERM the listener is closed first, then hookd waits up to
server.shutdown_timeout for running hooks to finish. Hooks still running
after that are left alone.`,
	Example: `  # Serve with the default config file
  hookd serve

  # Serve on another address with a custom data directory
  hookd serve --config ./hookd.yaml --set server.address=0.0.0.0:9000 --set data_dir=/var/lib/hookd`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(logConfig(cfg))
	log := logger.L()
	defer logger.Sync()

	d, err := newDaemon(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	if !quiet {
		fmt.Printf(Banner, Version)
		fmt.Println()
		fmt.Printf("  Listening on %s\n", cfg.Server.Address)
		fmt.Printf("  Data directory: %s\n", cfg.DataDir)
		fmt.Printf("  Hooks: %d\n", len(cfg.Hooks))
		fmt.Println()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.server.Start()
	}()
	log.Info("hookd started",
		zap.String("address", cfg.Server.Address),
		zap.String("data_dir", cfg.DataDir),
		zap.Strings("hooks", cfg.HookNames()),
	)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Server.Address, err)
		}
	}

	return d.Shutdown()
}

// daemon is the wired set of long-lived components.
type daemon struct {
	cfg      *config.Config
	log      *zap.Logger
	service  *hook.Service
	server   *server.Server
	metrics  *metrics.Collector
	audit    *audit.Store
	notifier *notify.Publisher
}

func newDaemon(ctx context.Context, cfg *config.Config, log *zap.Logger) (*daemon, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	d := &daemon{cfg: cfg, log: log}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	var hookOpts []hook.Option
	var serverOpts []server.Option

	if cfg.Metrics.Enabled {
		d.metrics = metrics.NewCollector(cfg.Metrics.Namespace)
		hookOpts = append(hookOpts, hook.WithObserver(d.metrics))
		serverOpts = append(serverOpts, server.WithMetrics(d.metrics))
	}

	if cfg.Audit.Enabled {
		store, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		d.audit = store
		hookOpts = append(hookOpts, hook.WithObserver(store))
		serverOpts = append(serverOpts, server.WithInstanceLister(store))
	}

	if cfg.Redis.Enabled {
		pub, err := notify.New(ctx, notify.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		}, log)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.notifier = pub
		hookOpts = append(hookOpts, hook.WithObserver(pub))
	}

	d.service = hook.NewService(cfg.Hooks, shard.New(cfg.DataDir), log, hookOpts...)

	serverOpts = append(serverOpts, server.WithLogger(log))
	d.server = server.NewServer(d.service, &server.Config{
		Address:      cfg.Server.Address,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BodyLimit:    cfg.Server.BodyLimit,
		EnableCORS:   cfg.Server.EnableCORS,
		MetricsPath:  cfg.Metrics.Path,
	}, serverOpts...)

	return d, nil
}

// Shutdown stops accepting requests and waits for running hooks, both
// bounded by server.shutdown_timeout.
func (d *daemon) Shutdown() error {
	timeout := d.cfg.Server.ShutdownTimeout
	if err := d.server.ShutdownWithTimeout(timeout); err != nil {
		d.log.Warn("server shutdown", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := d.service.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			d.log.Warn("hooks still running at shutdown", zap.Duration("timeout", timeout))
			return nil
		}
		return err
	}
	d.log.Info("hookd stopped")
	return nil
}

// Close releases the audit database and the Redis client.
func (d *daemon) Close() {
	if d.audit != nil {
		if err := d.audit.Close(); err != nil {
			d.log.Warn("close audit database", zap.Error(err))
		}
	}
	if d.notifier != nil {
		if err := d.notifier.Close(); err != nil {
			d.log.Warn("close redis client", zap.Error(err))
		}
	}
}

func logConfig(cfg *config.Config) *logger.Config {
	return &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}
}

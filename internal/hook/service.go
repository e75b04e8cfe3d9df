// Package hook launches configured commands, supervises them until they exit
// and serves their status records and captured output.
package hook

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yqhp/hookd/internal/model"
	"yqhp/hookd/internal/shard"
	"yqhp/hookd/internal/utils"
)

// AuxDirEnv names the variable that points a child at its scratch directory.
const AuxDirEnv = "HOOKD_AUX_DIR"

// Service is the hook engine. It is safe for concurrent use.
type Service struct {
	hooks     map[string]model.Hook
	sharder   *shard.Sharder
	log       *zap.Logger
	observers []Observer
	now       func() time.Time

	running sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithObserver registers an Observer. Observers are called in registration order.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service for the given hook table. The table is copied.
func NewService(hooks map[string]model.Hook, sharder *shard.Sharder, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	table := make(map[string]model.Hook, len(hooks))
	for name, h := range hooks {
		table[name] = h
	}
	s := &Service{
		hooks:   table,
		sharder: sharder,
		log:     log.Named("hook"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hook returns the definition registered under name.
func (s *Service) Hook(name string) (model.Hook, bool) {
	h, ok := s.hooks[name]
	return h, ok
}

// HookNames returns the configured hook names in ascending order.
func (s *Service) HookNames() []string {
	return utils.SortedKeys(s.hooks)
}

// Start launches hook name and returns the id of the new instance without
// waiting for the process. The initial record is on disk before the process
// is spawned.
func (s *Service) Start(ctx context.Context, name string, create *model.CreateConfig, req model.Request) (uuid.UUID, error) {
	id, err := s.start(ctx, name, create, req)
	if err != nil {
		code := CodeOf(err)
		if code == ErrCodeInternal {
			s.log.Error("launch failed", zap.String("hook", name), zap.Error(err))
		}
		s.notify(func(o Observer) error { return o.LaunchFailed(ctx, name, code) })
		return uuid.Nil, err
	}
	return id, nil
}

func (s *Service) start(ctx context.Context, name string, create *model.CreateConfig, req model.Request) (uuid.UUID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, NewInternalError("generate instance id", err)
	}

	paths := s.sharder.Paths(id)
	if err := paths.Create(); err != nil {
		return uuid.Nil, NewInternalError("create instance directory", err)
	}

	def, ok := s.hooks[name]
	if !ok {
		// nothing was written besides the empty subtree
		_ = os.RemoveAll(paths.Dir)
		return uuid.Nil, NewNotFoundError(fmt.Sprintf("hook %q is not configured", name))
	}

	if create == nil {
		create = &model.CreateConfig{}
	}
	create.Filter(def.AllowedKeys)

	info := &model.Info{
		Request: req,
		Config:  def,
		Vars:    create.Vars,
		Running: true,
		Started: s.now().UTC(),
	}
	if err := writeRecord(paths.Info(), info); err != nil {
		return uuid.Nil, NewInternalError("persist initial record", err)
	}

	aux, err := filepath.Abs(paths.Aux())
	if err != nil {
		return uuid.Nil, NewInternalError("resolve aux directory", err)
	}

	cmd := exec.Command(def.Command, def.Args...)
	cmd.Dir = def.WorkDir
	cmd.Env = buildEnv(create.Vars, aux)

	proc, err := spawn(cmd)
	if err != nil {
		// the record stays running=true; there is no process to finalize it
		return uuid.Nil, NewInternalError(fmt.Sprintf("spawn %s", def.Command), err)
	}

	s.log.Info("instance started",
		zap.String("hook", name),
		zap.String("id", id.String()),
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("vars", len(create.Vars)),
	)

	// observers see the start before the supervisor can report the finish
	s.notify(func(o Observer) error { return o.InstanceStarted(ctx, id, name, info) })

	s.running.Add(1)
	sup := &supervisor{
		service:  s,
		id:       id,
		hookName: name,
		paths:    paths,
		proc:     proc,
		timeout:  def.Timeout.Std(),
		log:      s.log.With(zap.String("hook", name), zap.String("id", id.String())),
	}
	utils.SafeGo(sup.log, "supervisor", sup.run)

	return id, nil
}

// Wait blocks until every instance started by s has been finalized, or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) notify(fn func(Observer) error) {
	for _, o := range s.observers {
		if err := fn(o); err != nil {
			s.log.Warn("observer failed", zap.String("observer", fmt.Sprintf("%T", o)), zap.Error(err))
		}
	}
}

// buildEnv extends the daemon environment with the filtered vars, in key
// order, and the aux directory.
func buildEnv(vars map[string]string, auxDir string) []string {
	env := os.Environ()
	for _, k := range utils.SortedKeys(vars) {
		env = append(env, fmt.Sprintf("%s=%s", k, vars[k]))
	}
	return append(env, fmt.Sprintf("%s=%s", AuxDirEnv, auxDir))
}

package hook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yqhp/hookd/internal/model"
	"yqhp/hookd/internal/shard"
	"yqhp/hookd/internal/utils"
)

// process is a started child together with the read ends of its output pipes.
type process struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
}

// spawn starts cmd with stdout and stderr connected to fresh pipes. The write
// ends are closed in the parent once the child holds them, so the read ends
// report EOF when the child exits.
func spawn(cmd *exec.Cmd) (*process, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	cmd.Stdout = outW
	cmd.Stderr = errW
	startErr := cmd.Start()
	outW.Close()
	errW.Close()
	if startErr != nil {
		outR.Close()
		errR.Close()
		return nil, startErr
	}
	return &process{cmd: cmd, stdout: outR, stderr: errR}, nil
}

// exitState is how a process ended.
type exitState struct {
	success  bool
	timedOut bool
	err      error
}

type supervisor struct {
	service  *Service
	id       uuid.UUID
	hookName string
	paths    shard.Paths
	proc     *process
	timeout  time.Duration
	log      *zap.Logger
}

// run drains both streams, waits for exit and finalizes the record.
func (s *supervisor) run() {
	defer s.service.running.Done()

	var drains sync.WaitGroup
	drains.Add(2)
	for _, d := range []struct {
		stream model.Stream
		r      *os.File
	}{{model.Stdout, s.proc.stdout}, {model.Stderr, s.proc.stderr}} {
		stream, r := d.stream, d.r
		utils.SafeGo(s.log, "drain-"+string(stream), func() {
			defer drains.Done()
			n, err := drain(s.paths.Log(stream), r)
			if err != nil {
				s.log.Error("drain failed", zap.String("stream", string(stream)), zap.Error(err))
				return
			}
			s.log.Debug("stream drained", zap.String("stream", string(stream)), zap.Int64("bytes", n))
		})
	}

	state := s.wait()
	drains.Wait()

	if state.timedOut {
		s.log.Warn("instance timed out", zap.Duration("timeout", s.timeout))
	} else if state.err != nil {
		s.log.Info("instance failed", zap.Error(state.err))
	}

	info, err := s.service.finalize(s.paths, state)
	if err != nil {
		// no retry; the record stays running=true
		s.log.Error("finalize failed", zap.Error(err))
		return
	}

	s.log.Info("instance finished",
		zap.Bool("success", state.success),
		zap.Bool("timed_out", state.timedOut),
		zap.Duration("duration", info.Duration()),
	)
	s.service.notify(func(o Observer) error {
		return o.InstanceFinished(context.Background(), s.id, s.hookName, info)
	})
}

// wait reaps the child, killing it first if the timeout elapses.
func (s *supervisor) wait() exitState {
	exited := make(chan error, 1)
	utils.SafeGo(s.log, "wait", func() {
		exited <- s.proc.cmd.Wait()
	})

	var deadline <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case err := <-exited:
		return exitState{success: err == nil, err: err}
	case <-deadline:
		if err := s.proc.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.log.Error("kill failed", zap.Error(err))
		}
		err := <-exited
		return exitState{success: false, timedOut: true, err: err}
	}
}

// drain copies r into a new file at path until EOF. If the file cannot be
// created the stream is still consumed so the child never blocks on a full pipe.
func drain(path string, r *os.File) (int64, error) {
	defer r.Close()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		_, _ = io.Copy(io.Discard, r)
		return 0, fmt.Errorf("create log file: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("copy stream: %w", err)
	}
	return n, nil
}

// finalize moves the stored record into its terminal state.
func (s *Service) finalize(paths shard.Paths, state exitState) (*model.Info, error) {
	info, err := readRecord(paths.Info())
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	info.Finish(state.success, state.timedOut, s.now().UTC())
	if err := writeRecord(paths.Info(), info); err != nil {
		return nil, err
	}
	return info, nil
}

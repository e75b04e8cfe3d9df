package hook

import (
	"context"

	"github.com/google/uuid"

	"yqhp/hookd/internal/model"
)

// Observer receives instance lifecycle events. Errors are logged by the
// Service and never change the outcome of the operation that emitted them.
type Observer interface {
	// InstanceStarted is called after the child process has been spawned.
	InstanceStarted(ctx context.Context, id uuid.UUID, hookName string, info *model.Info) error
	// LaunchFailed is called when Start returns an error.
	LaunchFailed(ctx context.Context, hookName string, code ErrorCode) error
	// InstanceFinished is called after the terminal record has been written.
	InstanceFinished(ctx context.Context, id uuid.UUID, hookName string, info *model.Info) error
}

// NopObserver implements Observer with no-ops. Embed it to handle a subset of events.
type NopObserver struct{}

func (NopObserver) InstanceStarted(context.Context, uuid.UUID, string, *model.Info) error {
	return nil
}

func (NopObserver) LaunchFailed(context.Context, string, ErrorCode) error {
	return nil
}

func (NopObserver) InstanceFinished(context.Context, uuid.UUID, string, *model.Info) error {
	return nil
}

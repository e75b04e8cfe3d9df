package hook

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/google/uuid"

	"yqhp/hookd/internal/model"
)

// Status returns the current status record of instance id.
func (s *Service) Status(_ context.Context, id uuid.UUID) (*model.Info, error) {
	paths := s.sharder.Paths(id)
	if !paths.Exists() {
		return nil, NewNotFoundError(fmt.Sprintf("instance %s not found", id))
	}
	info, err := readRecord(paths.Info())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewNotFoundError(fmt.Sprintf("instance %s has no record", id))
		}
		return nil, NewInternalError("read status record", err)
	}
	return info, nil
}

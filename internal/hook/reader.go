package hook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/google/uuid"

	"yqhp/hookd/internal/model"
)

// ReadLog returns the captured output of stream for instance id.
//
// Without a range the whole current file is returned untouched. With a range
// the span is resolved against the size observed now, read, and cut back to
// just after its last newline so a partially written multi-byte character is
// never returned. The chunk's Range reports the bytes actually delivered.
func (s *Service) ReadLog(_ context.Context, stream model.Stream, id uuid.UUID, rng *model.ByteRange) (model.LogChunk, error) {
	paths := s.sharder.Paths(id)
	if !paths.Exists() {
		return model.LogChunk{}, NewNotFoundError(fmt.Sprintf("instance %s not found", id))
	}

	f, err := os.Open(paths.Log(stream))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.LogChunk{}, NewNotFoundError(fmt.Sprintf("%s of instance %s not found", stream, id))
		}
		return model.LogChunk{}, NewInternalError("open log", err)
	}
	defer f.Close()

	if rng == nil {
		data, err := io.ReadAll(f)
		if err != nil {
			return model.LogChunk{}, NewInternalError("read log", err)
		}
		return model.LogChunk{Content: string(data), Size: int64(len(data))}, nil
	}

	st, err := f.Stat()
	if err != nil {
		return model.LogChunk{}, NewInternalError("stat log", err)
	}
	size := st.Size()

	span, err := ResolveRange(*rng, size)
	if err != nil {
		return model.LogChunk{}, err
	}

	buf := make([]byte, span.Len())
	n, err := f.ReadAt(buf, span.Start)
	if err != nil && !errors.Is(err, io.EOF) {
		return model.LogChunk{}, NewInternalError("read log range", err)
	}
	content := TrimToLastNewline(buf[:n])

	return model.LogChunk{
		Content: string(content),
		Range:   &model.Span{Start: span.Start, End: span.Start + int64(len(content))},
		Size:    size,
	}, nil
}

// ResolveRange turns a requested range into a concrete span of a file of the
// given size.
func ResolveRange(r model.ByteRange, size int64) (model.Span, error) {
	switch r.Kind {
	case model.RangeBounded:
		if r.Start < 0 || r.Start >= r.End {
			return model.Span{}, NewInvalidRangeError(fmt.Sprintf("invalid range %s", r))
		}
		if r.Start >= size {
			return model.Span{}, NewRangeNotSatisfiableError(r.Start, size)
		}
		return model.Span{Start: r.Start, End: min(r.End, size)}, nil

	case model.RangeFrom:
		if r.Start < 0 {
			return model.Span{}, NewInvalidRangeError(fmt.Sprintf("invalid range %s", r))
		}
		if r.Start >= size {
			return model.Span{}, NewRangeNotSatisfiableError(r.Start, size)
		}
		return model.Span{Start: r.Start, End: size}, nil

	case model.RangeSuffix:
		if r.Length <= 0 {
			return model.Span{}, NewInvalidRangeError(fmt.Sprintf("invalid range %s", r))
		}
		n := min(r.Length, size)
		return model.Span{Start: size - n, End: size}, nil
	}
	return model.Span{}, NewInvalidRangeError(fmt.Sprintf("unknown range kind %d", r.Kind))
}

// TrimToLastNewline returns b up to and including its last '\n', or nothing
// when b has none.
func TrimToLastNewline(b []byte) []byte {
	i := bytes.LastIndexByte(b, '\n')
	if i < 0 {
		return b[:0]
	}
	return b[:i+1]
}

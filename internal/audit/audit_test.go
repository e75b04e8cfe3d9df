package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/hookd/internal/model"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "audit.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func runningInfo(started time.Time) *model.Info {
	peer := "10.0.0.1:4000"
	return &model.Info{
		Request: model.Request{URI: "/hook/deploy", Method: "POST", Version: "HTTP/1.1", PeerAddr: &peer},
		Running: true,
		Started: started,
	}
}

func TestDBInitIsIdempotent(t *testing.T) {
	db := sqlx.MustConnect("sqlite3", filepath.Join(t.TempDir(), "a.db"))
	defer db.Close()

	require.NoError(t, DBInit(db))
	require.NoError(t, DBInit(db))
}

func TestStartedThenFinished(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := uuid.New()
	started := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	info := runningInfo(started)

	require.NoError(t, s.InstanceStarted(ctx, id, "deploy", info))

	entries, err := s.Recent(ctx, "deploy", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id.String(), entries[0].ID)
	assert.True(t, entries[0].Running)
	assert.Nil(t, entries[0].Success)
	assert.True(t, entries[0].Started.Equal(started))
	require.NotNil(t, entries[0].PeerAddr)
	assert.Equal(t, "10.0.0.1:4000", *entries[0].PeerAddr)

	info.Finish(false, true, started.Add(time.Minute))
	require.NoError(t, s.InstanceFinished(ctx, id, "deploy", info))

	entries, err = s.Recent(ctx, "deploy", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Running)
	require.NotNil(t, entries[0].Success)
	assert.False(t, *entries[0].Success)
	require.NotNil(t, entries[0].TimedOut)
	assert.True(t, *entries[0].TimedOut)
	require.NotNil(t, entries[0].Finished)
	assert.True(t, entries[0].Finished.Equal(started.Add(time.Minute)))
}

func TestFinishedWithoutStart(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	info := runningInfo(time.Now())
	info.Finish(true, false, time.Now())

	require.NoError(t, s.InstanceFinished(ctx, uuid.New(), "deploy", info))

	entries, err := s.Recent(ctx, "deploy", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecentOrderingAndFilter(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		id := uuid.New()
		ids = append(ids, id)
		require.NoError(t, s.InstanceStarted(ctx, id, "deploy", runningInfo(base.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, s.InstanceStarted(ctx, uuid.New(), "other", runningInfo(base)))

	entries, err := s.Recent(ctx, "deploy", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ids[4].String(), entries[0].ID)
	assert.Equal(t, ids[3].String(), entries[1].ID)
	assert.Equal(t, ids[2].String(), entries[2].ID)

	none, err := s.Recent(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, DefaultLimit, ClampLimit(-3))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxLimit, ClampLimit(10000))
}

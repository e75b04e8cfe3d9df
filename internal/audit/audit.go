// Package audit keeps a queryable sqlite index of launched instances. The
// status records on disk remain authoritative.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"yqhp/hookd/internal/hook"
	"yqhp/hookd/internal/model"
)

const (
	// DefaultLimit is the page size of Recent when none is requested.
	DefaultLimit = 20
	// MaxLimit caps the page size of Recent.
	MaxLimit = 500
)

// Entry is one indexed instance.
type Entry struct {
	ID       string     `json:"id"`
	Hook     string     `json:"hook"`
	Method   string     `json:"method"`
	URI      string     `json:"uri"`
	PeerAddr *string    `json:"peer_addr,omitempty"`
	Running  bool       `json:"running"`
	Started  time.Time  `json:"started"`
	Finished *time.Time `json:"finished,omitempty"`
	Success  *bool      `json:"success,omitempty"`
	TimedOut *bool      `json:"timed_out,omitempty"`
}

// row is the table layout. Times are unix nanoseconds.
type row struct {
	ID       string         `db:"id"`
	Hook     string         `db:"hook"`
	Method   string         `db:"method"`
	URI      string         `db:"uri"`
	PeerAddr sql.NullString `db:"peer_addr"`
	Started  int64          `db:"started"`
	Finished sql.NullInt64  `db:"finished"`
	Success  sql.NullBool   `db:"success"`
	TimedOut sql.NullBool   `db:"timed_out"`
}

func (r row) entry() Entry {
	e := Entry{
		ID:      r.ID,
		Hook:    r.Hook,
		Method:  r.Method,
		URI:     r.URI,
		Running: !r.Finished.Valid,
		Started: time.Unix(0, r.Started).UTC(),
	}
	if r.PeerAddr.Valid {
		e.PeerAddr = &r.PeerAddr.String
	}
	if r.Finished.Valid {
		f := time.Unix(0, r.Finished.Int64).UTC()
		e.Finished = &f
	}
	if r.Success.Valid {
		e.Success = &r.Success.Bool
	}
	if r.TimedOut.Valid {
		e.TimedOut = &r.TimedOut.Bool
	}
	return e
}

func newRow(id uuid.UUID, hookName string, info *model.Info) row {
	r := row{
		ID:      id.String(),
		Hook:    hookName,
		Method:  info.Request.Method,
		URI:     info.Request.URI,
		Started: info.Started.UnixNano(),
	}
	if info.Request.PeerAddr != nil {
		r.PeerAddr = sql.NullString{String: *info.Request.PeerAddr, Valid: true}
	}
	if info.Finished != nil {
		r.Finished = sql.NullInt64{Int64: info.Finished.UnixNano(), Valid: true}
	}
	if info.Success != nil {
		r.Success = sql.NullBool{Bool: *info.Success, Valid: true}
	}
	if info.TimedOut != nil {
		r.TimedOut = sql.NullBool{Bool: *info.TimedOut, Valid: true}
	}
	return r
}

// Store is the instance index. It implements hook.Observer.
type Store struct {
	hook.NopObserver

	db *sqlx.DB
}

var _ hook.Observer = (*Store)(nil)

// Open opens (creating if needed) the sqlite database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit database %s: %w", path, err)
	}
	// sqlite allows one writer
	db.SetMaxOpenConns(1)

	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an open database and creates the schema.
func NewStore(db *sqlx.DB) (*Store, error) {
	if err := DBInit(db); err != nil {
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DBInit initializes the instances table.
func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS instances (
		id TEXT PRIMARY KEY,
		hook TEXT NOT NULL,
		method TEXT NOT NULL,
		uri TEXT NOT NULL,
		peer_addr TEXT,
		started INTEGER NOT NULL,
		finished INTEGER,
		success INTEGER,
		timed_out INTEGER
	)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_instances_hook ON instances(hook)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_instances_started ON instances(started)`)
	return err
}

const upsertSQL = `
	INSERT INTO instances (id, hook, method, uri, peer_addr, started, finished, success, timed_out)
	VALUES (:id, :hook, :method, :uri, :peer_addr, :started, :finished, :success, :timed_out)
	ON CONFLICT(id) DO UPDATE SET
		finished = excluded.finished,
		success = excluded.success,
		timed_out = excluded.timed_out`

// InstanceStarted implements hook.Observer.
func (s *Store) InstanceStarted(ctx context.Context, id uuid.UUID, hookName string, info *model.Info) error {
	return s.upsert(ctx, newRow(id, hookName, info))
}

// InstanceFinished implements hook.Observer.
func (s *Store) InstanceFinished(ctx context.Context, id uuid.UUID, hookName string, info *model.Info) error {
	return s.upsert(ctx, newRow(id, hookName, info))
}

func (s *Store) upsert(ctx context.Context, r row) error {
	if _, err := s.db.NamedExecContext(ctx, upsertSQL, r); err != nil {
		return fmt.Errorf("index instance %s: %w", r.ID, err)
	}
	return nil
}

// Recent lists the newest instances of hookName, newest first. limit is
// clamped to [1, MaxLimit]; zero or less means DefaultLimit.
func (s *Store) Recent(ctx context.Context, hookName string, limit int) ([]Entry, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, hook, method, uri, peer_addr, started, finished, success, timed_out
		FROM instances
		WHERE hook = ?
		ORDER BY started DESC
		LIMIT ?`,
		hookName, ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list instances of %s: %w", hookName, err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}

// ClampLimit applies DefaultLimit and MaxLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

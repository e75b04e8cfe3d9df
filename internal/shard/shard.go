// Package shard maps instance ids to their storage subtree.
package shard

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"yqhp/hookd/internal/model"
)

const (
	infoFile = "info.json"
	logDir   = "log"
	auxDir   = "aux"
)

// Sharder resolves instance paths under a data directory.
type Sharder struct {
	root string
}

// New returns a Sharder rooted at dataDir.
func New(dataDir string) *Sharder {
	return &Sharder{root: dataDir}
}

// Paths returns the storage layout of id: {root}/ab/cd/ef/01/{remaining 24 hex}.
func (s *Sharder) Paths(id uuid.UUID) Paths {
	h := hex.EncodeToString(id[:])
	return Paths{
		Dir: filepath.Join(s.root, h[0:2], h[2:4], h[4:6], h[6:8], h[8:]),
	}
}

// Paths is the on-disk layout of one instance.
type Paths struct {
	Dir string
}

// Info is the status record file.
func (p Paths) Info() string {
	return filepath.Join(p.Dir, infoFile)
}

// LogDir holds the captured stream files.
func (p Paths) LogDir() string {
	return filepath.Join(p.Dir, logDir)
}

// Log is the file capturing stream.
func (p Paths) Log(stream model.Stream) string {
	return filepath.Join(p.Dir, logDir, stream.FileName())
}

// Aux is the scratch directory handed to the child process.
func (p Paths) Aux() string {
	return filepath.Join(p.Dir, auxDir)
}

// Create makes the leaf with its log and aux directories.
func (p Paths) Create() error {
	for _, dir := range []string{p.LogDir(), p.Aux()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether the leaf directory is present.
func (p Paths) Exists() bool {
	st, err := os.Stat(p.Dir)
	return err == nil && st.IsDir()
}

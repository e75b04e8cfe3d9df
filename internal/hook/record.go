package hook

import (
	"fmt"
	"os"
	"path/filepath"

	"yqhp/hookd/internal/model"
)

// readRecord loads the status record stored at path.
func readRecord(path string) (*model.Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := model.UnmarshalInfo(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return info, nil
}

// writeRecord replaces the record at path through a temp file and rename, so
// concurrent readers see either the old or the new document.
func writeRecord(path string, info *model.Info) error {
	data, err := model.MarshalInfo(info)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".info-*.json")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace record: %w", err)
	}
	return nil
}

package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/flemzord/tiermem/internal/session"
	"github.com/flemzord/tiermem/internal/summary"
)

const (
	snapshotVersion = 1
	snapshotFile    = "memory.json"
)

// snapshot is the on-disk persistence format. A version bump invalidates
// old files: loading skips them instead of guessing at their layout.
type snapshot struct {
	Version       int               `json:"version"`
	SavedAt       time.Time         `json:"saved_at"`
	Conversations []session.Session `json:"conversations"`
	Summaries     []summary.Summary `json:"summaries"`
}

// writeSnapshot marshals the snapshot and writes it atomically: a temp
// file in the same directory, then rename. A crash mid-write leaves the
// previous snapshot intact.
func writeSnapshot(path string, snap snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("engine: marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("engine: create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, snapshotFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("engine: create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("engine: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("engine: close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("engine: replace snapshot: %w", err)
	}
	return nil
}

// readSnapshot loads and validates a snapshot file. A missing file or a
// version mismatch yields (nil, nil): both mean a cold start, not an error.
func readSnapshot(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("engine: read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("engine: parse snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, nil
	}
	return &snap, nil
}

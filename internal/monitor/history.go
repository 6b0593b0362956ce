package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// HistoryStore persists the snapshot window between monitoring invocations,
// newest first, capped at [HistoryLength] entries.
type HistoryStore struct {
	path string
}

// NewHistoryStore returns a HistoryStore backed by the given JSON file.
func NewHistoryStore(path string) *HistoryStore {
	return &HistoryStore{path: path}
}

// Load reads the persisted window. A missing file is an empty window.
func (h *HistoryStore) Load() ([]Snapshot, error) {
	data, err := os.ReadFile(h.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read status history: %w", err)
	}

	var history []Snapshot
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("decode status history: %w", err)
	}
	return history, nil
}

// Push inserts the snapshot at the front of the window, trims it to
// HistoryLength, persists it durably and returns the new window.
func (h *HistoryStore) Push(snap Snapshot) ([]Snapshot, error) {
	history, err := h.Load()
	if err != nil {
		return nil, err
	}

	history = append([]Snapshot{snap}, history...)
	if len(history) > HistoryLength {
		history = history[:HistoryLength]
	}

	if err := h.save(history); err != nil {
		return nil, err
	}
	return history, nil
}

// save writes via a temp file and rename so a crash mid-write never leaves a
// torn window behind.
func (h *HistoryStore) save(history []Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return fmt.Errorf("create status directory: %w", err)
	}

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode status history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(h.path), ".history-*")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write status history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync status history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close status history: %w", err)
	}

	if err := os.Rename(tmp.Name(), h.path); err != nil {
		return fmt.Errorf("replace status history: %w", err)
	}
	return nil
}

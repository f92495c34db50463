// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package prober

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/streamweaver/internal/models"
)

// historyStore persists the most recent probe run records as a JSON array
// on disk, newest first.
type historyStore struct {
	mu   sync.Mutex
	path string
	size int
}

func newHistoryStore(path string, size int) *historyStore {
	if size <= 0 {
		size = 5
	}
	return &historyStore{path: path, size: size}
}

// Load reads the history file. A missing file is an empty history.
func (h *historyStore) Load() ([]models.ProbeRunRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load()
}

func (h *historyStore) load() ([]models.ProbeRunRecord, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read probe history: %w", err)
	}
	var records []models.ProbeRunRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode probe history: %w", err)
	}
	return records, nil
}

// Append prepends a record, trims to size, and rewrites the file
// atomically via a temp file rename.
func (h *historyStore) Append(rec models.ProbeRunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	records, err := h.load()
	if err != nil {
		// A corrupt history file is replaced rather than fatal.
		records = nil
	}
	records = append([]models.ProbeRunRecord{rec}, records...)
	if len(records) > h.size {
		records = records[:h.size]
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode probe history: %w", err)
	}
	tmp := h.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write probe history: %w", err)
	}
	if err := os.Rename(tmp, h.path); err != nil {
		return fmt.Errorf("replace probe history: %w", err)
	}
	return nil
}

// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package prober

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/streamweaver/internal/models"
)

func TestHistoryAppendAndTrim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe_history.json")
	h := newHistoryStore(path, 5)

	if records, err := h.Load(); err != nil || records != nil {
		t.Fatalf("empty load = (%v, %v), want (nil, nil)", records, err)
	}

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		err := h.Append(models.ProbeRunRecord{
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Total:     i,
			Status:    models.ProbeRunCompleted,
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	records, err := h.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("got %d records, want 5", len(records))
	}
	// Newest first, oldest two trimmed.
	if records[0].Total != 6 || records[4].Total != 2 {
		t.Errorf("order = [%d .. %d], want [6 .. 2]", records[0].Total, records[4].Total)
	}
}

func TestHistoryCorruptFileReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe_history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := newHistoryStore(path, 5)
	if err := h.Append(models.ProbeRunRecord{Total: 1}); err != nil {
		t.Fatalf("append over corrupt file: %v", err)
	}
	records, err := h.Load()
	if err != nil || len(records) != 1 {
		t.Fatalf("load after repair = (%d, %v), want one record", len(records), err)
	}
}

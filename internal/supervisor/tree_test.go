// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/streamweaver/internal/logging"
)

// blockingService runs until its context is cancelled.
type blockingService struct {
	started atomic.Int32
}

func (s *blockingService) Serve(ctx context.Context) error {
	s.started.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestDefaultTreeConfig(t *testing.T) {
	cfg := DefaultTreeConfig()
	if cfg.FailureThreshold != 5.0 {
		t.Errorf("FailureThreshold = %v, want 5.0", cfg.FailureThreshold)
	}
	if cfg.FailureBackoff != 15*time.Second {
		t.Errorf("FailureBackoff = %v, want 15s", cfg.FailureBackoff)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestNewTreeAppliesDefaults(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), TreeConfig{})
	if tree.config.FailureThreshold != 5.0 {
		t.Errorf("FailureThreshold = %v, want 5.0", tree.config.FailureThreshold)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", tree.config.ShutdownTimeout)
	}
}

func TestTreeRunsAndStopsServices(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), DefaultTreeConfig())

	tracker := &blockingService{}
	feed := &blockingService{}
	server := &blockingService{}
	tree.AddTrackingService(tracker)
	tree.AddEventService(feed)
	tree.AddAPIService(server)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tracker.started.Load() > 0 && feed.started.Load() > 0 && server.started.Load() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if tracker.started.Load() == 0 || feed.started.Load() == 0 || server.started.Load() == 0 {
		t.Fatal("services did not all start")
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}
}

// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package prober

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/streamweaver/internal/config"
	"github.com/tomtom215/streamweaver/internal/database"
	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/upstream/upstreamtest"
)

func testProber(t *testing.T) (*Prober, *upstreamtest.Fake, *database.DB) {
	t.Helper()
	t.Setenv(config.ConfigDirEnvVar, t.TempDir())

	db, err := database.New(database.Options{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	fake := upstreamtest.New()
	cfg := &config.Config{}
	cfg.Upstream.PageSize = 100
	cfg.Probe.MaxConcurrent = 4
	cfg.Probe.Timeout = 5 * time.Second
	cfg.Probe.RetryCount = 0
	cfg.Probe.ProfileStrategy = "fill_first"
	cfg.Probe.HistorySize = 5

	p := New(fake, db, cfg, nil)
	p.idleSleep = time.Millisecond
	return p, fake, db
}

func TestRunWritesStatsAndHistory(t *testing.T) {
	p, fake, db := testProber(t)
	ctx := context.Background()

	fake.Providers = []models.Provider{{ID: 1, Name: "provider-a", MaxStreams: 5}}
	fake.Streams = []models.Stream{
		{ID: 10, Name: "Alpha", URL: "http://host/10", ProviderID: 1},
		{ID: 11, Name: "Beta", URL: "http://host/11", ProviderID: 1},
		{ID: 12, Name: "Dead", URL: "http://host/12", ProviderID: 1},
	}
	p.probeFn = func(_ context.Context, s models.Stream, _ string) (*models.StreamStats, error) {
		if s.ID == 12 {
			return nil, errors.New("HTTP error 404 Not Found")
		}
		return &models.StreamStats{
			StreamID: s.ID, StreamName: s.Name,
			ProbeStatus: models.ProbeSuccess, LastProbed: time.Now(),
			ResolutionHeight: 1080,
		}, nil
	}

	rec, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.Status != models.ProbeRunCompleted {
		t.Errorf("status = %q, want completed", rec.Status)
	}
	if rec.Total != 3 || rec.SuccessCount != 2 || rec.FailedCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1", rec.Total, rec.SuccessCount, rec.FailedCount)
	}

	st, err := db.GetStreamStats(ctx, 12)
	if err != nil {
		t.Fatalf("stats for dead stream: %v", err)
	}
	if st.ProbeStatus != models.ProbeFailed || st.ConsecutiveFailures != 1 {
		t.Errorf("dead stream = %q cf=%d, want failed cf=1", st.ProbeStatus, st.ConsecutiveFailures)
	}

	history, err := p.History()
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].SuccessCount != 2 {
		t.Errorf("history = %+v, want one record with 2 successes", history)
	}
}

func TestRunSkipsDismissedStreams(t *testing.T) {
	p, fake, db := testProber(t)
	ctx := context.Background()

	fake.Providers = []models.Provider{{ID: 1, Name: "provider-a", MaxStreams: 5}}
	fake.Streams = []models.Stream{
		{ID: 10, Name: "Alpha", URL: "http://host/10", ProviderID: 1},
		{ID: 11, Name: "Hidden", URL: "http://host/11", ProviderID: 1},
	}
	if err := db.UpsertStreamStats(ctx, &models.StreamStats{
		StreamID: 11, StreamName: "Hidden", ProbeStatus: models.ProbeFailed, LastProbed: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.DismissStreamStats(ctx, 11, time.Now()); err != nil {
		t.Fatal(err)
	}

	var probed atomic.Int32
	p.probeFn = func(_ context.Context, s models.Stream, _ string) (*models.StreamStats, error) {
		probed.Add(1)
		return &models.StreamStats{StreamID: s.ID, StreamName: s.Name, ProbeStatus: models.ProbeSuccess, LastProbed: time.Now()}, nil
	}

	rec, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if probed.Load() != 1 {
		t.Errorf("probed %d streams, want 1", probed.Load())
	}
	if rec.SkippedCount != 1 || len(rec.SkippedStreams) != 1 || rec.SkippedStreams[0] != "Hidden" {
		t.Errorf("skipped = %d %v, want the dismissed stream", rec.SkippedCount, rec.SkippedStreams)
	}
}

func TestRunCancellation(t *testing.T) {
	p, fake, _ := testProber(t)

	fake.Providers = []models.Provider{{ID: 1, Name: "provider-a", MaxStreams: 5}}
	for i := 0; i < 4; i++ {
		fake.Streams = append(fake.Streams, models.Stream{
			ID: 10 + i, Name: fmt.Sprintf("S%d", i), URL: "http://host/s", ProviderID: 1,
		})
	}
	p.probeFn = func(ctx context.Context, s models.Stream, _ string) (*models.StreamStats, error) {
		<-ctx.Done()
		return nil, errors.New("probe aborted")
	}

	done := make(chan *models.ProbeRunRecord, 1)
	go func() {
		rec, err := p.Run(context.Background())
		if err != nil {
			t.Errorf("run: %v", err)
		}
		done <- rec
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := p.Cancel(); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("run never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case rec := <-done:
		if rec.Status != models.ProbeRunCancelled {
			t.Errorf("status = %q, want cancelled", rec.Status)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not finish after cancel")
	}
	if got := p.Status().Status; got != models.ProbeRunCancelled {
		t.Errorf("progress status = %q, want cancelled", got)
	}
}

func TestProbeOneRetriesTransient(t *testing.T) {
	p, _, _ := testProber(t)
	p.cfg.Probe.RetryCount = 2
	p.cfg.Probe.RetryDelay = 0

	var calls atomic.Int32
	p.probeFn = func(_ context.Context, s models.Stream, _ string) (*models.StreamStats, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("read: connection reset by peer")
		}
		return &models.StreamStats{StreamID: s.ID, ProbeStatus: models.ProbeSuccess, LastProbed: time.Now()}, nil
	}

	st := p.probeOne(context.Background(), models.Stream{ID: 1, Name: "S"}, "http://host/1")
	if st.ProbeStatus != models.ProbeSuccess {
		t.Errorf("status = %q, want success after retries", st.ProbeStatus)
	}
	if calls.Load() != 3 {
		t.Errorf("attempts = %d, want 3", calls.Load())
	}
}

func TestProbeOneNoRetryOnPermanent(t *testing.T) {
	p, _, _ := testProber(t)
	p.cfg.Probe.RetryCount = 3
	p.cfg.Probe.RetryDelay = 0

	var calls atomic.Int32
	p.probeFn = func(_ context.Context, _ models.Stream, _ string) (*models.StreamStats, error) {
		calls.Add(1)
		return nil, errors.New("HTTP error 404 Not Found")
	}

	st := p.probeOne(context.Background(), models.Stream{ID: 1, Name: "S"}, "http://host/1")
	if st.ProbeStatus != models.ProbeFailed {
		t.Errorf("status = %q, want failed", st.ProbeStatus)
	}
	if calls.Load() != 1 {
		t.Errorf("attempts = %d, want 1 (404 is not transient)", calls.Load())
	}
	if st.ErrorMessage == "" {
		t.Error("error message not recorded")
	}
}

func TestProbeForSort(t *testing.T) {
	p, _, db := testProber(t)
	ctx := context.Background()

	p.probeFn = func(_ context.Context, s models.Stream, _ string) (*models.StreamStats, error) {
		return &models.StreamStats{
			StreamID: s.ID, StreamName: s.Name,
			ProbeStatus: models.ProbeSuccess, LastProbed: time.Now(),
			ResolutionHeight: 100 * s.ID,
		}, nil
	}

	streams := []models.Stream{
		{ID: 1, Name: "A", URL: "http://host/1"},
		{ID: 2, Name: "B", URL: "http://host/2"},
		{ID: 3, Name: "C", URL: "http://host/3"},
	}
	out := p.ProbeForSort(ctx, streams, 2)
	if len(out) != 3 {
		t.Fatalf("got %d results, want 3", len(out))
	}
	if out[2].ResolutionHeight != 200 {
		t.Errorf("stream 2 height = %d, want 200", out[2].ResolutionHeight)
	}

	st, err := db.GetStreamStats(ctx, 3)
	if err != nil {
		t.Fatalf("persisted stats: %v", err)
	}
	if st.ProbeStatus != models.ProbeSuccess {
		t.Errorf("persisted status = %q, want success", st.ProbeStatus)
	}
}

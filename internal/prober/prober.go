// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package prober measures stream health and quality.
//
// A probe run walks every provider stream, extracts metadata through an
// ffprobe subprocess, measures real throughput, and writes a StreamStats
// row per stream. Dispatch is gated three ways: a global semaphore, a
// per-provider ramp-up limit that grows on success and shrinks on
// overload, and per-profile capacity checked against the upstream's live
// connection counts plus our own reservations.
package prober

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/streamweaver/internal/config"
	"github.com/tomtom215/streamweaver/internal/database"
	"github.com/tomtom215/streamweaver/internal/logging"
	"github.com/tomtom215/streamweaver/internal/metrics"
	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/upstream"
)

// Run state errors.
var (
	ErrProbeRunning    = errors.New("a probe run is already in progress")
	ErrProbeNotRunning = errors.New("no probe run in progress")
)

// notifySource tags notifications created by the prober.
const notifySource = "probe"

// progressInterval and progressEvery throttle notification edits.
const (
	progressInterval = 5 * time.Second
	progressEvery    = 10
)

// Notifier is the outbound notification contract the prober needs.
// notify.Sink satisfies it.
type Notifier interface {
	Create(ctx context.Context, n *models.Notification) (int, error)
	Update(ctx context.Context, n *models.Notification) error
	Finalize(ctx context.Context, n *models.Notification) error
	DeleteBySource(ctx context.Context, source, sourceID string) error
}

// Prober runs full probe sweeps and on-demand probes for pipeline quality
// sorting.
type Prober struct {
	client   upstream.Client
	db       *database.DB
	cfg      *config.Config
	notifier Notifier
	history  *historyStore

	// probeFn performs one probe attempt. Swappable in tests.
	probeFn func(ctx context.Context, stream models.Stream, url string) (*models.StreamStats, error)

	now       func() time.Time
	idleSleep time.Duration

	mu         sync.Mutex
	progress   models.ProbeProgress
	running    bool
	paused     bool
	cancelled  bool
	cancelRun  context.CancelFunc
	notifID    int
	notifRunID string
	lastNotify time.Time
	sinceNotif int
}

// New constructs a Prober. notifier may be nil.
func New(client upstream.Client, db *database.DB, cfg *config.Config, notifier Notifier) *Prober {
	p := &Prober{
		client:    client,
		db:        db,
		cfg:       cfg,
		notifier:  notifier,
		history:   newHistoryStore(cfg.ProbeHistoryPath(), cfg.Probe.HistorySize),
		now:       time.Now,
		idleSleep: 500 * time.Millisecond,
	}
	p.probeFn = p.probeStream
	p.progress.Status = models.ProbeRunIdle
	return p
}

// probeStream is the production probe attempt: ffprobe metadata plus a
// throughput sample.
func (p *Prober) probeStream(ctx context.Context, stream models.Stream, url string) (*models.StreamStats, error) {
	start := p.now()
	out, err := p.ffprobe(ctx, url)
	if err != nil {
		return nil, err
	}
	measured := p.sampleBitrate(ctx, url)
	metrics.ProbeDuration.Observe(time.Since(start).Seconds())
	return buildStats(stream, out, measured, p.now()), nil
}

// probeOne runs one stream probe with the transient retry policy and
// always returns a stats row; failures carry status and message.
func (p *Prober) probeOne(ctx context.Context, stream models.Stream, url string) *models.StreamStats {
	attempts := p.cfg.Probe.RetryCount + 1
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		stats, err := p.probeFn(ctx, stream, url)
		if err == nil {
			return stats
		}
		lastErr = err
		if ctx.Err() != nil || !isTransient(err) || attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(p.cfg.Probe.RetryDelay):
		}
	}
	return &models.StreamStats{
		StreamID:     stream.ID,
		StreamName:   stream.Name,
		ProbeStatus:  classifyStatus(lastErr),
		LastProbed:   p.now(),
		ErrorMessage: lastErr.Error(),
	}
}

// Start launches a full probe run in the background.
func (p *Prober) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrProbeRunning
	}
	p.mu.Unlock()
	go func() {
		if _, err := p.Run(context.Background()); err != nil && !errors.Is(err, ErrProbeRunning) {
			logging.Err(err).Msg("Probe run failed")
		}
	}()
	return nil
}

// Pause suspends dispatching new probes; in-flight probes finish.
func (p *Prober) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return ErrProbeNotRunning
	}
	p.paused = true
	return nil
}

// Resume lifts a pause.
func (p *Prober) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return ErrProbeNotRunning
	}
	p.paused = false
	return nil
}

// Cancel aborts the current run. Running probes are killed, counters
// finalized, and the run's notification deleted.
func (p *Prober) Cancel() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return ErrProbeNotRunning
	}
	p.cancelled = true
	if p.cancelRun != nil {
		p.cancelRun()
	}
	return nil
}

// Status returns the live progress snapshot.
func (p *Prober) Status() models.ProbeProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.progress
	snap.RateLimitedHosts = append([]string(nil), p.progress.RateLimitedHosts...)
	return snap
}

// History returns the persisted recent run records, newest first.
func (p *Prober) History() ([]models.ProbeRunRecord, error) {
	return p.history.Load()
}

type probeOutcome struct {
	stream    models.Stream
	profileID int
	stats     *models.StreamStats
}

// Run performs one full probe sweep and returns its history record. Only
// one run may be active at a time.
func (p *Prober) Run(ctx context.Context) (*models.ProbeRunRecord, error) {
	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		cancel()
		return nil, ErrProbeRunning
	}
	p.running = true
	p.paused = false
	p.cancelled = false
	p.cancelRun = cancel
	p.progress = models.ProbeProgress{Status: models.ProbeRunRunning}
	p.mu.Unlock()
	defer func() {
		cancel()
		p.mu.Lock()
		p.running = false
		p.cancelRun = nil
		p.mu.Unlock()
	}()

	started := p.now()
	providers, err := p.client.ListProviders(ctx)
	if err != nil {
		p.setStatus(models.ProbeRunIdle)
		return nil, fmt.Errorf("list providers: %w", err)
	}
	streams, err := upstream.AllStreams(ctx, p.client, p.cfg.Upstream.PageSize, 0)
	if err != nil {
		p.setStatus(models.ProbeRunIdle)
		return nil, fmt.Errorf("list streams: %w", err)
	}

	// Dismissed streams are excluded up front and counted as skipped.
	existing, err := p.db.ListStreamStats(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load stream stats: %w", err)
	}
	dismissed := make(map[int]bool)
	for _, st := range existing {
		if st.DismissedAt != nil {
			dismissed[st.StreamID] = true
		}
	}
	var pending []models.Stream
	var skippedNames []string
	for _, s := range streams {
		if dismissed[s.ID] {
			skippedNames = append(skippedNames, s.Name)
			metrics.ProbesTotal.WithLabelValues("skipped").Inc()
			continue
		}
		pending = append(pending, s)
	}

	p.mu.Lock()
	p.progress.Total = len(pending) + len(skippedNames)
	p.progress.SkippedCount = len(skippedNames)
	p.progress.Current = len(skippedNames)
	p.mu.Unlock()
	p.notifyStart(ctx, started, len(streams))

	ramp := newRampController(providers)
	selector := newProfileSelector(p.client, p.cfg.Probe.ProfileStrategy)
	providersByID := make(map[int]models.Provider, len(providers))
	providerPriority := make(map[int]int, len(providers))
	for _, pr := range providers {
		providersByID[pr.ID] = pr
		providerPriority[pr.ID] = pr.Priority
	}
	streamProvider := make(map[int]int, len(streams))
	for _, s := range streams {
		streamProvider[s.ID] = s.ProviderID
	}

	results, successNames, failedNames := p.runLoop(runCtx, pending, providersByID, ramp, selector)

	record := models.ProbeRunRecord{
		StartedAt:       started,
		DurationSeconds: p.now().Sub(started).Seconds(),
		Total:           len(pending) + len(skippedNames),
		SuccessCount:    len(successNames),
		FailedCount:     len(failedNames),
		SkippedCount:    len(skippedNames),
		SuccessStreams:  successNames,
		FailedStreams:   failedNames,
		SkippedStreams:  skippedNames,
	}

	if p.isCancelled() {
		record.Status = models.ProbeRunCancelled
		p.setStatus(models.ProbeRunCancelled)
		p.notifyCancelled(ctx)
	} else {
		record.Status = models.ProbeRunCompleted
		p.setStatus(models.ProbeRunCompleted)

		if p.cfg.Probe.AutoReorder {
			reordered, err := p.reorderChannels(ctx, results, providerPriority, streamProvider)
			if err != nil {
				logging.Err(err).Msg("Post-probe reorder failed")
			}
			record.ReorderedChannels = reordered
			record.SortConfig = map[string]any{
				"keys":                p.cfg.Probe.SortKeys,
				"deprioritize_failed": p.cfg.Probe.DeprioritizeFailed,
			}
		}
		p.notifyDone(ctx, record)
	}

	if err := p.history.Append(record); err != nil {
		logging.Err(err).Msg("Probe history write failed")
	}
	logging.Info().
		Int("total", record.Total).
		Int("success", record.SuccessCount).
		Int("failed", record.FailedCount).
		Int("skipped", record.SkippedCount).
		Str("status", string(record.Status)).
		Msg("Probe run finished")
	return &record, nil
}

// runLoop is the dispatch loop. Each iteration refreshes the cached
// upstream connection map, launches every pending stream that has global,
// ramp and profile room, then blocks on the next completion. It returns
// when pending and active are both empty or the run is cancelled.
func (p *Prober) runLoop(ctx context.Context, pending []models.Stream, providersByID map[int]models.Provider, ramp *rampController, selector *profileSelector) (map[int]*models.StreamStats, []string, []string) {
	maxConcurrent := p.cfg.Probe.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	} else if maxConcurrent > 16 {
		maxConcurrent = 16
	}

	results := make(chan probeOutcome)
	active := 0
	stats := make(map[int]*models.StreamStats)
	var successNames, failedNames []string

	for {
		if ctx.Err() != nil || p.isCancelled() {
			break
		}
		if p.isPaused() {
			p.setStatus(models.ProbeRunPaused)
			p.sleep(ctx, 200*time.Millisecond)
			continue
		}
		p.setStatus(models.ProbeRunRunning)

		now := p.now()
		selector.refreshActive(ctx, now)

		rest := pending[:0:0]
		for _, s := range pending {
			if active >= maxConcurrent {
				rest = append(rest, s)
				continue
			}
			if !ramp.tryAcquire(s.ProviderID, now) {
				rest = append(rest, s)
				continue
			}
			profileID, url, ok := selector.reserve(providersByID[s.ProviderID], s.URL)
			if !ok {
				ramp.release(s.ProviderID)
				rest = append(rest, s)
				continue
			}
			active++
			metrics.ProbeActive.Inc()
			p.setCurrentStream(s.Name)
			go func(s models.Stream, profileID int, url string) {
				results <- probeOutcome{stream: s, profileID: profileID, stats: p.probeOne(ctx, s, url)}
			}(s, profileID, url)
		}
		pending = rest

		if active == 0 {
			if len(pending) == 0 {
				break
			}
			// Everything is held or at capacity; wait and retry.
			p.updateBackoff(ramp)
			p.sleep(ctx, p.idleSleep)
			continue
		}

		out := <-results
		active--
		metrics.ProbeActive.Dec()
		selector.release(out.profileID)
		ramp.onResult(out.stream.ProviderID, out.stats.ProbeStatus, out.stats.ErrorMessage, p.now())
		p.updateBackoff(ramp)

		if err := p.db.UpsertStreamStats(ctx, out.stats); err != nil {
			logging.Err(err).Int("stream_id", out.stream.ID).Msg("Stats write failed")
		}
		stats[out.stream.ID] = out.stats
		metrics.ProbesTotal.WithLabelValues(string(out.stats.ProbeStatus)).Inc()
		if out.stats.ProbeStatus == models.ProbeSuccess {
			successNames = append(successNames, out.stream.Name)
		} else {
			failedNames = append(failedNames, out.stream.Name)
		}
		p.recordCompletion(ctx, out.stats)
	}

	// Drain in-flight probes so subprocesses are reaped before return.
	for active > 0 {
		out := <-results
		active--
		metrics.ProbeActive.Dec()
		selector.release(out.profileID)
	}
	return stats, successNames, failedNames
}

func (p *Prober) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Prober) isCancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

func (p *Prober) setStatus(s models.ProbeRunStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress.Status = s
}

func (p *Prober) setCurrentStream(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress.CurrentStream = name
}

// updateBackoff mirrors the ramp hold state into the progress snapshot.
func (p *Prober) updateBackoff(ramp *rampController) {
	remaining, held := ramp.maxHoldRemaining(p.now())
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress.RateLimited = len(held) > 0
	p.progress.RateLimitedHosts = held
	p.progress.MaxBackoffRemaining = remaining.Seconds()
}

// recordCompletion bumps counters and pushes a throttled notification
// update: at most every 5 seconds or every 10 streams.
func (p *Prober) recordCompletion(ctx context.Context, st *models.StreamStats) {
	p.mu.Lock()
	p.progress.Current++
	if st.ProbeStatus == models.ProbeSuccess {
		p.progress.SuccessCount++
	} else {
		p.progress.FailedCount++
	}
	p.sinceNotif++
	due := p.sinceNotif >= progressEvery || p.now().Sub(p.lastNotify) >= progressInterval
	if due {
		p.sinceNotif = 0
		p.lastNotify = p.now()
	}
	snap := p.progress
	id := p.notifID
	p.mu.Unlock()

	if !due || p.notifier == nil || id == 0 {
		return
	}
	err := p.notifier.Update(ctx, &models.Notification{
		ID:      id,
		Type:    models.NotifyInfo,
		Title:   "Stream probe in progress",
		Message: fmt.Sprintf("Probed %d of %d streams (%d failed)", snap.Current, snap.Total, snap.FailedCount),
	})
	if err != nil {
		logging.Err(err).Msg("Probe progress notification failed")
	}
}

func (p *Prober) notifyStart(ctx context.Context, started time.Time, total int) {
	if p.notifier == nil {
		return
	}
	runID := started.UTC().Format(time.RFC3339)
	id, err := p.notifier.Create(ctx, &models.Notification{
		Type:     models.NotifyInfo,
		Title:    "Stream probe started",
		Message:  fmt.Sprintf("Probing %d streams", total),
		Source:   notifySource,
		SourceID: runID,
	})
	if err != nil {
		logging.Err(err).Msg("Probe start notification failed")
		return
	}
	p.mu.Lock()
	p.notifID = id
	p.notifRunID = runID
	p.lastNotify = p.now()
	p.sinceNotif = 0
	p.mu.Unlock()
}

func (p *Prober) notifyDone(ctx context.Context, rec models.ProbeRunRecord) {
	p.mu.Lock()
	id := p.notifID
	p.notifID = 0
	p.mu.Unlock()
	if p.notifier == nil || id == 0 {
		return
	}
	typ := models.NotifySuccess
	if rec.FailedCount > 0 {
		typ = models.NotifyWarning
	}
	err := p.notifier.Finalize(ctx, &models.Notification{
		ID:    id,
		Type:  typ,
		Title: "Stream probe finished",
		Message: fmt.Sprintf("%d succeeded, %d failed, %d skipped in %.0fs",
			rec.SuccessCount, rec.FailedCount, rec.SkippedCount, rec.DurationSeconds),
	})
	if err != nil {
		logging.Err(err).Msg("Probe completion notification failed")
	}
}

// notifyCancelled deletes the run's notification; a cancelled probe leaves
// no message behind.
func (p *Prober) notifyCancelled(ctx context.Context) {
	p.mu.Lock()
	runID := p.notifRunID
	p.notifID = 0
	p.mu.Unlock()
	if p.notifier == nil || runID == "" {
		return
	}
	if err := p.notifier.DeleteBySource(ctx, notifySource, runID); err != nil {
		logging.Err(err).Msg("Probe notification cleanup failed")
	}
}

// sleep waits for d or until ctx is done.
func (p *Prober) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// ProbeForSort probes a set of streams with bounded concurrency and
// returns their stats by stream id. The pipeline uses it before quality
// sorting; results are persisted like any other probe.
func (p *Prober) ProbeForSort(ctx context.Context, streams []models.Stream, concurrency int) map[int]*models.StreamStats {
	if concurrency < 1 {
		concurrency = 1
	} else if concurrency > 16 {
		concurrency = 16
	}
	sem := make(chan struct{}, concurrency)
	out := make(map[int]*models.StreamStats, len(streams))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, s := range streams {
		wg.Add(1)
		go func(s models.Stream) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			st := p.probeOne(ctx, s, s.URL)
			if err := p.db.UpsertStreamStats(ctx, st); err != nil {
				logging.Err(err).Int("stream_id", s.ID).Msg("Stats write failed")
			}
			mu.Lock()
			out[s.ID] = st
			mu.Unlock()
		}(s)
	}
	wg.Wait()
	return out
}

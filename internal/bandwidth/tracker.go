// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package bandwidth samples the upstream live-stats endpoint and turns
// cumulative byte counters into daily aggregates, per-channel totals and
// per-client watch sessions.
//
// The tracker is a single sequential loop: a sample either fully applies
// or fully aborts, and a dropped sample simply produces a larger delta on
// the next one because the upstream counters are cumulative.
package bandwidth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/streamweaver/internal/config"
	"github.com/tomtom215/streamweaver/internal/database"
	"github.com/tomtom215/streamweaver/internal/logging"
	"github.com/tomtom215/streamweaver/internal/metrics"
	"github.com/tomtom215/streamweaver/internal/models"
	"github.com/tomtom215/streamweaver/internal/upstream"
)

// Journal receives watch lifecycle events.
type Journal interface {
	Publish(ctx context.Context, event, subject string, details map[string]string)
}

// Tracker polls the upstream stats endpoint and aggregates bandwidth and
// watch time. All state is touched only from the Serve loop.
type Tracker struct {
	client  upstream.Client
	db      *database.DB
	cfg     *config.Config
	journal Journal
	loc     *time.Location
	now     func() time.Time

	lastBytes map[string]int64           // channel id -> last cumulative total
	activeIPs map[string]map[string]bool // channel id -> connected IPs
	chanNames map[string]string          // id and channel number -> display name
	namesAt   time.Time
	purgedOn  string // date of the last retention purge
}

// New builds a Tracker and seeds its active-connection state from rows
// left open by a previous process, so a restart does not double-count
// watch sessions.
func New(client upstream.Client, db *database.DB, cfg *config.Config, journal Journal) (*Tracker, error) {
	loc, err := time.LoadLocation(cfg.Bandwidth.Timezone)
	if err != nil {
		return nil, fmt.Errorf("bandwidth timezone: %w", err)
	}
	t := &Tracker{
		client:    client,
		db:        db,
		cfg:       cfg,
		journal:   journal,
		loc:       loc,
		now:       time.Now,
		lastBytes: make(map[string]int64),
		activeIPs: make(map[string]map[string]bool),
		chanNames: make(map[string]string),
	}
	open, err := db.OpenConnectionsByChannel(context.Background())
	if err != nil {
		return nil, err
	}
	for channelID, conns := range open {
		ips := make(map[string]bool, len(conns))
		for _, c := range conns {
			ips[c.IPAddress] = true
		}
		t.activeIPs[channelID] = ips
	}
	return t, nil
}

// Serve runs the sampling loop until ctx is cancelled. It satisfies the
// suture service contract.
func (t *Tracker) Serve(ctx context.Context) error {
	interval := t.cfg.Bandwidth.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := t.Sample(ctx); err != nil {
				logging.Err(err).Msg("Bandwidth sample failed")
			}
		}
	}
}

// refreshNames rebuilds the channel display-name map when stale. Lookup
// keys are the channel id and the channel number.
func (t *Tracker) refreshNames(ctx context.Context) {
	ttl := t.cfg.Bandwidth.ChannelMapRefresh
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if t.now().Sub(t.namesAt) < ttl && len(t.chanNames) > 0 {
		return
	}
	channels, err := upstream.AllChannels(ctx, t.client, t.cfg.Upstream.PageSize)
	if err != nil {
		logging.Err(err).Msg("Channel map refresh failed")
		return
	}
	names := make(map[string]string, 2*len(channels))
	for _, ch := range channels {
		names[strconv.Itoa(ch.ID)] = ch.Name
		names[strconv.FormatFloat(ch.ChannelNumber, 'f', -1, 64)] = ch.Name
	}
	t.chanNames = names
	t.namesAt = t.now()
}

// displayName resolves a channel's name from the sample itself, then from
// the channel map by id and by number.
func (t *Tracker) displayName(ch models.ChannelStats) string {
	if ch.ChannelName != "" {
		return ch.ChannelName
	}
	if name, ok := t.chanNames[ch.ChannelID]; ok {
		return name
	}
	if name, ok := t.chanNames[strconv.FormatFloat(ch.ChannelNumber, 'f', -1, 64)]; ok {
		return name
	}
	return ch.ChannelID
}

// Sample performs one poll: byte deltas, daily and per-channel upserts,
// watch event detection, and retention.
func (t *Tracker) Sample(ctx context.Context) error {
	snap, err := t.client.GetChannelStats(ctx)
	if err != nil {
		metrics.TrackerSamples.WithLabelValues("error").Inc()
		return fmt.Errorf("channel stats: %w", err)
	}
	t.refreshNames(ctx)

	now := t.now()
	date := now.In(t.loc).Format("2006-01-02")
	pollSecs := int64(t.cfg.Bandwidth.PollInterval.Seconds())
	if pollSecs <= 0 {
		pollSecs = 10
	}

	var bytesIn, bytesOut int64
	totalClients := 0
	current := make(map[string]map[string]bool, len(snap.Channels))

	for _, ch := range snap.Channels {
		name := t.displayName(ch)
		delta := ch.TotalBytes - t.lastBytes[ch.ChannelID]
		if delta < 0 {
			delta = 0
		}
		t.lastBytes[ch.ChannelID] = ch.TotalBytes

		clients := ch.ClientCount
		if clients < len(ch.Clients) {
			clients = len(ch.Clients)
		}
		totalClients += clients

		// One provider stream fans out to every client: the full delta
		// went out, one share came in.
		outDelta := delta
		inDelta := delta
		if clients > 1 {
			inDelta = delta / int64(clients)
		}
		bytesIn += inDelta
		bytesOut += outDelta

		if err := t.db.AccumulateChannelBandwidth(ctx, &models.ChannelBandwidth{
			ChannelID:         ch.ChannelID,
			ChannelName:       name,
			Date:              date,
			BytesTransferred:  outDelta,
			PeakClients:       clients,
			TotalWatchSeconds: pollSecs * int64(clients),
		}); err != nil {
			metrics.TrackerSamples.WithLabelValues("error").Inc()
			return err
		}
		if err := t.db.TouchChannelWatchStats(ctx, ch.ChannelID, name, pollSecs*int64(clients), now); err != nil {
			metrics.TrackerSamples.WithLabelValues("error").Inc()
			return err
		}

		ips := make(map[string]bool, len(ch.Clients))
		for _, c := range ch.Clients {
			if c.IPAddress != "" {
				ips[c.IPAddress] = true
			}
		}
		current[ch.ChannelID] = ips

		if err := t.applyWatchDiff(ctx, ch.ChannelID, name, date, ips, now, pollSecs); err != nil {
			metrics.TrackerSamples.WithLabelValues("error").Inc()
			return err
		}
	}

	// Channels that vanished from the sample: everyone disconnected.
	for channelID, prev := range t.activeIPs {
		if _, still := current[channelID]; still {
			continue
		}
		if _, err := t.db.CloseConnections(ctx, channelID, nil, now); err != nil {
			metrics.TrackerSamples.WithLabelValues("error").Inc()
			return err
		}
		t.publishWatch(ctx, "watch:stop", channelID, prev)
		delete(t.lastBytes, channelID)
	}
	t.activeIPs = current

	if err := t.db.AccumulateDaily(ctx, &models.BandwidthDaily{
		Date:             date,
		BytesTransferred: bytesIn + bytesOut,
		BytesIn:          bytesIn,
		BytesOut:         bytesOut,
		PeakChannels:     len(snap.Channels),
		PeakClients:      totalClients,
		PeakBitrateIn:    float64(bytesIn*8) / float64(pollSecs) / 1000,
		PeakBitrateOut:   float64(bytesOut*8) / float64(pollSecs) / 1000,
	}); err != nil {
		metrics.TrackerSamples.WithLabelValues("error").Inc()
		return err
	}

	metrics.TrackerSamples.WithLabelValues("ok").Inc()
	metrics.TrackerBytes.WithLabelValues("in").Add(float64(bytesIn))
	metrics.TrackerBytes.WithLabelValues("out").Add(float64(bytesOut))
	metrics.TrackerActiveChannels.Set(float64(len(snap.Channels)))

	t.purgeOld(ctx, date)
	return nil
}

// applyWatchDiff reconciles one channel's client set against the previous
// sample: new IPs open connections, continuing IPs accrue watch time,
// departing IPs are closed.
func (t *Tracker) applyWatchDiff(ctx context.Context, channelID, name, date string, ips map[string]bool, now time.Time, pollSecs int64) error {
	prev := t.activeIPs[channelID]

	if len(prev) == 0 {
		// Channel just became active.
		if len(ips) > 0 {
			t.publishWatch(ctx, "watch:start", channelID, ips)
		}
		for ip := range ips {
			if err := t.openConnection(ctx, channelID, name, date, ip, now); err != nil {
				return err
			}
		}
		return nil
	}

	var departed []string
	for ip := range prev {
		if !ips[ip] {
			departed = append(departed, ip)
		}
	}
	if len(departed) > 0 {
		if _, err := t.db.CloseConnections(ctx, channelID, departed, now); err != nil {
			return err
		}
	}

	// Continuing IPs accrue one poll interval before new rows open, so a
	// fresh connection does not collect time it has not watched.
	if err := t.db.AddWatchSeconds(ctx, channelID, pollSecs); err != nil {
		return err
	}
	for ip := range ips {
		if !prev[ip] {
			if err := t.openConnection(ctx, channelID, name, date, ip, now); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tracker) openConnection(ctx context.Context, channelID, name, date, ip string, now time.Time) error {
	_, err := t.db.OpenConnection(ctx, &models.UniqueClientConnection{
		IPAddress:   ip,
		ChannelID:   channelID,
		ChannelName: name,
		Date:        date,
		ConnectedAt: now,
	})
	return err
}

func (t *Tracker) publishWatch(ctx context.Context, event, channelID string, ips map[string]bool) {
	if t.journal == nil {
		return
	}
	list := make([]string, 0, len(ips))
	for ip := range ips {
		list = append(list, ip)
	}
	t.journal.Publish(ctx, event, channelID, map[string]string{
		"ips": strings.Join(list, ","),
	})
}

// purgeOld enforces retention once per day.
func (t *Tracker) purgeOld(ctx context.Context, date string) {
	if t.purgedOn == date || t.cfg.Bandwidth.RetentionDays <= 0 {
		return
	}
	cutoff := t.now().In(t.loc).AddDate(0, 0, -t.cfg.Bandwidth.RetentionDays).Format("2006-01-02")
	purged, err := t.db.PurgeBandwidthBefore(ctx, cutoff)
	if err != nil {
		logging.Err(err).Msg("Bandwidth retention purge failed")
		return
	}
	t.purgedOn = date
	if purged > 0 {
		logging.Info().Int64("rows", purged).Str("cutoff", cutoff).Msg("Purged old bandwidth data")
	}
}

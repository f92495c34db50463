// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package main is the entry point for the Streamweaver server.
//
// Streamweaver is an orchestration layer in front of an IPTV proxy: it
// auto-creates channels from streams via a rule pipeline, probes stream
// health with ffprobe under adaptive per-provider concurrency, and
// tracks bandwidth and watch sessions from the proxy's stats endpoint.
//
// # Startup order
//
//  1. Configuration: koanf v2 layered from defaults, config.yaml and
//     environment variables
//  2. Database: SQLite state store (rules, executions, stats, journal)
//  3. Upstream client: REST client wrapped in a circuit breaker
//  4. Journal bus: watermill in-process pub/sub, optional NATS mirror
//  5. Pipeline engine, prober, bandwidth tracker
//  6. Supervisor tree: tracker, websocket hub/feed and HTTP API run as
//     supervised services
//
// # Signal handling
//
// SIGINT and SIGTERM cancel the root context; the supervisor tree then
// stops every service, the HTTP server draining in-flight requests
// within the configured shutdown timeout.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/streamweaver/internal/api"
	"github.com/tomtom215/streamweaver/internal/autocreate"
	"github.com/tomtom215/streamweaver/internal/bandwidth"
	"github.com/tomtom215/streamweaver/internal/config"
	"github.com/tomtom215/streamweaver/internal/database"
	"github.com/tomtom215/streamweaver/internal/journal"
	"github.com/tomtom215/streamweaver/internal/logging"
	"github.com/tomtom215/streamweaver/internal/notify"
	"github.com/tomtom215/streamweaver/internal/prober"
	"github.com/tomtom215/streamweaver/internal/supervisor"
	"github.com/tomtom215/streamweaver/internal/upstream"
	ws "github.com/tomtom215/streamweaver/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("upstream_url", cfg.Upstream.URL).
		Str("db_path", cfg.DatabasePath()).
		Bool("bandwidth_enabled", cfg.Bandwidth.Enabled).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Configuration loaded")

	db, err := database.New(database.Options{
		Path:        cfg.DatabasePath(),
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	client := upstream.NewBreakerClient(
		upstream.NewRESTClient(cfg.Upstream.URL, cfg.Upstream.APIToken, cfg.Upstream.Timeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := journal.New(db, cfg.NATS)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Err(err).Msg("Error closing journal bus")
		}
	}()

	sink := notify.New(db)
	probe := prober.New(client, db, cfg, sink)
	engine := autocreate.NewEngine(client, db, cfg, probe, bus)

	hub := ws.NewHub()
	feed := ws.NewFeed(hub, bus, probe)

	handler := api.NewHandler(db, engine, probe, bus, hub)
	server := api.NewServer(cfg.Server, api.NewRouter(cfg.Server, handler))

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddEventService(hub)
	tree.AddEventService(feed)
	tree.AddAPIService(server)

	if cfg.Bandwidth.Enabled {
		tracker, err := bandwidth.New(client, db, cfg, bus)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize bandwidth tracker")
		}
		tree.AddTrackingService(tracker)
		logging.Info().
			Dur("poll_interval", cfg.Bandwidth.PollInterval).
			Str("timezone", cfg.Bandwidth.Timezone).
			Msg("Bandwidth tracker enabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Err(err).Msg("Supervisor shutdown error")
		}
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}

	logging.Info().Msg("Streamweaver stopped")
}

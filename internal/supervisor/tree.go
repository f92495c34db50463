// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package supervisor arranges the long-running services into a suture
// supervision tree.
//
// The tree has three layers for failure isolation: tracking (bandwidth
// sampling), events (websocket hub and feed), and api (HTTP server). A
// crashing tracker restarts without disturbing the API.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration. Zero values fall back
// to suture's documented defaults.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay, in seconds.
	FailureDecay float64

	// FailureBackoff is how long to wait when the threshold is exceeded.
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns production defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the supervision hierarchy for the whole process.
type Tree struct {
	root     *suture.Supervisor
	tracking *suture.Supervisor
	events   *suture.Supervisor
	api      *suture.Supervisor
	config   TreeConfig
}

// NewTree builds the supervisor hierarchy. The slog logger receives
// suture lifecycle events; bridge from zerolog with
// logging.NewSlogLogger().
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	// MustHook has a pointer receiver, so take the handler's address.
	eventHook := (&sutureslog.Handler{Logger: logger}).MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("streamweaver", rootSpec)
	tracking := suture.New("tracking-layer", childSpec)
	events := suture.New("events-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(tracking)
	root.Add(events)
	root.Add(api)

	return &Tree{
		root:     root,
		tracking: tracking,
		events:   events,
		api:      api,
		config:   config,
	}
}

// Root returns the root supervisor for direct access if needed.
func (t *Tree) Root() *suture.Supervisor {
	return t.root
}

// AddTrackingService supervises a service in the tracking layer. Use
// this for the bandwidth tracker.
func (t *Tree) AddTrackingService(svc suture.Service) suture.ServiceToken {
	return t.tracking.Add(svc)
}

// AddEventService supervises a service in the events layer. Use this
// for the websocket hub and feed.
func (t *Tree) AddEventService(svc suture.Service) suture.ServiceToken {
	return t.events.Add(svc)
}

// AddAPIService supervises a service in the API layer.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve starts the tree and blocks until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree in a goroutine; the returned channel
// receives the terminal error when the supervisor stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that failed to stop within the
// shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// Remove stops and removes a supervised service by token.
func (t *Tree) Remove(token suture.ServiceToken) error {
	return t.root.Remove(token)
}

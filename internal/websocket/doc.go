// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

/*
Package websocket pushes live state to connected frontend clients.

Two feeds flow through one hub: probe progress snapshots while a probe run
is active, and journal events (execution lifecycle, watch start/stop) as
they are published on the journal bus.

Key components:

  - Hub: central broker that owns the client set and fans broadcasts out
  - Client: one WebSocket connection with read/write pump goroutines
  - Feed: bridges the journal bus and the prober's counters onto the hub

A slow client whose send queue fills is dropped rather than allowed to
stall the hub.
*/
package websocket

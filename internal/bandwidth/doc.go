// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

/*
Package bandwidth polls the upstream stats endpoint and turns the
cumulative per-channel byte counters into daily bandwidth totals,
per-channel aggregates and per-client watch sessions.

# Sampling model

The upstream reports a monotonically increasing byte total per active
channel. Each poll takes the delta against the previous total (clamped
at zero across counter resets) and attributes it:

  - out: the delta itself, what the proxy served to clients
  - in: delta divided by the client count, approximating what the proxy
    pulled from the provider once per shared stream

Daily rows accumulate in the configured timezone, so totals roll over
at local midnight. Per-channel rows additionally track peak client
counts and watch seconds.

# Watch sessions

Client IPs are diffed between polls: a new IP opens a connection row
and emits a watch:start journal event, a departed IP closes its rows,
and a channel vanishing from the sample closes everything and emits
watch:stop. Open rows survive restarts; they are reloaded from the
database at construction.

Rows older than the retention window are purged once per day.
*/
package bandwidth

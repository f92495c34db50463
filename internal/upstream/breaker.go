// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package upstream

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/streamweaver/internal/logging"
	"github.com/tomtom215/streamweaver/internal/metrics"
	"github.com/tomtom215/streamweaver/internal/models"
)

// BreakerClient wraps a Client with a circuit breaker so a dead upstream
// fails fast instead of tying up pollers and pipeline runs.
//
// 404s pass through as successes: they are meaningful answers (idempotent
// deletes, missing logos), not upstream failures.
type BreakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker[any]
}

var _ Client = (*BreakerClient)(nil)

// NewBreakerClient wraps client with a circuit breaker named "upstream-api".
// The breaker opens after a 60% failure rate over at least 10 requests,
// resets its counts every minute, and probes recovery after 30 seconds.
func NewBreakerClient(client Client) *BreakerClient {
	const name = "upstream-api"

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsNotFound(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Upstream circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &BreakerClient{inner: client, cb: cb}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// execute runs fn through the breaker, preserving the inner error.
func execute[T any](b *BreakerClient, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

func (b *BreakerClient) ListChannels(ctx context.Context, page, pageSize int, search, group string) (*ChannelPage, error) {
	return execute(b, func() (*ChannelPage, error) {
		return b.inner.ListChannels(ctx, page, pageSize, search, group)
	})
}

func (b *BreakerClient) GetChannel(ctx context.Context, id int) (*models.Channel, error) {
	return execute(b, func() (*models.Channel, error) { return b.inner.GetChannel(ctx, id) })
}

func (b *BreakerClient) CreateChannel(ctx context.Context, data map[string]any) (*models.Channel, error) {
	return execute(b, func() (*models.Channel, error) { return b.inner.CreateChannel(ctx, data) })
}

func (b *BreakerClient) UpdateChannel(ctx context.Context, id int, data map[string]any) (*models.Channel, error) {
	return execute(b, func() (*models.Channel, error) { return b.inner.UpdateChannel(ctx, id, data) })
}

func (b *BreakerClient) DeleteChannel(ctx context.Context, id int) error {
	_, err := execute(b, func() (struct{}, error) { return struct{}{}, b.inner.DeleteChannel(ctx, id) })
	return err
}

func (b *BreakerClient) AssignChannelNumbers(ctx context.Context, ids []int, starting float64) error {
	_, err := execute(b, func() (struct{}, error) {
		return struct{}{}, b.inner.AssignChannelNumbers(ctx, ids, starting)
	})
	return err
}

func (b *BreakerClient) ListChannelGroups(ctx context.Context) ([]models.Group, error) {
	return execute(b, func() ([]models.Group, error) { return b.inner.ListChannelGroups(ctx) })
}

func (b *BreakerClient) CreateChannelGroup(ctx context.Context, name string) (*models.Group, error) {
	return execute(b, func() (*models.Group, error) { return b.inner.CreateChannelGroup(ctx, name) })
}

func (b *BreakerClient) UpdateChannelGroup(ctx context.Context, id int, data map[string]any) (*models.Group, error) {
	return execute(b, func() (*models.Group, error) { return b.inner.UpdateChannelGroup(ctx, id, data) })
}

func (b *BreakerClient) DeleteChannelGroup(ctx context.Context, id int) error {
	_, err := execute(b, func() (struct{}, error) { return struct{}{}, b.inner.DeleteChannelGroup(ctx, id) })
	return err
}

func (b *BreakerClient) ListStreams(ctx context.Context, page, pageSize, providerID int) (*StreamPage, error) {
	return execute(b, func() (*StreamPage, error) { return b.inner.ListStreams(ctx, page, pageSize, providerID) })
}

func (b *BreakerClient) ListProviders(ctx context.Context) ([]models.Provider, error) {
	return execute(b, func() ([]models.Provider, error) { return b.inner.ListProviders(ctx) })
}

func (b *BreakerClient) GetProvider(ctx context.Context, id int) (*models.Provider, error) {
	return execute(b, func() (*models.Provider, error) { return b.inner.GetProvider(ctx, id) })
}

func (b *BreakerClient) RefreshProvider(ctx context.Context, id int) error {
	_, err := execute(b, func() (struct{}, error) { return struct{}{}, b.inner.RefreshProvider(ctx, id) })
	return err
}

func (b *BreakerClient) RefreshAllProviders(ctx context.Context) error {
	_, err := execute(b, func() (struct{}, error) { return struct{}{}, b.inner.RefreshAllProviders(ctx) })
	return err
}

func (b *BreakerClient) CreateLogo(ctx context.Context, name, logoURL string) (*models.Logo, error) {
	return execute(b, func() (*models.Logo, error) { return b.inner.CreateLogo(ctx, name, logoURL) })
}

func (b *BreakerClient) FindLogoByURL(ctx context.Context, logoURL string) (*models.Logo, error) {
	return execute(b, func() (*models.Logo, error) { return b.inner.FindLogoByURL(ctx, logoURL) })
}

func (b *BreakerClient) UploadLogoFile(ctx context.Context, name, filename string, data []byte, mime string) (*models.Logo, error) {
	return execute(b, func() (*models.Logo, error) {
		return b.inner.UploadLogoFile(ctx, name, filename, data, mime)
	})
}

func (b *BreakerClient) ListEpgSources(ctx context.Context) ([]models.EpgSource, error) {
	return execute(b, func() ([]models.EpgSource, error) { return b.inner.ListEpgSources(ctx) })
}

func (b *BreakerClient) GetEpgData(ctx context.Context, sourceID int) ([]models.EpgData, error) {
	return execute(b, func() ([]models.EpgData, error) { return b.inner.GetEpgData(ctx, sourceID) })
}

func (b *BreakerClient) RefreshEpgSource(ctx context.Context, id int) error {
	_, err := execute(b, func() (struct{}, error) { return struct{}{}, b.inner.RefreshEpgSource(ctx, id) })
	return err
}

func (b *BreakerClient) GetChannelStats(ctx context.Context) (*models.StatsSnapshot, error) {
	return execute(b, func() (*models.StatsSnapshot, error) { return b.inner.GetChannelStats(ctx) })
}

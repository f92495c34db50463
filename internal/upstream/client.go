// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package upstream defines the typed client contract for the external IPTV
// backend and provides a REST implementation with circuit-breaker
// protection.
//
// All orchestration components (pipeline engine, prober, bandwidth tracker)
// depend only on the Client interface; the REST implementation is wired in
// at startup.
package upstream

import (
	"context"
	"time"

	"github.com/tomtom215/streamweaver/internal/models"
)

// ChannelPage is one page of a paginated channel listing.
type ChannelPage struct {
	Count   int              `json:"count"`
	Next    string           `json:"next,omitempty"`
	Results []models.Channel `json:"results"`
}

// StreamPage is one page of a paginated stream listing.
type StreamPage struct {
	Count   int             `json:"count"`
	Next    string          `json:"next,omitempty"`
	Results []models.Stream `json:"results"`
}

// Client is the typed contract against the upstream IPTV backend.
//
// Deletes are idempotent: a 404 from the upstream is reported as
// ErrNotFound, which callers treat as success when tearing entities down.
type Client interface {
	// Channels
	ListChannels(ctx context.Context, page, pageSize int, search, group string) (*ChannelPage, error)
	GetChannel(ctx context.Context, id int) (*models.Channel, error)
	CreateChannel(ctx context.Context, data map[string]any) (*models.Channel, error)
	UpdateChannel(ctx context.Context, id int, data map[string]any) (*models.Channel, error)
	DeleteChannel(ctx context.Context, id int) error
	AssignChannelNumbers(ctx context.Context, ids []int, starting float64) error

	// Channel groups
	ListChannelGroups(ctx context.Context) ([]models.Group, error)
	CreateChannelGroup(ctx context.Context, name string) (*models.Group, error)
	UpdateChannelGroup(ctx context.Context, id int, data map[string]any) (*models.Group, error)
	DeleteChannelGroup(ctx context.Context, id int) error

	// Streams and providers
	ListStreams(ctx context.Context, page, pageSize, providerID int) (*StreamPage, error)
	ListProviders(ctx context.Context) ([]models.Provider, error)
	GetProvider(ctx context.Context, id int) (*models.Provider, error)
	RefreshProvider(ctx context.Context, id int) error
	RefreshAllProviders(ctx context.Context) error

	// Logos
	CreateLogo(ctx context.Context, name, url string) (*models.Logo, error)
	FindLogoByURL(ctx context.Context, url string) (*models.Logo, error)
	UploadLogoFile(ctx context.Context, name, filename string, data []byte, mime string) (*models.Logo, error)

	// EPG
	ListEpgSources(ctx context.Context) ([]models.EpgSource, error)
	GetEpgData(ctx context.Context, sourceID int) ([]models.EpgData, error)
	RefreshEpgSource(ctx context.Context, id int) error

	// Live stats
	GetChannelStats(ctx context.Context) (*models.StatsSnapshot, error)
}

// AllChannels drains the paginated channel listing into one slice.
func AllChannels(ctx context.Context, c Client, pageSize int) ([]models.Channel, error) {
	var out []models.Channel
	for page := 1; ; page++ {
		p, err := c.ListChannels(ctx, page, pageSize, "", "")
		if err != nil {
			return nil, err
		}
		out = append(out, p.Results...)
		if p.Next == "" || len(p.Results) == 0 {
			break
		}
	}
	return out, nil
}

// AllStreams drains the paginated stream listing for one provider.
// providerID zero lists streams of every provider.
func AllStreams(ctx context.Context, c Client, pageSize, providerID int) ([]models.Stream, error) {
	var out []models.Stream
	for page := 1; ; page++ {
		p, err := c.ListStreams(ctx, page, pageSize, providerID)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Results...)
		if p.Next == "" || len(p.Results) == 0 {
			break
		}
	}
	return out, nil
}

// WaitForProviderRefresh polls GetProvider until UpdatedAt moves past the
// given marker or the context expires.
func WaitForProviderRefresh(ctx context.Context, c Client, id int, since string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p, err := c.GetProvider(ctx, id)
			if err != nil {
				return err
			}
			if p.UpdatedAt != "" && p.UpdatedAt != since {
				return nil
			}
		}
	}
}

// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/streamweaver/internal/metrics"
	"github.com/tomtom215/streamweaver/internal/models"
)

// RESTClient implements Client against the upstream HTTP API.
type RESTClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

var _ Client = (*RESTClient)(nil)

// NewRESTClient creates an upstream REST client.
func NewRESTClient(baseURL, apiToken string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// do issues one request and decodes a JSON body into out when out is
// non-nil. 404 maps to ErrNotFound, other non-2xx to *StatusError.
func (c *RESTClient) do(ctx context.Context, operation, method, path string, body, out any) error {
	start := time.Now()
	err := c.doOnce(ctx, method, path, body, out)
	metrics.UpstreamRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
		if IsNotFound(err) {
			status = "not_found"
		}
	}
	metrics.UpstreamRequests.WithLabelValues(operation, status).Inc()
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

func (c *RESTClient) doOnce(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Operation: method + " " + path, Code: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *RESTClient) authorize(req *http.Request) {
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
}

// ListChannels fetches one page of channels.
func (c *RESTClient) ListChannels(ctx context.Context, page, pageSize int, search, group string) (*ChannelPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	if search != "" {
		q.Set("search", search)
	}
	if group != "" {
		q.Set("group", group)
	}
	var out ChannelPage
	if err := c.do(ctx, "list_channels", http.MethodGet, "/api/channels/?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetChannel fetches one channel with its full stream assignment list.
func (c *RESTClient) GetChannel(ctx context.Context, id int) (*models.Channel, error) {
	var out models.Channel
	if err := c.do(ctx, "get_channel", http.MethodGet, fmt.Sprintf("/api/channels/%d/", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateChannel creates a channel from a partial field map.
func (c *RESTClient) CreateChannel(ctx context.Context, data map[string]any) (*models.Channel, error) {
	var out models.Channel
	if err := c.do(ctx, "create_channel", http.MethodPost, "/api/channels/", data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateChannel patches a channel. A {"streams": [...]} body replaces the
// stream assignment set.
func (c *RESTClient) UpdateChannel(ctx context.Context, id int, data map[string]any) (*models.Channel, error) {
	var out models.Channel
	if err := c.do(ctx, "update_channel", http.MethodPatch, fmt.Sprintf("/api/channels/%d/", id), data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteChannel removes a channel. 404 surfaces as ErrNotFound.
func (c *RESTClient) DeleteChannel(ctx context.Context, id int) error {
	return c.do(ctx, "delete_channel", http.MethodDelete, fmt.Sprintf("/api/channels/%d/", id), nil, nil)
}

// AssignChannelNumbers bulk-renumbers the given channels starting at the
// given number, in slice order.
func (c *RESTClient) AssignChannelNumbers(ctx context.Context, ids []int, starting float64) error {
	body := map[string]any{"channel_ids": ids, "starting_number": starting}
	return c.do(ctx, "assign_channel_numbers", http.MethodPost, "/api/channels/assign-numbers/", body, nil)
}

// ListChannelGroups fetches all channel groups.
func (c *RESTClient) ListChannelGroups(ctx context.Context) ([]models.Group, error) {
	var out []models.Group
	if err := c.do(ctx, "list_channel_groups", http.MethodGet, "/api/channel-groups/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateChannelGroup creates a channel group by name.
func (c *RESTClient) CreateChannelGroup(ctx context.Context, name string) (*models.Group, error) {
	var out models.Group
	if err := c.do(ctx, "create_channel_group", http.MethodPost, "/api/channel-groups/", map[string]any{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateChannelGroup patches a channel group.
func (c *RESTClient) UpdateChannelGroup(ctx context.Context, id int, data map[string]any) (*models.Group, error) {
	var out models.Group
	if err := c.do(ctx, "update_channel_group", http.MethodPatch, fmt.Sprintf("/api/channel-groups/%d/", id), data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteChannelGroup removes a channel group.
func (c *RESTClient) DeleteChannelGroup(ctx context.Context, id int) error {
	return c.do(ctx, "delete_channel_group", http.MethodDelete, fmt.Sprintf("/api/channel-groups/%d/", id), nil, nil)
}

// ListStreams fetches one page of provider streams. providerID zero lists
// streams of every provider.
func (c *RESTClient) ListStreams(ctx context.Context, page, pageSize, providerID int) (*StreamPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	if providerID > 0 {
		q.Set("m3u_account", strconv.Itoa(providerID))
	}
	var out StreamPage
	if err := c.do(ctx, "list_streams", http.MethodGet, "/api/streams/?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListProviders fetches all M3U accounts with their profiles.
func (c *RESTClient) ListProviders(ctx context.Context) ([]models.Provider, error) {
	var out []models.Provider
	if err := c.do(ctx, "list_providers", http.MethodGet, "/api/m3u-accounts/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProvider fetches one M3U account.
func (c *RESTClient) GetProvider(ctx context.Context, id int) (*models.Provider, error) {
	var out models.Provider
	if err := c.do(ctx, "get_provider", http.MethodGet, fmt.Sprintf("/api/m3u-accounts/%d/", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshProvider triggers an async refresh of one provider feed.
// Completion is observed by polling GetProvider.UpdatedAt.
func (c *RESTClient) RefreshProvider(ctx context.Context, id int) error {
	return c.do(ctx, "refresh_provider", http.MethodPost, fmt.Sprintf("/api/m3u-accounts/%d/refresh/", id), nil, nil)
}

// RefreshAllProviders triggers an async refresh of every provider feed.
func (c *RESTClient) RefreshAllProviders(ctx context.Context) error {
	return c.do(ctx, "refresh_all_providers", http.MethodPost, "/api/m3u-accounts/refresh/", nil, nil)
}

// CreateLogo registers a logo by URL.
func (c *RESTClient) CreateLogo(ctx context.Context, name, logoURL string) (*models.Logo, error) {
	var out models.Logo
	body := map[string]any{"name": name, "url": logoURL}
	if err := c.do(ctx, "create_logo", http.MethodPost, "/api/logos/", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindLogoByURL looks a logo up by exact URL. Returns ErrNotFound when the
// upstream has no logo with that URL.
func (c *RESTClient) FindLogoByURL(ctx context.Context, logoURL string) (*models.Logo, error) {
	q := url.Values{}
	q.Set("url", logoURL)
	var out []models.Logo
	if err := c.do(ctx, "find_logo_by_url", http.MethodGet, "/api/logos/?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

// UploadLogoFile uploads logo image bytes as multipart form data.
func (c *RESTClient) UploadLogoFile(ctx context.Context, name, filename string, data []byte, mime string) (*models.Logo, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("name", name); err != nil {
		return nil, err
	}
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/logos/upload/", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload_logo_file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Operation: "upload_logo_file", Code: resp.StatusCode, Body: string(b)}
	}
	var out models.Logo
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("upload_logo_file: decode response: %w", err)
	}
	return &out, nil
}

// ListEpgSources fetches all EPG sources.
func (c *RESTClient) ListEpgSources(ctx context.Context) ([]models.EpgSource, error) {
	var out []models.EpgSource
	if err := c.do(ctx, "list_epg_sources", http.MethodGet, "/api/epg/sources/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEpgData fetches the data entries of one EPG source.
func (c *RESTClient) GetEpgData(ctx context.Context, sourceID int) ([]models.EpgData, error) {
	var out []models.EpgData
	path := fmt.Sprintf("/api/epg/sources/%d/data/", sourceID)
	if err := c.do(ctx, "get_epg_data", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RefreshEpgSource triggers an async refresh of one EPG source.
func (c *RESTClient) RefreshEpgSource(ctx context.Context, id int) error {
	return c.do(ctx, "refresh_epg_source", http.MethodPost, fmt.Sprintf("/api/epg/sources/%d/refresh/", id), nil, nil)
}

// GetChannelStats fetches the live per-channel stats snapshot.
func (c *RESTClient) GetChannelStats(ctx context.Context) (*models.StatsSnapshot, error) {
	var out models.StatsSnapshot
	if err := c.do(ctx, "get_channel_stats", http.MethodGet, "/api/stats/channels/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

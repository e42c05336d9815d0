// Package bazarr nudges a Bazarr instance to rescan after subgen writes a
// subtitle, so Bazarr's index stays accurate.
package bazarr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"subgen/internal/config"
	"subgen/internal/logging"
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to the Bazarr REST API.
type Client struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
	logger  *slog.Logger
}

// New builds a client; Configured reports false when url or key is blank.
func New(cfg config.Bazarr, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logging.WithComponent(logger, "bazarr"),
	}
}

// Configured reports whether the client has a URL and API key.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// Test checks connectivity against the system status endpoint.
func (c *Client) Test(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/system/status", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bazarr status endpoint returned %d", resp.StatusCode)
	}
	return nil
}

type listResponse struct {
	Data []json.RawMessage `json:"data"`
}

type seriesEntry struct {
	Path     string `json:"path"`
	SonarrID int64  `json:"sonarrSeriesId"`
}

type movieEntry struct {
	Path     string `json:"path"`
	RadarrID int64  `json:"radarrId"`
}

// SeriesIDByPath finds the Sonarr series whose root path contains
// mediaPath, or 0 when none matches.
func (c *Client) SeriesIDByPath(ctx context.Context, mediaPath string) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/series", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("bazarr series list returned %d", resp.StatusCode)
	}
	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return 0, fmt.Errorf("decode series list: %w", err)
	}
	for _, raw := range list.Data {
		var entry seriesEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if entry.Path != "" && strings.HasPrefix(mediaPath, entry.Path) {
			return entry.SonarrID, nil
		}
	}
	return 0, nil
}

// MovieIDByPath finds the Radarr movie whose directory contains mediaPath,
// or 0 when none matches.
func (c *Client) MovieIDByPath(ctx context.Context, mediaPath string) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/movies", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("bazarr movie list returned %d", resp.StatusCode)
	}
	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return 0, fmt.Errorf("decode movie list: %w", err)
	}
	for _, raw := range list.Data {
		var entry movieEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if entry.Path != "" && strings.HasPrefix(mediaPath, entry.Path) {
			return entry.RadarrID, nil
		}
	}
	return 0, nil
}

// ScanSeries triggers a disk scan for one series.
func (c *Client) ScanSeries(ctx context.Context, seriesID int64) error {
	query := url.Values{
		"seriesid": {strconv.FormatInt(seriesID, 10)},
		"action":   {"scan-disk"},
	}
	return c.expectNoContent(ctx, http.MethodPatch, "/api/series", query)
}

// ScanMovie triggers a disk scan for one movie.
func (c *Client) ScanMovie(ctx context.Context, movieID int64) error {
	query := url.Values{
		"radarrid": {strconv.FormatInt(movieID, 10)},
		"action":   {"scan-disk"},
	}
	return c.expectNoContent(ctx, http.MethodPatch, "/api/movies", query)
}

// ScanAll triggers the full series and movie indexing tasks.
func (c *Client) ScanAll(ctx context.Context) error {
	seriesErr := c.expectNoContent(ctx, http.MethodPost, "/api/system/tasks", url.Values{"taskid": {"update_series"}})
	movieErr := c.expectNoContent(ctx, http.MethodPost, "/api/system/tasks", url.Values{"taskid": {"update_movies"}})
	if seriesErr != nil && movieErr != nil {
		return fmt.Errorf("bazarr full scan failed: %w", seriesErr)
	}
	return nil
}

// NotifySubtitleWritten tells Bazarr a new subtitle exists for mediaPath.
// It scans the owning series or movie when one matches the path, and falls
// back to a full scan otherwise.
func (c *Client) NotifySubtitleWritten(ctx context.Context, mediaPath string) error {
	if !c.Configured() {
		return nil
	}
	if seriesID, err := c.SeriesIDByPath(ctx, mediaPath); err == nil && seriesID != 0 {
		return c.ScanSeries(ctx, seriesID)
	}
	if movieID, err := c.MovieIDByPath(ctx, mediaPath); err == nil && movieID != 0 {
		return c.ScanMovie(ctx, movieID)
	}
	return c.ScanAll(ctx)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build bazarr request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bazarr request: %w", err)
	}
	return resp, nil
}

func (c *Client) expectNoContent(ctx context.Context, method, path string, query url.Values) error {
	resp, err := c.do(ctx, method, path, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("bazarr %s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

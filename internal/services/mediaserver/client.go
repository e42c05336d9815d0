// Package mediaserver tells Plex, Jellyfin, or Emby to pick up freshly
// written subtitles.
package mediaserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"subgen/internal/config"
	"subgen/internal/logging"
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Refresher asks a media server to rescan the directory holding a file.
type Refresher interface {
	Name() string
	Refresh(ctx context.Context, mediaPath string) error
}

type kind int

const (
	kindPlex kind = iota
	kindJellyfin
	kindEmby
)

// Client refreshes one media server's library.
type Client struct {
	name    string
	kind    kind
	baseURL string
	token   string
	client  HTTPDoer
	logger  *slog.Logger
}

func newClient(name string, k kind, cfg config.MediaServer, logger *slog.Logger) *Client {
	return &Client{
		name:    name,
		kind:    k,
		baseURL: strings.TrimRight(cfg.Server, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logging.WithComponent(logger, name),
	}
}

// NewPlex builds a Plex refresher.
func NewPlex(cfg config.MediaServer, logger *slog.Logger) *Client {
	return newClient("plex", kindPlex, cfg, logger)
}

// NewJellyfin builds a Jellyfin refresher.
func NewJellyfin(cfg config.MediaServer, logger *slog.Logger) *Client {
	return newClient("jellyfin", kindJellyfin, cfg, logger)
}

// NewEmby builds an Emby refresher. Emby speaks the same media-updated
// API as Jellyfin.
func NewEmby(cfg config.MediaServer, logger *slog.Logger) *Client {
	return newClient("emby", kindEmby, cfg, logger)
}

// FromConfig returns a refresher for every configured media server.
func FromConfig(cfg *config.Config, logger *slog.Logger) []Refresher {
	var refreshers []Refresher
	if cfg.Plex.Configured() {
		refreshers = append(refreshers, NewPlex(cfg.Plex, logger))
	}
	if cfg.Jellyfin.Configured() {
		refreshers = append(refreshers, NewJellyfin(cfg.Jellyfin, logger))
	}
	if cfg.Emby.Configured() {
		refreshers = append(refreshers, NewEmby(cfg.Emby, logger))
	}
	return refreshers
}

// Name identifies the server in logs.
func (c *Client) Name() string { return c.name }

// Refresh asks the server to rescan the directory containing mediaPath.
func (c *Client) Refresh(ctx context.Context, mediaPath string) error {
	switch c.kind {
	case kindPlex:
		return c.refreshPlex(ctx, mediaPath)
	default:
		return c.refreshMediaBrowser(ctx, mediaPath)
	}
}

func (c *Client) refreshPlex(ctx context.Context, mediaPath string) error {
	query := url.Values{
		"path":         {filepath.Dir(mediaPath)},
		"X-Plex-Token": {c.token},
	}
	target := c.baseURL + "/library/sections/all/refresh?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build plex refresh request: %w", err)
	}
	return c.execute(req)
}

type mediaUpdate struct {
	Path       string `json:"Path"`
	UpdateType string `json:"UpdateType"`
}

type mediaUpdatedPayload struct {
	Updates []mediaUpdate `json:"Updates"`
}

func (c *Client) refreshMediaBrowser(ctx context.Context, mediaPath string) error {
	body, err := json.Marshal(mediaUpdatedPayload{
		Updates: []mediaUpdate{{Path: filepath.Dir(mediaPath), UpdateType: "Modified"}},
	})
	if err != nil {
		return fmt.Errorf("encode media update: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Library/Media/Updated", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s refresh request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Emby-Token", c.token)
	return c.execute(req)
}

func (c *Client) execute(req *http.Request) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s refresh: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s refresh returned status %d: %s", c.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if c.logger != nil {
		c.logger.Debug("library refresh requested", logging.String("url", req.URL.Path))
	}
	return nil
}

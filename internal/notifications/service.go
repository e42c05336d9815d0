package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"subgen/internal/config"
)

const userAgent = "Subgen-Go/0.1.0"

const pushoverEndpoint = "https://api.pushover.net/1/messages.json"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyTranscriptionFailed(ctx context.Context, mediaPath string, err error) error
	NotifySessionCompleted(ctx context.Context, processed, skipped, failed int, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by Pushover when
// configured. Without credentials a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if !cfg.Pushover.Configured() {
		return noopService{}
	}
	return &pushoverService{
		endpoint:        pushoverEndpoint,
		userKey:         cfg.Pushover.UserKey,
		apiToken:        cfg.Pushover.APIToken,
		notifyOnFailure: cfg.Pushover.NotifyOnFailure,
		client:          &http.Client{Timeout: 10 * time.Second},
	}
}

type pushoverService struct {
	endpoint        string
	userKey         string
	apiToken        string
	notifyOnFailure bool
	client          *http.Client
}

func (p *pushoverService) NotifyTranscriptionFailed(ctx context.Context, mediaPath string, err error) error {
	if !p.notifyOnFailure {
		return nil
	}
	detail := "unknown error"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	return p.send(ctx, "Subgen - Transcription Failed",
		fmt.Sprintf("Failed: %s\n%s", mediaPath, detail), "1")
}

func (p *pushoverService) NotifySessionCompleted(ctx context.Context, processed, skipped, failed int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	title := "Subgen - Batch Complete"
	if failed > 0 {
		title = "Subgen - Batch Complete (with errors)"
	}
	message := fmt.Sprintf("%d transcribed, %d skipped, %d failed in %s",
		processed, skipped, failed, duration)
	return p.send(ctx, title, message, "0")
}

func (p *pushoverService) TestNotification(ctx context.Context) error {
	return p.send(ctx, "Subgen - Test", "Notification system test", "-1")
}

func (p *pushoverService) send(ctx context.Context, title, message, priority string) error {
	if p == nil || p.client == nil {
		return nil
	}
	form := url.Values{
		"token":    {p.apiToken},
		"user":     {p.userKey},
		"title":    {title},
		"message":  {message},
		"priority": {priority},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send pushover notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("pushover returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyTranscriptionFailed(context.Context, string, error) error { return nil }
func (noopService) NotifySessionCompleted(context.Context, int, int, int, time.Duration) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }

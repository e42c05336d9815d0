package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// apiClient is a thin JSON client for the subgend HTTP API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(address string) *apiClient {
	address = strings.TrimSpace(address)
	if address == "" {
		address = "127.0.0.1:9000"
	}
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}
	return &apiClient{
		baseURL: strings.TrimRight(address, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *apiClient) postJSON(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(encoded), "application/json", out)
}

func (c *apiClient) post(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, "", out)
}

func (c *apiClient) delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, "", out)
}

// postFile uploads a local file as the multipart "audio_file" field the
// ASR endpoints expect.
func (c *apiClient) postFile(ctx context.Context, path, filePath string, out any) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", filePath, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio_file", filepath.Base(filePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, &body, writer.FormDataContentType(), out)
}

// View payloads mirrored from the daemon API.

type jobView struct {
	ID               int64   `json:"id"`
	SessionID        int64   `json:"session_id"`
	FilePath         string  `json:"file_path"`
	Language         string  `json:"language"`
	DetectedLanguage string  `json:"detected_language,omitempty"`
	Status           string  `json:"status"`
	SubtitlePath     string  `json:"subtitle_path,omitempty"`
	SkipReason       string  `json:"skip_reason,omitempty"`
	Error            string  `json:"error,omitempty"`
	SegmentsCount    int     `json:"segments_count,omitempty"`
	DurationSeconds  float64 `json:"duration_seconds,omitempty"`
	CreatedAt        string  `json:"created_at"`
	CompletedAt      string  `json:"completed_at,omitempty"`
}

type skippedPathView struct {
	FilePath string `json:"file_path"`
	Reason   string `json:"reason"`
}

type sessionView struct {
	ID           int64             `json:"session_id"`
	Source       string            `json:"source"`
	Status       string            `json:"status"`
	TotalFiles   int               `json:"total_files"`
	Pending      int               `json:"pending"`
	InProgress   int               `json:"in_progress"`
	Completed    int               `json:"completed"`
	Skipped      int               `json:"skipped"`
	Failed       int               `json:"failed"`
	Cancelled    int               `json:"cancelled"`
	SkippedPaths []skippedPathView `json:"skipped_paths,omitempty"`
	CreatedAt    string            `json:"created_at"`
}

type sessionDetail struct {
	sessionView
	Jobs []jobView `json:"jobs"`
}

func (s *sessionDetail) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &s.sessionView); err != nil {
		return err
	}
	var jobs struct {
		Jobs []jobView `json:"jobs"`
	}
	if err := json.Unmarshal(data, &jobs); err != nil {
		return err
	}
	s.Jobs = jobs.Jobs
	return nil
}

type batchResponse struct {
	SessionID    int64             `json:"session_id"`
	JobCount     int               `json:"job_count"`
	Jobs         []jobView         `json:"jobs"`
	SkippedPaths []skippedPathView `json:"skipped_paths"`
}

type statusResponse struct {
	Running      bool           `json:"running"`
	Version      string         `json:"version"`
	DatabasePath string         `json:"database_path"`
	Gate         gateView       `json:"gate"`
	Jobs         map[string]int `json:"jobs"`
}

type gateView struct {
	Capacity int `json:"capacity"`
	InUse    int `json:"in_use"`
}

type detectResponse struct {
	DetectedLanguage string `json:"detected_language"`
	LanguageCode     string `json:"language_code"`
}

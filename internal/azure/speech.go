package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"subgen/internal/logging"
	"subgen/internal/taxonomy"
)

const (
	speechAPIVersion = "v3.2"

	// connectTimeout/requestTimeout mirror the service's guidance for
	// long-running result downloads.
	connectTimeout = 30 * time.Second
	requestTimeout = 600 * time.Second
)

// Transcription statuses reported by the batch API.
const (
	StatusNotStarted = "NotStarted"
	StatusRunning    = "Running"
	StatusSucceeded  = "Succeeded"
	StatusFailed     = "Failed"
)

// SpeechClient drives the Azure batch transcription API.
type SpeechClient struct {
	key      string
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

// NewSpeechClient builds a client for a region, e.g. "swedencentral".
func NewSpeechClient(key, region string, logger *slog.Logger) *SpeechClient {
	return &SpeechClient{
		key:      key,
		endpoint: fmt.Sprintf("https://%s.api.cognitive.microsoft.com/speechtotext/%s", strings.ToLower(region), speechAPIVersion),
		http:     newHTTPClient(),
		logger:   logging.WithComponent(logger, "azure-speech"),
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: requestTimeout,
		},
	}
}

// SetEndpoint overrides the API base URL. Used by tests.
func (c *SpeechClient) SetEndpoint(endpoint string) {
	c.endpoint = strings.TrimRight(endpoint, "/")
}

// CreateRequest describes one batch transcription to start.
type CreateRequest struct {
	DisplayName      string
	Locale           string
	ContentURL       string
	CandidateLocales []string
}

type transcriptionPayload struct {
	DisplayName string                  `json:"displayName"`
	Locale      string                  `json:"locale"`
	ContentURLs []string                `json:"contentUrls"`
	Properties  transcriptionProperties `json:"properties"`
}

type transcriptionProperties struct {
	WordLevelTimestampsEnabled bool                    `json:"wordLevelTimestampsEnabled"`
	PunctuationMode            string                  `json:"punctuationMode"`
	ProfanityFilterMode        string                  `json:"profanityFilterMode"`
	LanguageIdentification     *languageIdentification `json:"languageIdentification,omitempty"`
}

type languageIdentification struct {
	CandidateLocales []string `json:"candidateLocales"`
	Mode             string   `json:"mode"`
}

// Transcription is the service's view of a batch job.
type Transcription struct {
	ID     string
	Status string
	Error  string
}

type transcriptionResponse struct {
	Self       string `json:"self"`
	Status     string `json:"status"`
	Properties struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"properties"`
}

func (r transcriptionResponse) toTranscription() Transcription {
	t := Transcription{
		ID:     lastPathSegment(r.Self),
		Status: r.Status,
	}
	if r.Properties.Error.Message != "" {
		t.Error = r.Properties.Error.Message
	} else if r.Properties.Error.Code != "" {
		t.Error = r.Properties.Error.Code
	}
	return t
}

// Create starts a batch transcription and returns its identifier.
func (c *SpeechClient) Create(ctx context.Context, req CreateRequest) (Transcription, error) {
	payload := transcriptionPayload{
		DisplayName: req.DisplayName,
		Locale:      req.Locale,
		ContentURLs: []string{req.ContentURL},
		Properties: transcriptionProperties{
			WordLevelTimestampsEnabled: true,
			PunctuationMode:            "DictatedAndAutomatic",
			ProfanityFilterMode:        "None",
		},
	}
	if len(req.CandidateLocales) > 1 {
		payload.Properties.LanguageIdentification = &languageIdentification{
			CandidateLocales: req.CandidateLocales,
			Mode:             "Single",
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Transcription{}, taxonomy.Wrap(taxonomy.ErrValidation, "azure-speech", "create", "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/transcriptions", bytes.NewReader(body))
	if err != nil {
		return Transcription{}, taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "create", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Transcription{}, taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "create", "submit transcription", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return Transcription{}, apiError("create", resp)
	}

	var decoded transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Transcription{}, taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "create", "decode response", err)
	}
	t := decoded.toTranscription()
	if t.ID == "" {
		return Transcription{}, taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "create", "response carried no transcription id", nil)
	}
	if c.logger != nil {
		c.logger.Debug("transcription created", logging.String("transcription_id", t.ID), logging.String("locale", req.Locale))
	}
	return t, nil
}

// Get fetches the current status of a transcription.
func (c *SpeechClient) Get(ctx context.Context, id string) (Transcription, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/transcriptions/"+id, nil)
	if err != nil {
		return Transcription{}, taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "get", "build request", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Transcription{}, taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "get", "fetch transcription", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Transcription{}, taxonomy.Wrap(taxonomy.ErrNotFound, "azure-speech", "get", "transcription "+id, nil)
	}
	if resp.StatusCode != http.StatusOK {
		return Transcription{}, apiError("get", resp)
	}

	var decoded transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Transcription{}, taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "get", "decode response", err)
	}
	t := decoded.toTranscription()
	if t.ID == "" {
		t.ID = id
	}
	return t, nil
}

type filesResponse struct {
	Values []struct {
		Kind  string `json:"kind"`
		Links struct {
			ContentURL string `json:"contentUrl"`
		} `json:"links"`
	} `json:"values"`
}

// ResultURL finds the content URL of the transcription result file.
func (c *SpeechClient) ResultURL(ctx context.Context, id string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/transcriptions/"+id+"/files", nil)
	if err != nil {
		return "", taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "files", "build request", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "files", "list files", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError("files", resp)
	}

	var decoded filesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "files", "decode response", err)
	}
	for _, file := range decoded.Values {
		if file.Kind == "Transcription" && file.Links.ContentURL != "" {
			return file.Links.ContentURL, nil
		}
	}
	return "", taxonomy.Wrap(taxonomy.ErrNotFound, "azure-speech", "files", "no transcription result file", nil)
}

// FetchResult downloads and parses the result file for a transcription.
func (c *SpeechClient) FetchResult(ctx context.Context, id string) (Result, error) {
	url, err := c.ResultURL(ctx, id)
	if err != nil {
		return Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "result", "build request", err)
	}
	// The content URL is pre-signed; no subscription key needed.
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "result", "download result", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, apiError("result", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "result", "read result body", err)
	}
	return ParseResult(data)
}

// Delete removes a transcription from the service. Missing transcriptions
// and ones the service refuses to delete are treated as already gone.
func (c *SpeechClient) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint+"/transcriptions/"+id, nil)
	if err != nil {
		return taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "delete", "build request", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "delete", "delete transcription", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent, resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if strings.Contains(string(body), "DeleteNotAllowed") {
			return nil
		}
		return taxonomy.Wrap(taxonomy.ErrTransient, "azure-speech", "delete",
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
}

func apiError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	marker := taxonomy.ErrTransient
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		marker = taxonomy.ErrConfiguration
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		marker = taxonomy.ErrValidation
	}
	return taxonomy.Wrap(marker, "azure-speech", operation,
		fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
}

func lastPathSegment(url string) string {
	url = strings.TrimRight(url, "/")
	if idx := strings.LastIndexByte(url, '/'); idx >= 0 {
		return url[idx+1:]
	}
	return url
}

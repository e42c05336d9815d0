package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"subgen/internal/azure"
	"subgen/internal/config"
	"subgen/internal/orchestrator"
	"subgen/internal/store"
	"subgen/internal/subtitles"
	"subgen/internal/testsupport"
)

type fakeSpeech struct {
	mu      sync.Mutex
	creates []azure.CreateRequest
	result  azure.Result
}

func (f *fakeSpeech) Create(_ context.Context, req azure.CreateRequest) (azure.Transcription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, req)
	return azure.Transcription{ID: "t-1", Status: azure.StatusNotStarted}, nil
}

func (f *fakeSpeech) Get(context.Context, string) (azure.Transcription, error) {
	return azure.Transcription{ID: "t-1", Status: azure.StatusSucceeded}, nil
}

func (f *fakeSpeech) FetchResult(context.Context, string) (azure.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, nil
}

func (f *fakeSpeech) Delete(context.Context, string) error { return nil }

type fakeBlob struct{}

func (fakeBlob) Upload(context.Context, string, string) error { return nil }

func (fakeBlob) SASURL(blobName string, _ time.Duration) (string, error) {
	return "https://storage.invalid/" + blobName + "?sig=test", nil
}

func (fakeBlob) Delete(context.Context, string) error { return nil }

func testResult() azure.Result {
	return azure.Result{
		Segments: []subtitles.Segment{
			{Start: 0.0, End: 1.5, Text: "Hello there."},
			{Start: 2.0, End: 3.5, Text: "General greeting."},
		},
		Locales: map[string]int{"en-US": 2},
	}
}

func newTestServer(t *testing.T, opts ...testsupport.ConfigOption) (*Server, *fakeSpeech, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	speech := &fakeSpeech{result: testResult()}
	orch, err := orchestrator.New(cfg, st, speech, fakeBlob{}, nil,
		orchestrator.WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(orch.Close)
	return NewServer(cfg, orch, nil), speech, st
}

func multipartAudio(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func TestASRReturnsSRT(t *testing.T) {
	srv, speech, _ := newTestServer(t)

	body, contentType := multipartAudio(t, "audio_file", "clip.ogg", []byte("opus"))
	req := httptest.NewRequest(http.MethodPost, "/asr?language=en&output=srt", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Hello there.")
	require.True(t, strings.HasPrefix(rec.Body.String(), "1\n"))
	require.NotEmpty(t, rec.Header().Get("Source"))
	require.Len(t, speech.creates, 1)
	require.Equal(t, "en-US", speech.creates[0].Locale)
}

func TestASRJSONOutput(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body, contentType := multipartAudio(t, "audio_file", "clip.ogg", []byte("opus"))
	req := httptest.NewRequest(http.MethodPost, "/asr?language=en&output=json", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp asrResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Segments, 2)
	require.Equal(t, "en-US", resp.Language)
	require.Contains(t, resp.Text, "General greeting.")
}

func TestASRVTTOutput(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body, contentType := multipartAudio(t, "audio_file", "clip.ogg", []byte("opus"))
	req := httptest.NewRequest(http.MethodPost, "/asr?language=en&output=vtt", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Body.String(), "WEBVTT"))
}

func TestASRRawPCMGetsWAVContainer(t *testing.T) {
	samples := []byte{0x10, 0x20, 0x30, 0x40}

	parsed, err := url.Parse("/asr?encode=false&video_file=/media/show.mkv")
	require.NoError(t, err)
	require.True(t, wantsRawPCM(parsed.Query()))

	data, filename := wrapRawPCM(samples, "/media/show.mkv")
	require.Equal(t, "/media/show.wav", filename)
	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, "WAVE", string(data[8:12]))
	require.Equal(t, samples, data[44:])

	// No filename at all still stages as WAV.
	_, filename = wrapRawPCM(samples, "")
	require.Equal(t, "upload.wav", filename)

	// Default and explicit encode=true leave the payload alone.
	require.False(t, wantsRawPCM(url.Values{}))
	require.False(t, wantsRawPCM(url.Values{"encode": []string{"true"}}))
}

func TestASRGetExplains(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/asr", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "GET request")
}

func TestASREmptyUploadRejected(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body, contentType := multipartAudio(t, "audio_file", "clip.ogg", nil)
	req := httptest.NewRequest(http.MethodPost, "/asr?language=en", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetectLanguageForcedShortCircuit(t *testing.T) {
	srv, _, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Transcription.ForceLanguage = "nl"
	})

	body, contentType := multipartAudio(t, "audio_file", "clip.ogg", []byte("opus"))
	// Double slash alias must reach the handler, not a redirect.
	req := httptest.NewRequest(http.MethodPost, "//detect-language", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp detectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "nl", resp.LanguageCode)
	require.Equal(t, "Dutch", resp.DetectedLanguage)
}

func TestLanguagesList(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/asr/languages", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Languages []struct {
			Code          string `json:"code"`
			Name          string `json:"name"`
			ServiceLocale string `json:"service_locale"`
		} `json:"languages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Languages)
	found := false
	for _, lang := range resp.Languages {
		if lang.Code == "en" {
			found = true
			require.Equal(t, "en-US", lang.ServiceLocale)
		}
	}
	require.True(t, found)
}

func TestBatchSubmitRunsSession(t *testing.T) {
	srv, _, st := newTestServer(t)

	dir := t.TempDir()
	media := filepath.Join(dir, "a.ogg")
	require.NoError(t, os.WriteFile(media, []byte("opus"), 0o644))
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0o644))

	payload, err := json.Marshal(map[string]any{"files": []string{media, notes}, "language": "en"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/batch", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		SessionID    int64 `json:"session_id"`
		JobCount     int   `json:"job_count"`
		SkippedPaths []struct {
			FilePath string `json:"file_path"`
			Reason   string `json:"reason"`
		} `json:"skipped_paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.JobCount)
	require.Len(t, resp.SkippedPaths, 1)
	require.Equal(t, notes, resp.SkippedPaths[0].FilePath)
	require.Equal(t, "not a media file", resp.SkippedPaths[0].Reason)

	deadline := time.Now().Add(10 * time.Second)
	for {
		session, err := st.GetSession(context.Background(), resp.SessionID)
		require.NoError(t, err)
		require.NotNil(t, session)
		if session.Status.Terminal() {
			require.Equal(t, store.StatusCompleted, session.Status)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session %d did not finish, status %s", resp.SessionID, session.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBatchRejectsEmptySubmission(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/batch", strings.NewReader(`{"files":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionViewsAndCancel(t *testing.T) {
	srv, _, st := newTestServer(t)

	session, err := st.NewSession(context.Background(), "api", 1)
	require.NoError(t, err)
	job, err := st.NewJob(context.Background(), session.ID, "/media/a.mkv", "en")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"session_id"`)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/media/a.mkv")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/1/cancel", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelResp struct {
		SessionID    int64    `json:"session_id"`
		Cancelled    int64    `json:"cancelled"`
		CleanedBlobs int      `json:"cleaned_blobs"`
		Errors       []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelResp))
	require.Equal(t, session.ID, cancelResp.SessionID)
	require.Equal(t, int64(1), cancelResp.Cancelled)
	require.Zero(t, cancelResp.CleanedBlobs)
	require.Empty(t, cancelResp.Errors)

	flagged, err := st.CancelRequested(context.Background(), job.ID)
	require.NoError(t, err)
	require.True(t, flagged)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/1", nil)
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/1", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/99", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusAndHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Running bool   `json:"running"`
		Version string `json:"version"`
		Gate    struct {
			Capacity int `json:"capacity"`
		} `json:"gate"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.True(t, status.Running)
	require.Equal(t, Version, status.Version)
	require.Greater(t, status.Gate.Capacity, 0)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRootBanner(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Whisper ASR Webservice")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Azure Batch")
}

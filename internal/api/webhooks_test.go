package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"subgen/internal/config"
	"subgen/internal/store"
	"subgen/internal/testsupport"
)

func webhookConfig(dir string) testsupport.ConfigOption {
	return func(cfg *config.Config) {
		cfg.Webhooks.ProcessAddedMedia = true
		cfg.Processing.MediaFolders = []string{dir}
	}
}

func waitForJob(t *testing.T, st *store.Store, mediaPath string) *store.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		jobs, err := st.JobsByStatus(context.Background(),
			store.StatusPending, store.StatusExtracting, store.StatusUploading,
			store.StatusTranscribing, store.StatusCompleted, store.StatusSkipped,
			store.StatusFailed, store.StatusCancelled)
		require.NoError(t, err)
		for _, job := range jobs {
			if job.MediaPath == mediaPath && job.Status.Terminal() {
				return job
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no terminal job for %s", mediaPath)
	return nil
}

func TestTautulliWebhookProcessesFile(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "show.ogg")
	require.NoError(t, os.WriteFile(media, []byte("opus"), 0o644))

	srv, _, st := newTestServer(t, webhookConfig(dir))

	payload := fmt.Sprintf(`{"file":%q}`, media)
	req := httptest.NewRequest(http.MethodPost, "/webhook/tautulli", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "processing")

	job := waitForJob(t, st, media)
	require.Equal(t, store.StatusCompleted, job.Status)
}

func TestWebhookDeduplicatesRepeatedDeliveries(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "show.ogg")
	require.NoError(t, os.WriteFile(media, []byte("opus"), 0o644))

	srv, _, _ := newTestServer(t, webhookConfig(dir))

	payload := fmt.Sprintf(`{"file":%q}`, media)
	for i, want := range []string{"processing", "already_processing"} {
		req := httptest.NewRequest(http.MethodPost, "/webhook/tautulli", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "delivery %d", i)
		require.Contains(t, rec.Body.String(), want, "delivery %d", i)
	}
	srv.wg.Wait()
}

func TestWebhookMissingFile(t *testing.T) {
	srv, _, _ := newTestServer(t, webhookConfig(t.TempDir()))

	req := httptest.NewRequest(http.MethodPost, "/webhook/tautulli",
		strings.NewReader(`{"file":"/does/not/exist.mkv"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "file_not_found")
}

func TestPlexWebhookIgnoresUnconfiguredEvents(t *testing.T) {
	srv, _, _ := newTestServer(t) // ProcessAddedMedia defaults to off

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("payload", `{"event":"library.new"}`))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/webhook/plex", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ignored")
}

func TestPlexWebhookStartsProcessing(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "movie.ogg")
	require.NoError(t, os.WriteFile(media, []byte("opus"), 0o644))

	srv, _, st := newTestServer(t, webhookConfig(dir))

	payload := map[string]any{
		"event": "library.new",
		"Metadata": map[string]any{
			"type": "movie",
			"Media": []map[string]any{
				{"Part": []map[string]string{{"file": media}}},
			},
		},
	}
	encoded, err := json.Marshal(payload)
	require.NoError(t, err)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("payload", string(encoded)))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/webhook/plex", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "processing")

	job := waitForJob(t, st, media)
	require.Equal(t, store.StatusCompleted, job.Status)
}

func TestJellyfinWebhookGatesOnEvent(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "episode.ogg")
	require.NoError(t, os.WriteFile(media, []byte("opus"), 0o644))

	srv, _, _ := newTestServer(t, webhookConfig(dir))

	// PlaybackStart is gated behind ProcessOnPlay, which is off.
	payload := fmt.Sprintf(`{"NotificationType":"PlaybackStart","Path":%q}`, media)
	req := httptest.NewRequest(http.MethodPost, "/webhook/jellyfin", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ignored")

	payload = fmt.Sprintf(`{"NotificationType":"ItemAdded","Path":%q}`, media)
	req = httptest.NewRequest(http.MethodPost, "/webhook/jellyfin", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "processing")
	srv.wg.Wait()
}

func TestDedupMapEvictsExpiredAndOldest(t *testing.T) {
	now := time.Unix(1000, 0)
	d := newDedupMap(2, time.Minute)
	d.now = func() time.Time { return now }

	require.True(t, d.ShouldProcess("/a"))
	require.False(t, d.ShouldProcess("/a"))
	require.True(t, d.ShouldProcess("/b"))

	// Capacity reached: the oldest entry gives way.
	now = now.Add(time.Second)
	require.True(t, d.ShouldProcess("/c"))
	require.Len(t, d.entries, 2)

	// After the TTL everything may be processed again.
	now = now.Add(2 * time.Minute)
	require.True(t, d.ShouldProcess("/a"))
	require.True(t, d.ShouldProcess("/b"))
}

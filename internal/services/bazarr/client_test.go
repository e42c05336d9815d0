package bazarr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"subgen/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(config.Bazarr{URL: server.URL, APIKey: "secret"}, nil)
}

func TestTestSendsAPIKey(t *testing.T) {
	var gotKey string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/system/status" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotKey = r.Header.Get("X-API-KEY")
		w.WriteHeader(http.StatusOK)
	}))
	if err := client.Test(context.Background()); err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	if gotKey != "secret" {
		t.Fatalf("api key = %q", gotKey)
	}
}

func TestNotifySubtitleWrittenScansMatchingSeries(t *testing.T) {
	var scanned []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/series":
			w.Write([]byte(`{"data":[{"path":"/tv/Other Show","sonarrSeriesId":7},{"path":"/tv/My Show","sonarrSeriesId":12}]}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/api/series":
			scanned = append(scanned, r.URL.Query().Get("seriesid")+":"+r.URL.Query().Get("action"))
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	err := client.NotifySubtitleWritten(context.Background(), "/tv/My Show/Season 1/ep.mkv")
	if err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if len(scanned) != 1 || scanned[0] != "12:scan-disk" {
		t.Fatalf("scanned = %v", scanned)
	}
}

func TestNotifySubtitleWrittenFallsBackToMovieThenFullScan(t *testing.T) {
	var tasks []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/series":
			w.Write([]byte(`{"data":[]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/movies":
			w.Write([]byte(`{"data":[{"path":"/movies/Elsewhere","radarrId":3}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/system/tasks":
			tasks = append(tasks, r.URL.Query().Get("taskid"))
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	err := client.NotifySubtitleWritten(context.Background(), "/movies/Nowhere/film.mkv")
	if err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if len(tasks) != 2 || tasks[0] != "update_series" || tasks[1] != "update_movies" {
		t.Fatalf("tasks = %v", tasks)
	}
}

func TestNotifySubtitleWrittenNoopWhenUnconfigured(t *testing.T) {
	client := New(config.Bazarr{}, nil)
	if client.Configured() {
		t.Fatal("blank config should not be configured")
	}
	if err := client.NotifySubtitleWritten(context.Background(), "/tv/a.mkv"); err != nil {
		t.Fatalf("unconfigured notify should be a no-op: %v", err)
	}
}

func TestScanMovieUsesRadarrQuery(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	}))
	if err := client.ScanMovie(context.Background(), 42); err != nil {
		t.Fatalf("ScanMovie failed: %v", err)
	}
	if gotQuery != "action=scan-disk&radarrid=42" {
		t.Fatalf("query = %q", gotQuery)
	}
}

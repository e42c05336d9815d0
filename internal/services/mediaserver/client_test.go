package mediaserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"subgen/internal/config"
	"subgen/internal/testsupport"
)

func TestPlexRefreshUsesQueryToken(t *testing.T) {
	var gotPath, gotToken, gotDir string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("X-Plex-Token")
		gotDir = r.URL.Query().Get("path")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewPlex(config.MediaServer{Token: "plex-token", Server: server.URL}, nil)
	if err := client.Refresh(context.Background(), "/tv/Show/episode.mkv"); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if gotPath != "/library/sections/all/refresh" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotToken != "plex-token" || gotDir != "/tv/Show" {
		t.Fatalf("token=%q dir=%q", gotToken, gotDir)
	}
}

func TestJellyfinRefreshPostsMediaUpdate(t *testing.T) {
	var gotToken string
	var gotPayload mediaUpdatedPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/Library/Media/Updated" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotToken = r.Header.Get("X-Emby-Token")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewJellyfin(config.MediaServer{Token: "jf-token", Server: server.URL}, nil)
	if err := client.Refresh(context.Background(), "/movies/Film/film.mkv"); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if gotToken != "jf-token" {
		t.Fatalf("token = %q", gotToken)
	}
	if len(gotPayload.Updates) != 1 || gotPayload.Updates[0].Path != "/movies/Film" {
		t.Fatalf("payload = %#v", gotPayload)
	}
}

func TestRefreshReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewEmby(config.MediaServer{Token: "bad", Server: server.URL}, nil)
	if err := client.Refresh(context.Background(), "/movies/a.mkv"); err == nil {
		t.Fatal("expected error for rejected refresh")
	}
}

func TestFromConfigOnlyConfiguredServers(t *testing.T) {
	cfg := testsupport.NewConfig(t, func(c *config.Config) {
		c.Plex = config.MediaServer{Token: "t", Server: "http://plex:32400"}
	})
	refreshers := FromConfig(cfg, nil)
	if len(refreshers) != 1 || refreshers[0].Name() != "plex" {
		t.Fatalf("unexpected refreshers: %#v", refreshers)
	}
}

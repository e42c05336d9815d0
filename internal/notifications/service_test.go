package notifications

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"subgen/internal/config"
	"subgen/internal/testsupport"
)

func TestNewServiceReturnsNoopWithoutCredentials(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := NewService(cfg)
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	if err := svc.NotifyTranscriptionFailed(context.Background(), "/media/a.mkv", errors.New("x")); err != nil {
		t.Fatalf("noop should never error: %v", err)
	}
}

func TestNewServiceReturnsPushoverWhenConfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t, func(c *config.Config) {
		c.Pushover.UserKey = "user"
		c.Pushover.APIToken = "token"
	})
	if _, ok := NewService(cfg).(*pushoverService); !ok {
		t.Fatal("expected pushover service")
	}
}

func TestPushoverSendsForm(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{
			"token":    r.PostFormValue("token"),
			"user":     r.PostFormValue("user"),
			"title":    r.PostFormValue("title"),
			"priority": r.PostFormValue("priority"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := &pushoverService{
		endpoint:        server.URL,
		userKey:         "user-key",
		apiToken:        "api-token",
		notifyOnFailure: true,
		client:          server.Client(),
	}
	if err := svc.NotifyTranscriptionFailed(context.Background(), "/media/a.mkv", errors.New("upload failed")); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if gotForm["token"] != "api-token" || gotForm["user"] != "user-key" {
		t.Fatalf("unexpected credentials: %#v", gotForm)
	}
	if gotForm["title"] != "Subgen - Transcription Failed" || gotForm["priority"] != "1" {
		t.Fatalf("unexpected payload: %#v", gotForm)
	}
}

func TestPushoverFailureNotificationsCanBeDisabled(t *testing.T) {
	svc := &pushoverService{
		endpoint:        "http://127.0.0.1:0",
		notifyOnFailure: false,
		client:          &http.Client{Timeout: time.Second},
	}
	if err := svc.NotifyTranscriptionFailed(context.Background(), "/media/a.mkv", errors.New("x")); err != nil {
		t.Fatalf("disabled failure notify should be silent: %v", err)
	}
}

func TestPushoverReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusBadRequest)
	}))
	defer server.Close()

	svc := &pushoverService{
		endpoint: server.URL,
		client:   server.Client(),
	}
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for rejected notification")
	}
}

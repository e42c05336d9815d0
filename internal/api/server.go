// Package api exposes the daemon's HTTP surface: the Whisper-compatible
// ASR endpoints Bazarr talks to, the batch/session API, media server
// webhooks, and operational status.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"subgen/internal/config"
	"subgen/internal/logging"
	"subgen/internal/orchestrator"
)

// Version is reported on the Bazarr compatibility endpoints.
const Version = "0.1.0"

// Server hosts the HTTP API in front of one orchestrator.
type Server struct {
	bind   string
	logger *slog.Logger
	orch   *orchestrator.Orchestrator
	dedup  *dedupMap

	listener net.Listener
	server   *http.Server

	// baseCtx parents background webhook work so it survives the
	// request but dies with the daemon.
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewServer builds the HTTP server around an orchestrator.
func NewServer(cfg *config.Config, orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	s := &Server{
		bind:    strings.TrimSpace(cfg.Server.Bind),
		logger:  logging.WithComponent(logger, "api"),
		orch:    orch,
		dedup:   newDedupMap(dedupCapacity, dedupTTL),
		baseCtx: context.Background(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/status", s.handleVersion)
	mux.HandleFunc("/healthz", s.handleHealthz)

	mux.HandleFunc("/asr", s.handleASR)
	mux.HandleFunc("/asr/languages", s.handleLanguages)
	mux.HandleFunc("/detect-language", s.handleDetectLanguage)

	mux.HandleFunc("/api/batch", s.handleBatch)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSession)
	mux.HandleFunc("/api/jobs/", s.handleJob)
	mux.HandleFunc("/api/status", s.handleStatus)

	mux.HandleFunc("/webhook/plex", s.handlePlexWebhook)
	mux.HandleFunc("/webhook/jellyfin", s.handleJellyfinWebhook)
	mux.HandleFunc("/webhook/emby", s.handleEmbyWebhook)
	mux.HandleFunc("/webhook/tautulli", s.handleTautulliWebhook)
	mux.HandleFunc("/webhook/bazarr", s.handleBazarrWebhook)

	s.server = &http.Server{
		Handler:           s.rewriteDoubleSlash(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      30 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// rewriteDoubleSlash maps the "//detect-language" request Bazarr is known
// to send onto the canonical path. ServeMux would otherwise answer it
// with a redirect that drops the POST body.
func (s *Server) rewriteDoubleSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "//detect-language" {
			r.URL.Path = "/detect-language"
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins serving. The context bounds background webhook work and
// triggers shutdown when cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down and waits for background webhook work.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.wg.Wait()
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr reports the bound listener address, empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRoot mimics the whisper-asr-webservice root banner Bazarr probes.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Whisper ASR Webservice %s (Subgen)", Version)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"version": fmt.Sprintf("Subgen %s, Azure Batch Transcription API", Version),
	})
}

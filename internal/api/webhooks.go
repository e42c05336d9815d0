package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"subgen/internal/logging"
)

const (
	dedupCapacity = 1000
	dedupTTL      = 5 * time.Minute
)

// dedupMap suppresses repeated webhook deliveries for the same path.
// Entries expire after the TTL; when full, the oldest entry is evicted.
type dedupMap struct {
	mu       sync.Mutex
	entries  map[string]time.Time
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

func newDedupMap(capacity int, ttl time.Duration) *dedupMap {
	return &dedupMap{
		entries:  make(map[string]time.Time),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// ShouldProcess records the path and reports whether it was new within
// the TTL window.
func (d *dedupMap) ShouldProcess(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()

	if seen, ok := d.entries[path]; ok && now.Sub(seen) < d.ttl {
		return false
	}
	for key, seen := range d.entries {
		if now.Sub(seen) >= d.ttl {
			delete(d.entries, key)
		}
	}
	if len(d.entries) >= d.capacity {
		oldestKey := ""
		var oldest time.Time
		for key, seen := range d.entries {
			if oldestKey == "" || seen.Before(oldest) {
				oldestKey, oldest = key, seen
			}
		}
		delete(d.entries, oldestKey)
	}
	d.entries[path] = now
	return true
}

// startWebhookJob kicks off background processing for one media path.
// Returns the response status string.
func (s *Server) startWebhookJob(source, mediaPath string) string {
	mediaPath = s.orch.Config().PathMapping.Apply(mediaPath)
	if _, err := os.Stat(mediaPath); err != nil {
		s.logger.Warn("webhook file not found",
			logging.String("source", source), logging.String(logging.FieldFile, mediaPath))
		return "file_not_found"
	}
	if !s.dedup.ShouldProcess(mediaPath) {
		s.logger.Info("webhook suppressed, recently seen",
			logging.String("source", source), logging.String(logging.FieldFile, mediaPath))
		return "already_processing"
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.orch.ProcessPath(s.baseCtx, source, mediaPath); err != nil {
			s.logger.Error("webhook processing failed",
				logging.String("source", source),
				logging.String(logging.FieldFile, mediaPath),
				logging.Error(err))
		}
	}()
	return "processing"
}

func (s *Server) webhookEventAllowed(added, played bool) bool {
	cfg := s.orch.Config().Webhooks
	return (added && cfg.ProcessAddedMedia) || (played && cfg.ProcessOnPlay)
}

type plexPayload struct {
	Event    string `json:"event"`
	Metadata struct {
		Type  string `json:"type"`
		Media []struct {
			Part []struct {
				File string `json:"file"`
			} `json:"Part"`
		} `json:"Media"`
	} `json:"Metadata"`
}

// handlePlexWebhook processes Plex's multipart webhook. The JSON payload
// rides in the "payload" form field.
func (s *Server) handlePlexWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.writeError(w, http.StatusBadRequest, "parse webhook form: "+err.Error())
		return
	}
	var payload plexPayload
	if err := json.Unmarshal([]byte(r.FormValue("payload")), &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "decode webhook payload: "+err.Error())
		return
	}
	s.logger.Info("plex webhook", logging.String("event", payload.Event))

	if !s.webhookEventAllowed(payload.Event == "library.new", payload.Event == "media.play") {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "event": payload.Event})
		return
	}

	status := "no_files"
	for _, media := range payload.Metadata.Media {
		for _, part := range media.Part {
			if part.File == "" {
				continue
			}
			status = s.startWebhookJob("webhook-plex", part.File)
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

type mediaBrowserPayload struct {
	NotificationType string `json:"NotificationType"`
	EventType        string `json:"EventType"`
	Event            string `json:"Event"`
	Path             string `json:"Path"`
	Item             struct {
		Path string `json:"Path"`
	} `json:"Item"`
}

func (p mediaBrowserPayload) event() string {
	for _, candidate := range []string{p.NotificationType, p.EventType, p.Event} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func (p mediaBrowserPayload) path() string {
	if p.Path != "" {
		return p.Path
	}
	return p.Item.Path
}

func (s *Server) handleMediaBrowserWebhook(w http.ResponseWriter, r *http.Request, source string, addedEvents, playEvents []string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload mediaBrowserPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "decode webhook payload: "+err.Error())
		return
	}
	event := payload.event()
	s.logger.Info(source+" webhook", logging.String("event", event))

	added := containsFold(addedEvents, event)
	played := containsFold(playEvents, event)
	if !s.webhookEventAllowed(added, played) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "event": event})
		return
	}
	path := payload.path()
	if path == "" {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "no_path"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": s.startWebhookJob("webhook-"+source, path)})
}

func (s *Server) handleJellyfinWebhook(w http.ResponseWriter, r *http.Request) {
	s.handleMediaBrowserWebhook(w, r, "jellyfin", []string{"ItemAdded"}, []string{"PlaybackStart"})
}

func (s *Server) handleEmbyWebhook(w http.ResponseWriter, r *http.Request) {
	s.handleMediaBrowserWebhook(w, r, "emby", []string{"library.new"}, []string{"playback.start"})
}

// handleTautulliWebhook accepts Tautulli's custom webhook, which carries
// the file path either as a form field or JSON body.
func (s *Server) handleTautulliWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	path := ""
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var payload struct {
			File string `json:"file"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			path = payload.File
		}
	} else {
		path = r.FormValue("file")
	}
	if strings.TrimSpace(path) == "" {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "no_file"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": s.startWebhookJob("webhook-tautulli", path)})
}

// handleBazarrWebhook lets Bazarr request generation for a specific file.
func (s *Server) handleBazarrWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload struct {
		Path string `json:"path"`
		File string `json:"file"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "decode webhook payload: "+err.Error())
		return
	}
	path := payload.Path
	if path == "" {
		path = payload.File
	}
	if strings.TrimSpace(path) == "" {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "no_file"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": s.startWebhookJob("webhook-bazarr", path)})
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(value, target) {
			return true
		}
	}
	return false
}

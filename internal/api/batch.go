package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"subgen/internal/logging"
	"subgen/internal/store"
	"subgen/internal/taxonomy"
)

type batchRequest struct {
	Files    []string `json:"files"`
	Folders  []string `json:"folders"`
	Language string   `json:"language"`

	// Both names are accepted for the same toggle; skip rules run
	// unless either is explicitly false.
	SkipIfExists    *bool `json:"skip_if_exists"`
	ApplySkipConfig *bool `json:"apply_skip_config"`
}

func (b batchRequest) applySkip() bool {
	if b.SkipIfExists != nil && !*b.SkipIfExists {
		return false
	}
	if b.ApplySkipConfig != nil && !*b.ApplySkipConfig {
		return false
	}
	return true
}

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

func newJobView(job *store.Job) jobView {
	view := jobView{
		ID:               job.ID,
		SessionID:        job.SessionID,
		FilePath:         job.MediaPath,
		Language:         job.Language,
		DetectedLanguage: job.DetectedLanguage,
		Status:           string(job.Status),
		SubtitlePath:     job.SubtitlePath,
		SkipReason:       job.SkipReason,
		Error:            job.ErrorMessage,
		SegmentsCount:    job.SegmentsCount,
		DurationSeconds:  job.DurationSeconds,
		CreatedAt:        job.CreatedAt.UTC().Format(time.RFC3339),
	}
	if job.CompletedAt != nil {
		view.CompletedAt = job.CompletedAt.UTC().Format(time.RFC3339)
	}
	return view
}

type sessionView struct {
	ID           int64               `json:"session_id"`
	Source       string              `json:"source"`
	Status       string              `json:"status"`
	TotalFiles   int                 `json:"total_files"`
	Pending      int                 `json:"pending"`
	InProgress   int                 `json:"in_progress"`
	Completed    int                 `json:"completed"`
	Skipped      int                 `json:"skipped"`
	Failed       int                 `json:"failed"`
	Cancelled    int                 `json:"cancelled"`
	SkippedPaths []store.SkippedPath `json:"skipped_paths,omitempty"`
	CreatedAt    string              `json:"created_at"`
}

func newSessionView(session *store.Session, counts store.SessionCounts) sessionView {
	return sessionView{
		ID:           session.ID,
		Source:       session.Source,
		Status:       string(session.Status),
		TotalFiles:   session.TotalFiles,
		Pending:      counts.Pending,
		InProgress:   counts.Processing,
		Completed:    counts.Completed,
		Skipped:      counts.Skipped,
		Failed:       counts.Failed,
		Cancelled:    counts.Cancelled,
		SkippedPaths: session.Skipped,
		CreatedAt:    session.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// handleBatch submits files and folders for background transcription.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}

	paths := append(append([]string{}, req.Files...), req.Folders...)
	session, jobs, err := s.orch.SubmitBatch(r.Context(), "api", paths, req.Language)
	if err != nil {
		switch {
		case errors.Is(err, taxonomy.ErrValidation), errors.Is(err, taxonomy.ErrNotFound):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	applySkip := req.applySkip()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.orch.RunSession(s.baseCtx, session, applySkip); err != nil {
			s.logger.Error("session run failed",
				logging.Int64(logging.FieldSessionID, session.ID), logging.Error(err))
		}
	}()

	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, newJobView(job))
	}
	skipped := session.Skipped
	if skipped == nil {
		skipped = []store.SkippedPath{}
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id":    session.ID,
		"job_count":     len(jobs),
		"jobs":          views,
		"skipped_paths": skipped,
	})
}

// handleSessions lists recent sessions with aggregate counts.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	sessions, err := s.orch.Store().ListSessions(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, session := range sessions {
		counts, err := s.orch.Store().SessionCounts(r.Context(), session.ID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		views = append(views, newSessionView(session, counts))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// handleSession dispatches /api/sessions/{id}[/cancel].
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	idStr, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getSession(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		s.deleteSession(w, r, id)
	case action == "cancel" && r.Method == http.MethodPost:
		s.cancelSession(w, r, id)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, id int64) {
	session, err := s.orch.Store().GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if session == nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	counts, err := s.orch.Store().SessionCounts(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jobs, err := s.orch.Store().SessionJobs(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jobViews := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		jobViews = append(jobViews, newJobView(job))
	}
	payload := struct {
		sessionView
		Jobs []jobView `json:"jobs"`
	}{newSessionView(session, counts), jobViews}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request, id int64) {
	deleted, err := s.orch.Store().DeleteSession(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "session_id": id})
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request, id int64) {
	session, err := s.orch.Store().GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if session == nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	outcome, err := s.orch.CancelSession(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	cleanupErrors := outcome.Errors
	if cleanupErrors == nil {
		cleanupErrors = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    id,
		"cancelled":     outcome.Cancelled,
		"cleaned_blobs": outcome.CleanedBlobs,
		"errors":        cleanupErrors,
	})
}

// handleJob dispatches /api/jobs/{id}[/cancel].
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	idStr, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		job, err := s.orch.Store().GetJob(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if job == nil {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeJSON(w, http.StatusOK, newJobView(job))
	case action == "cancel" && r.Method == http.MethodPost:
		flagged, err := s.orch.Store().RequestJobCancel(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !flagged {
			s.writeError(w, http.StatusNotFound, "job not found or already finished")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"status": "cancelling", "job_id": id})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleStatus reports daemon health: gate occupancy and job counts.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.orch.Store().Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jobCounts := make(map[string]int, len(stats))
	for status, count := range stats {
		jobCounts[string(status)] = count
	}
	capacity, inUse := s.orch.GateStats()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"running":       true,
		"version":       Version,
		"database_path": s.orch.Store().Path(),
		"gate": map[string]int{
			"capacity": capacity,
			"in_use":   inUse,
		},
		"jobs": jobCounts,
	})
}

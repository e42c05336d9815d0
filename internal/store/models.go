package store

import "time"

// Status represents the lifecycle of a transcription job.
type Status string

const (
	StatusPending      Status = "pending"
	StatusExtracting   Status = "extracting"
	StatusUploading    Status = "uploading"
	StatusTranscribing Status = "transcribing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
	StatusSkipped      Status = "skipped"
)

var allStatuses = []Status{
	StatusPending,
	StatusExtracting,
	StatusUploading,
	StatusTranscribing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
	StatusSkipped,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Valid reports whether the status is a known lifecycle value.
func (s Status) Valid() bool {
	_, ok := statusSet[s]
	return ok
}

// Terminal reports whether a job in this status will never run again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusSkipped:
		return true
	default:
		return false
	}
}

var processingStatuses = map[Status]struct{}{
	StatusExtracting:   {},
	StatusUploading:    {},
	StatusTranscribing: {},
}

// Processing reports whether a job in this status holds external resources.
func (s Status) Processing() bool {
	_, ok := processingStatuses[s]
	return ok
}

// DaemonStopReason is the error message set on in-flight jobs when the
// daemon shuts down underneath them.
const DaemonStopReason = "Daemon stopped"

// Job is one media file moving through the transcription pipeline.
// SegmentsCount and DurationSeconds are filled in on completion from the
// transcription result.
type Job struct {
	ID               int64
	SessionID        int64
	MediaPath        string
	Language         string
	DetectedLanguage string
	AudioTrack       int
	Status           Status
	TranscriptionID  string
	BlobName         string
	SubtitlePath     string
	SkipReason       string
	ErrorMessage     string
	SegmentsCount    int
	DurationSeconds  float64
	CancelRequested  bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// SkippedPath records a submitted path that never became a job, with the
// reason it was dropped.
type SkippedPath struct {
	Path   string `json:"file_path"`
	Reason string `json:"reason"`
}

// Session groups the jobs created by one batch submission or webhook.
// Skipped lists submitted paths that were dropped before job creation.
type Session struct {
	ID          int64
	Source      string
	Status      Status
	TotalFiles  int
	Skipped     []SkippedPath
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// SessionCounts aggregates job states inside a session.
type SessionCounts struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Skipped    int
	Failed     int
	Cancelled  int
}

// Done reports whether every job in the session reached a terminal state.
func (c SessionCounts) Done() bool {
	return c.Total > 0 && c.Pending == 0 && c.Processing == 0
}

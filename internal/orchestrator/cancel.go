package orchestrator

import (
	"context"
	"fmt"

	"subgen/internal/logging"
)

// CancelOutcome summarizes a session cancellation: how many jobs were
// flagged, how many staged blobs were removed, and the cleanup failures
// worth reporting.
type CancelOutcome struct {
	Cancelled    int64
	CleanedBlobs int
	Errors       []string
}

// CancelSession flags every non-terminal job in a session for
// cancellation and makes a best-effort pass at releasing the remote
// resources those jobs hold. Blob deletion failures are collected in the
// outcome. Remote transcription deletion is attempted but never reported
// as an error: a still-running transcription refuses deletion, and the
// pipeline deletes it itself once it observes the cancel flag. Repeat
// deletions of already-removed resources are harmless.
func (o *Orchestrator) CancelSession(ctx context.Context, sessionID int64) (CancelOutcome, error) {
	flagged, err := o.store.RequestSessionCancel(ctx, sessionID)
	if err != nil {
		return CancelOutcome{}, err
	}
	outcome := CancelOutcome{Cancelled: flagged}

	jobs, err := o.store.SessionJobs(ctx, sessionID)
	if err != nil {
		return outcome, err
	}
	for _, job := range jobs {
		if !job.CancelRequested || job.Status.Terminal() {
			continue
		}
		if job.BlobName != "" {
			if err := o.blob.Delete(ctx, job.BlobName); err != nil {
				outcome.Errors = append(outcome.Errors, fmt.Sprintf("blob %s: %v", job.BlobName, err))
			} else {
				outcome.CleanedBlobs++
			}
		}
		if job.TranscriptionID != "" {
			if err := o.speech.Delete(ctx, job.TranscriptionID); err != nil {
				o.logger.Warn("transcription delete deferred to pipeline",
					logging.Int64(logging.FieldJobID, job.ID),
					logging.String("transcription_id", job.TranscriptionID),
					logging.Error(err))
			}
		}
	}
	o.logger.Info("session cancellation requested",
		logging.Int64(logging.FieldSessionID, sessionID),
		logging.Int64("flagged", outcome.Cancelled),
		logging.Int("cleaned_blobs", outcome.CleanedBlobs))
	return outcome, nil
}

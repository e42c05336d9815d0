package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"subgen/internal/azure"
	"subgen/internal/langcodes"
	"subgen/internal/logging"
	"subgen/internal/media/audio"
	"subgen/internal/media/ffprobe"
	"subgen/internal/store"
	"subgen/internal/subtitles"
	"subgen/internal/taxonomy"
)

// heartbeatInterval is the longest the pipeline stays silent while
// waiting on a remote transcription.
const heartbeatInterval = 30 * time.Second

// cleanupTimeout bounds remote cleanup once a job's own context is gone.
const cleanupTimeout = 30 * time.Second

// ProcessJob drives one job to a terminal state, recording every
// transition in the store. The returned error mirrors the recorded
// failure; completed, skipped, and cancelled jobs return nil.
func (o *Orchestrator) ProcessJob(ctx context.Context, job *store.Job, applySkip bool) error {
	logger := o.jobLogger(job)

	if err := o.gate.Acquire(ctx, false); err != nil {
		return o.fail(ctx, job, logger, taxonomy.Wrap(taxonomy.ErrCancelled, "orchestrator", "admit", "gate closed or context done", err))
	}
	defer o.gate.Release()

	err := o.runJob(ctx, job, logger, applySkip)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, taxonomy.ErrCancelled):
		job.Status = store.StatusCancelled
		if updateErr := o.store.UpdateJob(context.WithoutCancel(ctx), job); updateErr != nil {
			logger.Error("record cancellation", logging.Error(updateErr))
		}
		logger.Info("job cancelled")
		return nil
	default:
		return o.fail(ctx, job, logger, err)
	}
}

func (o *Orchestrator) runJob(ctx context.Context, job *store.Job, logger *slog.Logger, applySkip bool) error {
	if job.Language == "" {
		job.Language = o.cfg.Processing.SubtitleLanguage
	}

	if err := o.checkCancelled(ctx, job.ID); err != nil {
		return err
	}

	if applySkip {
		decision := o.skip.Evaluate(ctx, job.MediaPath, job.Language)
		if decision.Skip {
			job.Status = store.StatusSkipped
			job.SkipReason = decision.Reason
			if err := o.store.UpdateJob(ctx, job); err != nil {
				return err
			}
			return nil
		}
	}

	if err := o.selectAudioTrack(ctx, job, logger); err != nil {
		return err
	}

	if err := o.transition(ctx, job, store.StatusExtracting); err != nil {
		return err
	}
	audioPath, isTemp, err := o.stager.Prepare(ctx, job.MediaPath, job.AudioTrack)
	if err != nil {
		return taxonomy.Wrap(taxonomy.ErrExternalTool, "orchestrator", "extract", "stage audio", err)
	}
	if isTemp {
		defer func() {
			if cleanErr := audio.Cleanup(audioPath); cleanErr != nil {
				logger.Warn("remove staged audio", logging.Error(cleanErr))
			}
		}()
	}

	if err := o.checkCancelled(ctx, job.ID); err != nil {
		return err
	}

	if err := o.transition(ctx, job, store.StatusUploading); err != nil {
		return err
	}
	job.BlobName = azure.NewBlobName(azure.BlobExtension(audioPath))
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return err
	}
	defer o.cleanupBlob(job.BlobName, logger)

	if err := o.blob.Upload(ctx, job.BlobName, audioPath); err != nil {
		return err
	}
	contentURL, err := o.blob.SASURL(job.BlobName, o.sasLifetime)
	if err != nil {
		return err
	}

	if err := o.checkCancelled(ctx, job.ID); err != nil {
		return err
	}

	locale := o.localeFor(job)
	created, err := o.speech.Create(ctx, azure.CreateRequest{
		DisplayName: filepath.Base(job.MediaPath),
		Locale:      locale,
		ContentURL:  contentURL,
	})
	if err != nil {
		return err
	}
	job.TranscriptionID = created.ID
	defer o.cleanupTranscription(job.TranscriptionID, logger)

	if err := o.transition(ctx, job, store.StatusTranscribing); err != nil {
		return err
	}
	logger.Info("transcription submitted",
		logging.String("transcription_id", created.ID),
		logging.String("locale", locale))

	final, err := o.awaitTranscription(ctx, job.ID, created.ID, logger)
	if err != nil {
		return err
	}
	if final.Status == azure.StatusFailed {
		detail := final.Error
		if detail == "" {
			detail = "transcription failed"
		}
		return taxonomy.Wrap(taxonomy.ErrValidation, "azure-speech", "transcribe", detail, nil)
	}

	result, err := o.speech.FetchResult(ctx, created.ID)
	if err != nil {
		return err
	}
	if len(result.Segments) == 0 {
		return taxonomy.Wrap(taxonomy.ErrValidation, "orchestrator", "result", "no speech could be recognized", nil)
	}
	if detected := result.DominantLocale(); detected != "" {
		job.DetectedLanguage = detected
	}

	outputPath, err := o.writeSubtitle(job, result.Segments)
	if err != nil {
		return err
	}
	job.SubtitlePath = outputPath
	job.SegmentsCount = len(result.Segments)
	for _, segment := range result.Segments {
		if segment.End > job.DurationSeconds {
			job.DurationSeconds = segment.End
		}
	}
	job.Status = store.StatusCompleted
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return err
	}
	logger.Info("subtitle written", logging.String("subtitle", outputPath))

	o.notifyIntegrations(ctx, job.MediaPath, logger)
	return nil
}

// selectAudioTrack probes video containers and picks the track matching
// the preferred audio languages. Audio files always use track zero.
func (o *Orchestrator) selectAudioTrack(ctx context.Context, job *store.Job, logger *slog.Logger) error {
	if !audio.IsVideoFile(job.MediaPath) {
		job.AudioTrack = 0
		return nil
	}
	probe := o.skip.Probe
	if probe == nil {
		probe = ffprobe.Inspect
	}
	info, err := probe(ctx, o.cfg.FFprobeBinary(), job.MediaPath)
	if err != nil {
		logger.Warn("stream probe failed, using first audio track", logging.Error(err))
		job.AudioTrack = 0
		return nil
	}
	track, language := audio.FindPreferredTrack(info.AudioTracks(), o.cfg.Transcription.PreferredAudioLanguagesList())
	job.AudioTrack = track
	if language != "" {
		logger.Debug("audio track selected",
			logging.Int("track", track), logging.String("language", language))
	}
	return nil
}

// localeFor resolves the locale requested from the speech service:
// a forced language wins, then a previously detected one, then the
// job's target language.
func (o *Orchestrator) localeFor(job *store.Job) string {
	candidates := []string{
		o.cfg.Transcription.ForcedLanguage(),
		job.DetectedLanguage,
		job.Language,
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if lang, ok := langcodes.FromAny(candidate); ok {
			return lang.ServiceLocale()
		}
		if strings.Contains(candidate, "-") {
			return candidate
		}
	}
	return "en-US"
}

// awaitTranscription polls until the remote job reaches a terminal
// status, logging status changes and emitting a heartbeat while nothing
// changes. Cancellation flags are honored between polls.
func (o *Orchestrator) awaitTranscription(ctx context.Context, jobID int64, transcriptionID string, logger *slog.Logger) (azure.Transcription, error) {
	lastStatus := ""
	lastLog := time.Now()
	for attempt := 0; attempt < o.maxPolls; attempt++ {
		if err := o.checkCancelled(ctx, jobID); err != nil {
			return azure.Transcription{}, err
		}

		current, err := o.speech.Get(ctx, transcriptionID)
		if err != nil {
			return azure.Transcription{}, err
		}
		switch {
		case current.Status != lastStatus:
			logger.Info("transcription status changed",
				logging.String("transcription_id", transcriptionID),
				logging.String("status", current.Status))
			lastStatus = current.Status
			lastLog = time.Now()
		case time.Since(lastLog) >= heartbeatInterval:
			logger.Info("still transcribing",
				logging.String("transcription_id", transcriptionID),
				logging.String("status", current.Status))
			lastLog = time.Now()
		}
		if current.Status == azure.StatusSucceeded || current.Status == azure.StatusFailed {
			return current, nil
		}

		select {
		case <-time.After(o.pollInterval):
		case <-ctx.Done():
			return azure.Transcription{}, taxonomy.Wrap(taxonomy.ErrCancelled, "orchestrator", "poll", "context done", ctx.Err())
		}
	}
	return azure.Transcription{}, taxonomy.Wrap(taxonomy.ErrTimeout, "orchestrator", "poll",
		fmt.Sprintf("transcription %s did not finish within %d polls", transcriptionID, o.maxPolls), nil)
}

// writeSubtitle renders and atomically writes the subtitle next to the
// media file. Audio files get LRC when configured; everything else gets
// SRT.
func (o *Orchestrator) writeSubtitle(job *store.Job, segments []subtitles.Segment) (string, error) {
	if o.cfg.Transcription.AppendCreditLine {
		segments = subtitles.AppendCredit(segments, time.Now())
	}

	language := job.Language
	if forced := o.cfg.Transcription.ForcedLanguage(); forced != "" {
		language = forced
	}

	ext := "srt"
	content := subtitles.FormatSRT(segments)
	if audio.IsAudioFile(job.MediaPath) && o.cfg.Transcription.LRCForAudioFiles {
		ext = "lrc"
		content = subtitles.FormatLRC(segments)
	}

	outputPath := o.namer.OutputPath(job.MediaPath, language, "", ext)
	if err := subtitles.WriteFile(outputPath, content); err != nil {
		return "", taxonomy.Wrap(taxonomy.ErrTransient, "orchestrator", "write", "write subtitle file", err)
	}
	return outputPath, nil
}

// notifyIntegrations fans out post-write notifications. Failures are
// logged and never fail the job.
func (o *Orchestrator) notifyIntegrations(ctx context.Context, mediaPath string, logger *slog.Logger) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for _, refresher := range o.refreshers {
		if err := refresher.Refresh(notifyCtx, mediaPath); err != nil {
			logger.Warn("library refresh failed",
				logging.String("server", refresher.Name()), logging.Error(err))
		}
	}
	if o.bazarr != nil {
		if err := o.bazarr.NotifySubtitleWritten(notifyCtx, mediaPath); err != nil {
			logger.Warn("bazarr notification failed", logging.Error(err))
		}
	}
}

// checkCancelled surfaces context cancellation and operator cancel flags.
func (o *Orchestrator) checkCancelled(ctx context.Context, jobID int64) error {
	if err := ctx.Err(); err != nil {
		return taxonomy.Wrap(taxonomy.ErrCancelled, "orchestrator", "cancel", "context done", err)
	}
	if jobID == 0 {
		return nil
	}
	requested, err := o.store.CancelRequested(ctx, jobID)
	if err != nil {
		return err
	}
	if requested {
		return taxonomy.Wrap(taxonomy.ErrCancelled, "orchestrator", "cancel", "cancellation requested", nil)
	}
	return nil
}

func (o *Orchestrator) transition(ctx context.Context, job *store.Job, status store.Status) error {
	job.Status = status
	return o.store.UpdateJob(ctx, job)
}

func (o *Orchestrator) fail(ctx context.Context, job *store.Job, logger *slog.Logger, err error) error {
	job.Status = store.StatusFailed
	job.ErrorMessage = err.Error()
	if updateErr := o.store.UpdateJob(context.WithoutCancel(ctx), job); updateErr != nil {
		logger.Error("record failure", logging.Error(updateErr))
	}
	logger.Error("job failed", logging.Error(err))

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if notifyErr := o.notifier.NotifyTranscriptionFailed(notifyCtx, job.MediaPath, err); notifyErr != nil {
		logger.Warn("failure notification not delivered", logging.Error(notifyErr))
	}
	return err
}

// cleanupBlob removes staged audio from storage regardless of how the
// job ended.
func (o *Orchestrator) cleanupBlob(blobName string, logger *slog.Logger) {
	if blobName == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := o.blob.Delete(ctx, blobName); err != nil {
		logger.Warn("blob cleanup failed",
			logging.String("blob", blobName), logging.Error(err))
	}
}

// cleanupTranscription deletes the remote transcription so results never
// accumulate in the service.
func (o *Orchestrator) cleanupTranscription(transcriptionID string, logger *slog.Logger) {
	if transcriptionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := o.speech.Delete(ctx, transcriptionID); err != nil {
		logger.Warn("transcription cleanup failed",
			logging.String("transcription_id", transcriptionID), logging.Error(err))
	}
}

func (o *Orchestrator) jobLogger(job *store.Job) *slog.Logger {
	logger := o.logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return logger.With(
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldFile, job.MediaPath),
	)
}

package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"subgen/internal/langcodes"
	"subgen/internal/logging"
	"subgen/internal/media/audio"
	"subgen/internal/subtitles"
	"subgen/internal/taxonomy"
)

// ASRResult is the outcome of an interactive transcription request.
type ASRResult struct {
	Segments []subtitles.Segment
	Locale   string
}

// TranscribeBytes transcribes an uploaded audio payload synchronously.
// Interactive requests take the priority lane through the gate, ahead of
// queued batch work. With no language the configured detection
// candidates drive language identification.
func (o *Orchestrator) TranscribeBytes(ctx context.Context, data []byte, filename, language string) (ASRResult, error) {
	if len(data) == 0 {
		return ASRResult{}, taxonomy.Wrap(taxonomy.ErrValidation, "orchestrator", "asr", "empty audio payload", nil)
	}

	suffix := strings.ToLower(filepath.Ext(filename))
	if suffix == "" || !audio.IsMediaFile("upload"+suffix) {
		suffix = ".wav"
	}
	stagedPath, err := o.stager.WriteBytes(data, suffix)
	if err != nil {
		return ASRResult{}, taxonomy.Wrap(taxonomy.ErrTransient, "orchestrator", "asr", "stage upload", err)
	}
	defer func() {
		if cleanErr := audio.Cleanup(stagedPath); cleanErr != nil {
			o.logger.Warn("remove staged upload", logging.Error(cleanErr))
		}
	}()

	if err := o.gate.Acquire(ctx, true); err != nil {
		return ASRResult{}, taxonomy.Wrap(taxonomy.ErrCancelled, "orchestrator", "asr", "gate closed or context done", err)
	}
	defer o.gate.Release()

	audioPath, isTemp, err := o.stager.Prepare(ctx, stagedPath, 0)
	if err != nil {
		return ASRResult{}, taxonomy.Wrap(taxonomy.ErrExternalTool, "orchestrator", "asr", "prepare audio", err)
	}
	if isTemp {
		defer func() {
			if cleanErr := audio.Cleanup(audioPath); cleanErr != nil {
				o.logger.Warn("remove prepared upload", logging.Error(cleanErr))
			}
		}()
	}

	req := remoteRequest{
		DisplayName: "asr:" + filepath.Base(filename),
		AudioPath:   audioPath,
	}
	if forced := o.cfg.Transcription.ForcedLanguage(); forced != "" && language == "" {
		language = forced
	}
	if language != "" {
		if lang, ok := langcodes.FromAny(language); ok {
			req.Locale = lang.ServiceLocale()
		} else if strings.Contains(language, "-") {
			req.Locale = language
		} else {
			return ASRResult{}, taxonomy.Wrap(taxonomy.ErrValidation, "orchestrator", "asr",
				"unrecognized language: "+language, nil)
		}
	} else {
		candidates, err := langcodes.NormalizeCandidates(o.cfg.Transcription.DetectionCandidates())
		if err != nil {
			return ASRResult{}, taxonomy.Wrap(taxonomy.ErrConfiguration, "orchestrator", "asr", "candidate locales", err)
		}
		req.Locale = candidates[0]
		req.Candidates = candidates
	}

	started := time.Now()
	result, err := o.runRemote(ctx, req)
	if err != nil {
		return ASRResult{}, err
	}
	if len(result.Segments) == 0 {
		return ASRResult{}, taxonomy.Wrap(taxonomy.ErrValidation, "orchestrator", "asr", "no speech could be recognized", nil)
	}
	o.logger.Info("interactive transcription finished",
		logging.String("file", filename),
		logging.Int("segments", len(result.Segments)),
		logging.Duration("elapsed", time.Since(started)))

	locale := result.DominantLocale()
	if locale == "" {
		locale = req.Locale
	}
	return ASRResult{Segments: result.Segments, Locale: locale}, nil
}

package orchestrator

import (
	"context"
	"path/filepath"
	"strings"

	"subgen/internal/azure"
	"subgen/internal/langcodes"
	"subgen/internal/logging"
	"subgen/internal/media/audio"
	"subgen/internal/taxonomy"
)

// DetectLanguage determines the spoken language of a media file by
// transcribing a bounded sample with language identification enabled.
// A configured forced language short-circuits the remote call.
func (o *Orchestrator) DetectLanguage(ctx context.Context, mediaPath string) (langcodes.Language, string, error) {
	logger := o.logger.With(logging.String(logging.FieldFile, mediaPath))

	if forced := o.cfg.Transcription.ForcedLanguage(); forced != "" {
		lang, ok := langcodes.FromAny(forced)
		if !ok {
			return langcodes.Language{}, "", taxonomy.Wrap(taxonomy.ErrConfiguration, "orchestrator", "detect",
				"forced language is not a recognized language code: "+forced, nil)
		}
		logger.Info("language detection bypassed by forced language",
			logging.String("language", lang.ISO6391()))
		return lang, lang.ServiceLocale(), nil
	}

	candidates, err := langcodes.NormalizeCandidates(o.cfg.Transcription.DetectionCandidates())
	if err != nil {
		return langcodes.Language{}, "", taxonomy.Wrap(taxonomy.ErrConfiguration, "orchestrator", "detect", "candidate locales", err)
	}

	if err := o.gate.Acquire(ctx, true); err != nil {
		return langcodes.Language{}, "", taxonomy.Wrap(taxonomy.ErrCancelled, "orchestrator", "detect", "gate closed or context done", err)
	}
	defer o.gate.Release()

	offset := float64(o.cfg.Transcription.DetectLanguageOffset)
	length := float64(o.cfg.Transcription.DetectLanguageLength)
	samplePath, err := o.stager.PrepareSegment(ctx, mediaPath, offset, length)
	if err != nil {
		return langcodes.Language{}, "", taxonomy.Wrap(taxonomy.ErrExternalTool, "orchestrator", "detect", "extract sample", err)
	}
	defer func() {
		if cleanErr := audio.Cleanup(samplePath); cleanErr != nil {
			logger.Warn("remove detection sample", logging.Error(cleanErr))
		}
	}()

	result, err := o.runRemote(ctx, remoteRequest{
		DisplayName: "detect:" + filepath.Base(mediaPath),
		AudioPath:   samplePath,
		Locale:      candidates[0],
		Candidates:  candidates,
	})
	if err != nil {
		return langcodes.Language{}, "", err
	}

	locale := result.DominantLocale()
	if locale == "" {
		return langcodes.Language{}, "", taxonomy.Wrap(taxonomy.ErrValidation, "orchestrator", "detect",
			"service reported no locale for the sample", nil)
	}
	lang, ok := langcodes.FromLocale(locale)
	if !ok {
		return langcodes.Language{}, locale, nil
	}
	logger.Info("language detected",
		logging.String("language", lang.ISO6391()), logging.String("locale", locale))
	return lang, locale, nil
}

// DetectLanguageBytes stages an uploaded audio payload and detects the
// spoken language of the staged file.
func (o *Orchestrator) DetectLanguageBytes(ctx context.Context, data []byte, filename string) (langcodes.Language, string, error) {
	if len(data) == 0 {
		return langcodes.Language{}, "", taxonomy.Wrap(taxonomy.ErrValidation, "orchestrator", "detect", "empty audio payload", nil)
	}
	suffix := strings.ToLower(filepath.Ext(filename))
	if suffix == "" || !audio.IsMediaFile("upload"+suffix) {
		suffix = ".wav"
	}
	stagedPath, err := o.stager.WriteBytes(data, suffix)
	if err != nil {
		return langcodes.Language{}, "", taxonomy.Wrap(taxonomy.ErrTransient, "orchestrator", "detect", "stage upload", err)
	}
	defer func() {
		if cleanErr := audio.Cleanup(stagedPath); cleanErr != nil {
			o.logger.Warn("remove staged upload", logging.Error(cleanErr))
		}
	}()
	return o.DetectLanguage(ctx, stagedPath)
}

// remoteRequest describes one upload-transcribe-fetch round trip that is
// not tracked as a stored job.
type remoteRequest struct {
	DisplayName string
	AudioPath   string
	Locale      string
	Candidates  []string
}

// runRemote uploads staged audio, runs a transcription to completion, and
// always cleans up the blob and remote transcription.
func (o *Orchestrator) runRemote(ctx context.Context, req remoteRequest) (azure.Result, error) {
	blobName := azure.NewBlobName(azure.BlobExtension(req.AudioPath))
	defer o.cleanupBlob(blobName, o.logger)

	if err := o.blob.Upload(ctx, blobName, req.AudioPath); err != nil {
		return azure.Result{}, err
	}
	contentURL, err := o.blob.SASURL(blobName, o.sasLifetime)
	if err != nil {
		return azure.Result{}, err
	}

	created, err := o.speech.Create(ctx, azure.CreateRequest{
		DisplayName:      req.DisplayName,
		Locale:           req.Locale,
		ContentURL:       contentURL,
		CandidateLocales: req.Candidates,
	})
	if err != nil {
		return azure.Result{}, err
	}
	defer o.cleanupTranscription(created.ID, o.logger)

	final, err := o.awaitTranscription(ctx, 0, created.ID, o.logger)
	if err != nil {
		return azure.Result{}, err
	}
	if final.Status == azure.StatusFailed {
		detail := final.Error
		if detail == "" {
			detail = "transcription failed"
		}
		return azure.Result{}, taxonomy.Wrap(taxonomy.ErrValidation, "azure-speech", "transcribe", detail, nil)
	}
	return o.speech.FetchResult(ctx, created.ID)
}

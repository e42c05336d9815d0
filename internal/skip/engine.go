// Package skip decides whether subtitle generation should run for a media
// file, based on what already exists next to it and inside it.
package skip

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"subgen/internal/config"
	"subgen/internal/langcodes"
	"subgen/internal/logging"
	"subgen/internal/media/audio"
	"subgen/internal/media/ffprobe"
	"subgen/internal/subtitles"
)

// Result reports a skip decision and the rule that produced it.
type Result struct {
	Skip   bool
	Rule   string
	Reason string
}

func proceed() Result { return Result{} }

func skipped(rule, reason string) Result {
	return Result{Skip: true, Rule: rule, Reason: reason}
}

// Engine evaluates the configured skip rules in a fixed order. The first
// matching rule wins.
type Engine struct {
	Config           config.Skip
	Preferred        []string
	LimitToPreferred bool
	FFprobeBinary    string
	Logger           *slog.Logger

	// Probe is swappable for tests; nil means real ffprobe.
	Probe func(ctx context.Context, binary, path string) (ffprobe.Result, error)
}

// New builds an Engine from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Engine {
	return &Engine{
		Config:           cfg.Skip,
		Preferred:        cfg.Transcription.PreferredAudioLanguagesList(),
		LimitToPreferred: cfg.Transcription.LimitToPreferredAudio,
		FFprobeBinary:    cfg.FFprobeBinary(),
		Logger:           logging.WithComponent(logger, "skip"),
	}
}

// Evaluate runs the rules for one file. Probe failures are not fatal:
// stream-based rules simply see an empty container.
func (e *Engine) Evaluate(ctx context.Context, mediaPath, targetLanguage string) Result {
	base := filepath.Base(mediaPath)

	if !audio.IsMediaFile(mediaPath) {
		return e.log(mediaPath, skipped("unsupported-extension",
			fmt.Sprintf("Unsupported file extension: %s", base)))
	}
	if _, err := os.Stat(mediaPath); err != nil {
		return e.log(mediaPath, skipped("missing-file",
			fmt.Sprintf("File not found: %s", base)))
	}

	cfg := e.Config

	if cfg.IfTargetSubtitlesExist {
		if hasExternalForLanguage(mediaPath, targetLanguage, cfg.OnlySubgenSubtitles) {
			return e.log(mediaPath, skipped("target-exists",
				fmt.Sprintf("Subtitle already exists for language %q", targetLanguage)))
		}
	}

	if cfg.IfExternalSubtitlesExist {
		if hasAnyExternal(mediaPath, cfg.OnlySubgenSubtitles) {
			return e.log(mediaPath, skipped("external-exists", "External subtitles already exist"))
		}
	}

	internalLang := cfg.InternalSubtitleLanguage()
	audioSkip := cfg.AudioLanguageSkipList()
	subSkip := cfg.SubtitleLanguageSkipList()
	needsStreams := internalLang != "" || len(audioSkip) > 0 || len(subSkip) > 0 ||
		cfg.UnknownLanguage || cfg.IfNoLanguageButSubtitlesExist

	if needsStreams {
		info := e.probe(ctx, mediaPath)
		tracks := info.AudioTracks()
		embedded := info.SubtitleStreams()

		if internalLang != "" && hasEmbeddedForLanguage(embedded, internalLang) {
			return e.log(mediaPath, skipped("internal-language",
				fmt.Sprintf("Internal subtitles exist in %q", internalLang)))
		}

		if len(audioSkip) > 0 && audioMatchesAny(tracks, audioSkip) {
			return e.log(mediaPath, skipped("audio-language",
				fmt.Sprintf("Audio track language in skip list (%s)", strings.Join(audioSkip, ", "))))
		}

		if len(subSkip) > 0 {
			if matched := subtitleMatchesAny(mediaPath, embedded, subSkip); matched != "" {
				return e.log(mediaPath, skipped("subtitle-language",
					fmt.Sprintf("Contains subtitle in skip list language %q", matched)))
			}
		}

		if cfg.UnknownLanguage && hasUnknownAudio(tracks) {
			return e.log(mediaPath, skipped("unknown-audio-language",
				"Audio track has unknown/undefined language"))
		}

		if cfg.IfNoLanguageButSubtitlesExist && !hasTaggedAudio(tracks) {
			if len(embedded) > 0 || len(subtitles.FindExternal(mediaPath)) > 0 {
				return e.log(mediaPath, skipped("no-language-subtitles-exist",
					"No audio language set but subtitles already exist"))
			}
		}
	}

	if e.LimitToPreferred && len(e.Preferred) > 0 {
		tracks := e.probe(ctx, mediaPath).AudioTracks()
		if len(tracks) > 0 && !audio.HasPreferredLanguage(tracks, e.Preferred) {
			return e.log(mediaPath, skipped("preferred-audio",
				fmt.Sprintf("No audio track in preferred languages (%s)", strings.Join(e.Preferred, ", "))))
		}
	}

	return proceed()
}

func (e *Engine) probe(ctx context.Context, path string) ffprobe.Result {
	probe := e.Probe
	if probe == nil {
		probe = ffprobe.Inspect
	}
	info, err := probe(ctx, e.FFprobeBinary, path)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Warn("stream probe failed, treating container as empty",
				logging.String(logging.FieldFile, path), logging.Error(err))
		}
		return ffprobe.Result{}
	}
	return info
}

func (e *Engine) log(path string, result Result) Result {
	if result.Skip && e.Logger != nil {
		e.Logger.Info("skipping file",
			logging.String(logging.FieldFile, path),
			logging.String("rule", result.Rule),
			logging.String("reason", result.Reason))
	}
	return result
}

// languagesEqual compares two language values through the registry, with
// a raw case-insensitive comparison as fallback for tags the registry
// does not know.
func languagesEqual(a, b string) bool {
	langA, okA := langcodes.FromAny(a)
	langB, okB := langcodes.FromAny(b)
	if okA && okB {
		return langA.ISO6391() == langB.ISO6391()
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func hasExternalForLanguage(mediaPath, language string, onlyMarked bool) bool {
	for _, ext := range subtitles.FindExternal(mediaPath) {
		if onlyMarked && !ext.HasMarker {
			continue
		}
		if ext.LanguageToken == "" {
			continue
		}
		if languagesEqual(ext.LanguageToken, language) {
			return true
		}
	}
	return false
}

func hasAnyExternal(mediaPath string, onlyMarked bool) bool {
	for _, ext := range subtitles.FindExternal(mediaPath) {
		if onlyMarked && !ext.HasMarker {
			continue
		}
		return true
	}
	return false
}

func hasEmbeddedForLanguage(embedded []ffprobe.SubtitleStream, language string) bool {
	for _, sub := range embedded {
		if languagesEqual(sub.Language, language) {
			return true
		}
	}
	return false
}

func audioMatchesAny(tracks []ffprobe.AudioTrack, skipList []string) bool {
	for _, track := range tracks {
		for _, lang := range skipList {
			if languagesEqual(track.Language, lang) {
				return true
			}
		}
	}
	return false
}

func subtitleMatchesAny(mediaPath string, embedded []ffprobe.SubtitleStream, skipList []string) string {
	var all []string
	for _, sub := range embedded {
		all = append(all, sub.Language)
	}
	for _, ext := range subtitles.FindExternal(mediaPath) {
		if ext.LanguageToken != "" {
			all = append(all, ext.LanguageToken)
		}
	}
	for _, lang := range all {
		for _, skipLang := range skipList {
			if languagesEqual(lang, skipLang) {
				return skipLang
			}
		}
	}
	return ""
}

func isUnknownLanguage(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "und", "unknown":
		return true
	default:
		return false
	}
}

func hasUnknownAudio(tracks []ffprobe.AudioTrack) bool {
	for _, track := range tracks {
		if isUnknownLanguage(track.Language) {
			return true
		}
	}
	return false
}

func hasTaggedAudio(tracks []ffprobe.AudioTrack) bool {
	for _, track := range tracks {
		if !isUnknownLanguage(track.Language) {
			return true
		}
	}
	return false
}

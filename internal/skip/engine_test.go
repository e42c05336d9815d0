package skip

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"subgen/internal/config"
	"subgen/internal/media/ffprobe"
)

func writeMedia(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func fixedProbe(result ffprobe.Result) func(context.Context, string, string) (ffprobe.Result, error) {
	return func(context.Context, string, string) (ffprobe.Result, error) {
		return result, nil
	}
}

func audioStream(index int, lang string) ffprobe.Stream {
	s := ffprobe.Stream{Index: index, CodecType: "audio"}
	if lang != "" {
		s.Tags = map[string]string{"language": lang}
	}
	return s
}

func subtitleStream(index int, lang string) ffprobe.Stream {
	s := ffprobe.Stream{Index: index, CodecType: "subtitle"}
	if lang != "" {
		s.Tags = map[string]string{"language": lang}
	}
	return s
}

func TestEvaluateUnsupportedExtension(t *testing.T) {
	engine := &Engine{}
	result := engine.Evaluate(context.Background(), "/tv/readme.txt", "en")
	if !result.Skip || result.Rule != "unsupported-extension" {
		t.Fatalf("got %+v", result)
	}
}

func TestEvaluateMissingFile(t *testing.T) {
	engine := &Engine{}
	result := engine.Evaluate(context.Background(), filepath.Join(t.TempDir(), "gone.mkv"), "en")
	if !result.Skip || result.Rule != "missing-file" {
		t.Fatalf("got %+v", result)
	}
}

func TestEvaluateTargetSubtitleExists(t *testing.T) {
	dir := t.TempDir()
	media := writeMedia(t, dir, "show.mkv")
	writeMedia(t, dir, "show.en.srt")

	engine := &Engine{Config: config.Skip{IfTargetSubtitlesExist: true}}
	result := engine.Evaluate(context.Background(), media, "en")
	if !result.Skip || result.Rule != "target-exists" {
		t.Fatalf("got %+v", result)
	}
}

func TestEvaluateTargetMatchesAcrossRepresentations(t *testing.T) {
	dir := t.TempDir()
	media := writeMedia(t, dir, "show.mkv")
	writeMedia(t, dir, "show.eng.srt")

	engine := &Engine{Config: config.Skip{IfTargetSubtitlesExist: true}}
	result := engine.Evaluate(context.Background(), media, "en")
	if !result.Skip {
		t.Fatalf("ISO 639-2 sidecar should satisfy ISO 639-1 target: %+v", result)
	}
}

func TestEvaluateOnlySubgenSubtitles(t *testing.T) {
	dir := t.TempDir()
	media := writeMedia(t, dir, "show.mkv")
	writeMedia(t, dir, "show.en.srt")

	engine := &Engine{Config: config.Skip{
		IfTargetSubtitlesExist: true,
		OnlySubgenSubtitles:    true,
	}}
	if result := engine.Evaluate(context.Background(), media, "en"); result.Skip {
		t.Fatalf("unmarked sidecar should not count: %+v", result)
	}

	writeMedia(t, dir, "show.subgen.en.srt")
	if result := engine.Evaluate(context.Background(), media, "en"); !result.Skip {
		t.Fatal("marked sidecar should count")
	}
}

func TestEvaluateAnyExternalSubtitle(t *testing.T) {
	dir := t.TempDir()
	media := writeMedia(t, dir, "show.mkv")
	writeMedia(t, dir, "show.de.srt")

	engine := &Engine{Config: config.Skip{IfExternalSubtitlesExist: true}}
	result := engine.Evaluate(context.Background(), media, "en")
	if !result.Skip || result.Rule != "external-exists" {
		t.Fatalf("got %+v", result)
	}
}

func TestEvaluateInternalSubtitleLanguage(t *testing.T) {
	dir := t.TempDir()
	media := writeMedia(t, dir, "show.mkv")

	engine := &Engine{
		Config: config.Skip{IfInternalSubtitlesLanguage: "en"},
		Probe: fixedProbe(ffprobe.Result{Streams: []ffprobe.Stream{
			audioStream(0, "jpn"),
			subtitleStream(1, "eng"),
		}}),
	}
	result := engine.Evaluate(context.Background(), media, "en")
	if !result.Skip || result.Rule != "internal-language" {
		t.Fatalf("got %+v", result)
	}
}

func TestEvaluateAudioSkipList(t *testing.T) {
	dir := t.TempDir()
	media := writeMedia(t, dir, "show.mkv")

	engine := &Engine{
		Config: config.Skip{IfAudioTrackIs: "de|fr"},
		Probe:  fixedProbe(ffprobe.Result{Streams: []ffprobe.Stream{audioStream(0, "ger")}}),
	}
	result := engine.Evaluate(context.Background(), media, "en")
	if !result.Skip || result.Rule != "audio-language" {
		t.Fatalf("got %+v", result)
	}
}

func TestEvaluateSubtitleSkipListCoversExternal(t *testing.T) {
	dir := t.TempDir()
	media := writeMedia(t, dir, "show.mkv")
	writeMedia(t, dir, "show.nld.srt")

	engine := &Engine{
		Config: config.Skip{SubtitleLanguages: "nl"},
		Probe:  fixedProbe(ffprobe.Result{Streams: []ffprobe.Stream{audioStream(0, "eng")}}),
	}
	result := engine.Evaluate(context.Background(), media, "en")
	if !result.Skip || result.Rule != "subtitle-language" {
		t.Fatalf("got %+v", result)
	}
}

func TestEvaluateUnknownAudioLanguage(t *testing.T) {
	dir := t.TempDir()
	media := writeMedia(t, dir, "show.mkv")

	engine := &Engine{
		Config: config.Skip{UnknownLanguage: true},
		Probe:  fixedProbe(ffprobe.Result{Streams: []ffprobe.Stream{audioStream(0, "und")}}),
	}
	result := engine.Evaluate(context.Background(), media, "en")
	if !result.Skip || result.Rule != "unknown-audio-language" {
		t.Fatalf("got %+v", result)
	}
}

func TestEvaluateNoLanguageButSubtitlesExist(t *testing.T) {
	dir := t.TempDir()
	media := writeMedia(t, dir, "show.mkv")

	engine := &Engine{
		Config: config.Skip{IfNoLanguageButSubtitlesExist: true},
		Probe: fixedProbe(ffprobe.Result{Streams: []ffprobe.Stream{
			audioStream(0, ""),
			subtitleStream(1, "eng"),
		}}),
	}
	result := engine.Evaluate(context.Background(), media, "en")
	if !result.Skip || result.Rule != "no-language-subtitles-exist" {
		t.Fatalf("got %+v", result)
	}

	// Tagged audio means the rule does not fire even with subtitles present.
	engine.Probe = fixedProbe(ffprobe.Result{Streams: []ffprobe.Stream{
		audioStream(0, "eng"),
		subtitleStream(1, "eng"),
	}})
	if result := engine.Evaluate(context.Background(), media, "en"); result.Skip {
		t.Fatalf("got %+v", result)
	}
}

func TestEvaluatePreferredAudioLimit(t *testing.T) {
	dir := t.TempDir()
	media := writeMedia(t, dir, "show.mkv")

	engine := &Engine{
		Preferred:        []string{"eng"},
		LimitToPreferred: true,
		Probe:            fixedProbe(ffprobe.Result{Streams: []ffprobe.Stream{audioStream(0, "jpn")}}),
	}
	result := engine.Evaluate(context.Background(), media, "en")
	if !result.Skip || result.Rule != "preferred-audio" {
		t.Fatalf("got %+v", result)
	}

	engine.Probe = fixedProbe(ffprobe.Result{Streams: []ffprobe.Stream{audioStream(0, "eng")}})
	if result := engine.Evaluate(context.Background(), media, "en"); result.Skip {
		t.Fatalf("got %+v", result)
	}
}

func TestEvaluateProbeFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	media := writeMedia(t, dir, "show.mkv")

	engine := &Engine{
		Config: config.Skip{UnknownLanguage: true, IfAudioTrackIs: "de"},
		Probe: func(context.Context, string, string) (ffprobe.Result, error) {
			return ffprobe.Result{}, os.ErrPermission
		},
	}
	if result := engine.Evaluate(context.Background(), media, "en"); result.Skip {
		t.Fatalf("probe failure should not skip: %+v", result)
	}
}

func TestEvaluateCleanFileProceeds(t *testing.T) {
	dir := t.TempDir()
	media := writeMedia(t, dir, "show.mkv")

	engine := &Engine{
		Config: config.Skip{
			IfTargetSubtitlesExist:      true,
			IfInternalSubtitlesLanguage: "en",
			IfAudioTrackIs:              "de",
			UnknownLanguage:             true,
		},
		Probe: fixedProbe(ffprobe.Result{Streams: []ffprobe.Stream{audioStream(0, "jpn")}}),
	}
	result := engine.Evaluate(context.Background(), media, "en")
	if result.Skip {
		t.Fatalf("got %+v", result)
	}
}

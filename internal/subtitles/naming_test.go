package subtitles

import (
	"os"
	"path/filepath"
	"testing"
)

func mustNamer(t *testing.T, namingType, override string, marker bool) Namer {
	t.Helper()
	namer, err := NewNamer(namingType, override, marker)
	if err != nil {
		t.Fatalf("NewNamer: %v", err)
	}
	return namer
}

func TestOutputPathDefaults(t *testing.T) {
	namer := mustNamer(t, "ISO_639_2_B", "", false)
	got := namer.OutputPath("/tv/show/ep1.mkv", "de", "", "srt")
	if got != "/tv/show/ep1.ger.srt" {
		t.Fatalf("OutputPath = %q", got)
	}
}

func TestOutputPathMarkerAndSuffix(t *testing.T) {
	namer := mustNamer(t, "ISO_639_1", "", true)
	got := namer.OutputPath("/tv/show/ep1.mkv", "eng", ".hi", "srt")
	if got != "/tv/show/ep1.subgen.en.hi.srt" {
		t.Fatalf("OutputPath = %q", got)
	}
}

func TestOutputPathOverride(t *testing.T) {
	namer := mustNamer(t, "NAME", "aa", false)
	got := namer.OutputPath("/movies/film.mp4", "es", "", "lrc")
	if got != "/movies/film.aa.lrc" {
		t.Fatalf("OutputPath = %q", got)
	}
}

func TestLanguageTokenPassthrough(t *testing.T) {
	namer := mustNamer(t, "NATIVE", "", false)
	if got := namer.LanguageToken("qqq"); got != "qqq" {
		t.Fatalf("unknown language should pass through, got %q", got)
	}
	if got := namer.LanguageToken("spanish"); got != "Español" {
		t.Fatalf("LanguageToken = %q", got)
	}
}

func TestFindExternal(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "Show S01E01.mkv")
	files := []string{
		"Show S01E01.en.srt",
		"Show S01E01.subgen.ger.srt",
		"Show S01E01.srt",
		"Show S01E02.en.srt",
		"Show S01E01.nfo",
	}
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	found := FindExternal(media)
	if len(found) != 3 {
		t.Fatalf("expected 3 externals, got %d: %+v", len(found), found)
	}
	byPath := make(map[string]External, len(found))
	for _, ext := range found {
		byPath[filepath.Base(ext.Path)] = ext
	}
	if got := byPath["Show S01E01.en.srt"]; got.LanguageToken != "en" || got.HasMarker {
		t.Fatalf("unexpected: %+v", got)
	}
	if got := byPath["Show S01E01.subgen.ger.srt"]; got.LanguageToken != "ger" || !got.HasMarker {
		t.Fatalf("marker file misparsed: %+v", got)
	}
	if got := byPath["Show S01E01.srt"]; got.LanguageToken != "" {
		t.Fatalf("bare subtitle should have empty token: %+v", got)
	}
}

func TestTargetExistsAcrossRepresentations(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "film.mkv")
	if err := os.WriteFile(filepath.Join(dir, "film.ger.srt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, lang := range []string{"de", "deu", "ger", "German"} {
		if !TargetExists(media, lang, false) {
			t.Fatalf("expected %q to match existing film.ger.srt", lang)
		}
	}
	if TargetExists(media, "fr", false) {
		t.Fatal("french subtitle should not exist")
	}
	if TargetExists(media, "de", true) {
		t.Fatal("onlyMarker should ignore unmarked files")
	}
}

func TestTargetExistsOnlyMarker(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "film.mkv")
	if err := os.WriteFile(filepath.Join(dir, "film.subgen.eng.srt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !TargetExists(media, "en", true) {
		t.Fatal("marked subtitle should satisfy onlyMarker")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.srt")
	if err := WriteFile(path, "content"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "content" {
		t.Fatalf("unexpected content %q", data)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %v", entries)
	}
}

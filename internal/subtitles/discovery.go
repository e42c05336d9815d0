package subtitles

import (
	"os"
	"path/filepath"
	"strings"

	"subgen/internal/langcodes"
)

// SubtitleExtensions are the on-disk subtitle formats recognized during
// external subtitle discovery.
var SubtitleExtensions = map[string]struct{}{
	".srt":  {},
	".vtt":  {},
	".sub":  {},
	".ass":  {},
	".ssa":  {},
	".idx":  {},
	".sbv":  {},
	".pgs":  {},
	".ttml": {},
	".lrc":  {},
}

// External describes a subtitle file found next to a media file.
type External struct {
	Path          string
	LanguageToken string // last dotted component before the extension, or "" when absent
	HasMarker     bool   // carries the dotted marker token
}

// FindExternal lists subtitle files in the media file's directory whose
// names start with the media file's stem.
func FindExternal(mediaPath string) []External {
	dir := filepath.Dir(mediaPath)
	stem := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var found []External
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := SubtitleExtensions[ext]; !ok {
			continue
		}
		if !strings.HasPrefix(name, stem) {
			continue
		}
		found = append(found, External{
			Path:          filepath.Join(dir, name),
			LanguageToken: languageToken(name, stem),
			HasMarker:     hasMarkerToken(name),
		})
	}
	return found
}

func languageToken(name, stem string) string {
	trimmed := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(trimmed, ".")
	for i := len(parts) - 1; i >= 1; i-- {
		token := parts[i]
		if token == "" || strings.EqualFold(token, MarkerToken) {
			continue
		}
		return token
	}
	return ""
}

func hasMarkerToken(name string) bool {
	trimmed := strings.TrimSuffix(name, filepath.Ext(name))
	for _, part := range strings.Split(trimmed, ".") {
		if strings.EqualFold(part, MarkerToken) {
			return true
		}
	}
	return false
}

// TargetExists reports whether a subtitle for the given language already
// sits next to the media file, in any naming representation, with or
// without the marker token. When onlyMarker is set, only files carrying
// the marker count.
func TargetExists(mediaPath, language string, onlyMarker bool) bool {
	stem := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))

	variants := []string{strings.TrimSpace(language)}
	if lang, ok := langcodes.FromAny(language); ok {
		variants = append(variants,
			lang.ISO6391(), lang.ISO6392T(), lang.ISO6392B(), lang.Name(), lang.Native())
	}

	seen := make(map[string]struct{}, len(variants))
	for _, variant := range variants {
		if variant == "" {
			continue
		}
		if _, ok := seen[variant]; ok {
			continue
		}
		seen[variant] = struct{}{}
		for _, ext := range []string{".srt", ".lrc"} {
			candidates := []string{
				stem + "." + MarkerToken + "." + variant + ext,
				stem + "." + variant + "." + MarkerToken + ext,
			}
			if !onlyMarker {
				candidates = append(candidates, stem+"."+variant+ext)
			}
			for _, candidate := range candidates {
				if _, err := os.Stat(candidate); err == nil {
					return true
				}
			}
		}
	}
	return false
}

package subtitles

import (
	"path/filepath"
	"strings"

	"subgen/internal/langcodes"
)

// MarkerToken is the dotted filename component identifying subtitles this
// service generated, e.g. "movie.subgen.eng.srt".
const MarkerToken = "subgen"

// Namer builds output subtitle paths next to media files.
type Namer struct {
	naming   langcodes.NamingType
	override string
	marker   bool
}

// NewNamer builds a Namer from the configured naming type, optional fixed
// language token override, and marker toggle.
func NewNamer(namingType, override string, marker bool) (Namer, error) {
	parsed, err := langcodes.ParseNamingType(namingType)
	if err != nil {
		return Namer{}, err
	}
	return Namer{naming: parsed, override: strings.TrimSpace(override), marker: marker}, nil
}

// LanguageToken returns the filename token for a language in any
// representation. Unrecognized languages pass through as-is so callers
// never lose a tag the registry does not know.
func (n Namer) LanguageToken(language string) string {
	if n.override != "" {
		return n.override
	}
	lang, ok := langcodes.FromAny(language)
	if !ok {
		return language
	}
	token := lang.Token(n.naming)
	if token == "" {
		token = lang.ISO6391()
	}
	return token
}

// OutputPath returns the subtitle path for a media file:
// <stem>[.subgen].<langToken>[.<suffix>].<ext>.
func (n Namer) OutputPath(mediaPath, language, suffix, ext string) string {
	stem := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	parts := []string{stem}
	if n.marker {
		parts = append(parts, MarkerToken)
	}
	parts = append(parts, n.LanguageToken(language))
	if suffix = strings.TrimPrefix(strings.TrimSpace(suffix), "."); suffix != "" {
		parts = append(parts, suffix)
	}
	return strings.Join(parts, ".") + "." + strings.TrimPrefix(ext, ".")
}

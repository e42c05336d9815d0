package langcodes

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// defaultRegions picks the regioned locale the speech service expects for
// a bare language code. Anything not listed falls back to doubling the
// code ("xx" -> "xx-XX"), which covers locales like "it-IT" and "nl-NL".
var defaultRegions = map[string]string{
	"en": "en-US",
	"de": "de-DE",
	"fr": "fr-FR",
	"es": "es-ES",
	"pt": "pt-BR",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"zh": "zh-CN",
	"ar": "ar-SA",
	"hi": "hi-IN",
	"cs": "cs-CZ",
	"da": "da-DK",
	"el": "el-GR",
	"he": "he-IL",
	"no": "nb-NO",
	"sv": "sv-SE",
	"uk": "uk-UA",
	"vi": "vi-VN",
	"et": "et-EE",
	"sl": "sl-SI",
	"sr": "sr-RS",
	"fa": "fa-IR",
	"ms": "ms-MY",
	"ta": "ta-IN",
	"te": "te-IN",
	"bn": "bn-IN",
	"ur": "ur-PK",
	"eu": "eu-ES",
	"ca": "ca-ES",
	"gl": "gl-ES",
	"ga": "ga-IE",
	"cy": "cy-GB",
	"sw": "sw-KE",
	"af": "af-ZA",
	"sq": "sq-AL",
	"hy": "hy-AM",
	"ka": "ka-GE",
	"az": "az-AZ",
	"kk": "kk-KZ",
	"uz": "uz-UZ",
	"mn": "mn-MN",
	"my": "my-MM",
	"km": "km-KH",
	"lo": "lo-LA",
	"ne": "ne-NP",
	"si": "si-LK",
	"am": "am-ET",
	"fil": "fil-PH",
	"mt": "mt-MT",
	"bs": "bs-BA",
}

// ServiceLocale returns the regioned locale to request from the speech
// service, e.g. "en" -> "en-US". Empty for the unknown sentinel.
func (l Language) ServiceLocale() string {
	if l.IsZero() {
		return ""
	}
	if locale, ok := defaultRegions[l.iso6391]; ok {
		return locale
	}
	return l.iso6391 + "-" + strings.ToUpper(l.iso6391)
}

// FromLocale resolves a regioned locale such as "en-US" back to its
// language row.
func FromLocale(locale string) (Language, bool) {
	return FromAny(locale)
}

// maxCandidateLocales is the most locales the speech service accepts in
// its single-language identification mode.
const maxCandidateLocales = 4

// NormalizeCandidates validates and canonicalizes a list of detection
// candidate locales. Entries must parse as BCP 47 tags; anything past the
// service's four-locale limit is dropped after deduplication.
func NormalizeCandidates(candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidate locales provided")
	}
	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		trimmed := strings.TrimSpace(candidate)
		if trimmed == "" {
			continue
		}
		tag, err := language.Parse(trimmed)
		if err != nil {
			return nil, fmt.Errorf("candidate locale %q: %w", candidate, err)
		}
		canonical := tag.String()
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no candidate locales provided")
	}
	if len(out) > maxCandidateLocales {
		out = out[:maxCandidateLocales]
	}
	return out, nil
}

package azure

import (
	"encoding/json"
	"sort"
	"strings"

	"subgen/internal/subtitles"
	"subgen/internal/taxonomy"
)

// ticksPerSecond converts the API's 100-nanosecond ticks to seconds.
const ticksPerSecond = 10_000_000

// Result is a parsed batch transcription result.
type Result struct {
	Segments []subtitles.Segment
	Locales  map[string]int
}

type resultFile struct {
	RecognizedPhrases []struct {
		OffsetInTicks   float64 `json:"offsetInTicks"`
		DurationInTicks float64 `json:"durationInTicks"`
		Locale          string  `json:"locale"`
		NBest           []struct {
			Display    string  `json:"display"`
			Confidence float64 `json:"confidence"`
		} `json:"nBest"`
	} `json:"recognizedPhrases"`
}

// ParseResult converts a raw result file into subtitle segments. Phrases
// without a display text are dropped; segments come back ordered by start
// time.
func ParseResult(data []byte) (Result, error) {
	var decoded resultFile
	if err := json.Unmarshal(data, &decoded); err != nil {
		return Result{}, taxonomy.Wrap(taxonomy.ErrValidation, "azure-speech", "result", "parse result file", err)
	}

	result := Result{Locales: make(map[string]int)}
	for _, phrase := range decoded.RecognizedPhrases {
		if locale := strings.TrimSpace(phrase.Locale); locale != "" {
			result.Locales[locale]++
		}
		if len(phrase.NBest) == 0 {
			continue
		}
		text := strings.TrimSpace(phrase.NBest[0].Display)
		if text == "" {
			continue
		}
		start := phrase.OffsetInTicks / ticksPerSecond
		result.Segments = append(result.Segments, subtitles.Segment{
			Start:      start,
			End:        start + phrase.DurationInTicks/ticksPerSecond,
			Text:       text,
			Confidence: phrase.NBest[0].Confidence,
		})
	}
	sort.SliceStable(result.Segments, func(i, j int) bool {
		return result.Segments[i].Start < result.Segments[j].Start
	})
	return result, nil
}

// DominantLocale returns the locale recognized for the most phrases, or
// "" when the result carries no locale information.
func (r Result) DominantLocale() string {
	best := ""
	bestCount := 0
	for locale, count := range r.Locales {
		if count > bestCount || (count == bestCount && locale < best) {
			best = locale
			bestCount = count
		}
	}
	return best
}

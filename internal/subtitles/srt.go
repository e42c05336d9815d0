// Package subtitles holds the subtitle document model and the SRT, WebVTT,
// and LRC codecs, plus output-path naming for generated files.
package subtitles

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Segment is a single timed caption. Times are seconds from media start;
// Confidence is the recognizer's score for the text, in [0,1].
type Segment struct {
	Start      float64
	End        float64
	Text       string
	Confidence float64
}

var timingPattern = regexp.MustCompile(`(\d{2}:\d{2}:\d{2},\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2},\d{3})`)

// ParseSRT parses SRT content into segments. Malformed blocks are dropped
// rather than failing the whole document, matching how players treat them.
func ParseSRT(content string) []Segment {
	var segments []Segment
	blocks := regexp.MustCompile(`\n\s*\n`).Split(strings.TrimSpace(content), -1)
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 3 {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSpace(lines[0])); err != nil {
			continue
		}
		match := timingPattern.FindStringSubmatch(lines[1])
		if match == nil {
			continue
		}
		start, err := ParseTimestamp(match[1])
		if err != nil {
			continue
		}
		end, err := ParseTimestamp(match[2])
		if err != nil {
			continue
		}
		segments = append(segments, Segment{
			Start: start,
			End:   end,
			Text:  strings.Join(lines[2:], "\n"),
		})
	}
	return segments
}

// FormatSRT renders segments as SRT, re-indexing cues from 1.
func FormatSRT(segments []Segment) string {
	var sb strings.Builder
	for i, segment := range segments {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteByte('\n')
		sb.WriteString(FormatTimestamp(segment.Start))
		sb.WriteString(" --> ")
		sb.WriteString(FormatTimestamp(segment.End))
		sb.WriteByte('\n')
		sb.WriteString(segment.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ParseTimestamp converts "HH:MM:SS,mmm" to seconds. A period is accepted
// in place of the comma.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(strings.ReplaceAll(value, ".", ","))
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}

// maxTimestampMillis caps formatted timestamps at the two-digit hour
// field, 99:59:59,999.
const maxTimestampMillis = 100*3600*1000 - 1

// FormatTimestamp converts seconds to "HH:MM:SS,mmm". The value is
// rounded to the nearest millisecond before splitting into fields, so
// inputs like 3.001 that have no exact binary representation still render
// their intended millisecond. Negative values clamp to zero and hours cap
// at 99.
func FormatTimestamp(seconds float64) string {
	millis := int(math.Round(seconds * 1000))
	if millis < 0 {
		millis = 0
	}
	if millis > maxTimestampMillis {
		millis = maxTimestampMillis
	}
	hours := millis / 3600000
	minutes := millis % 3600000 / 60000
	secs := millis % 60000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis%1000)
}

// Validate reports the first structural problem in segments, or nil.
func Validate(segments []Segment) error {
	if len(segments) == 0 {
		return fmt.Errorf("no subtitle segments")
	}
	for i, segment := range segments {
		if segment.End <= segment.Start {
			return fmt.Errorf("segment %d: end time must be after start time", i+1)
		}
	}
	return nil
}

package subtitles

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatVTT renders segments as WebVTT. Only the timestamps switch from
// comma to dot separators; caption text is emitted untouched.
func FormatVTT(segments []Segment) string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n\n")
	for i, segment := range segments {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteByte('\n')
		sb.WriteString(strings.ReplaceAll(FormatTimestamp(segment.Start), ",", "."))
		sb.WriteString(" --> ")
		sb.WriteString(strings.ReplaceAll(FormatTimestamp(segment.End), ",", "."))
		sb.WriteByte('\n')
		sb.WriteString(segment.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// FormatLRC renders segments as LRC lyrics lines. Timestamps are
// "[MM:SS.cc]" with hundredths truncated; embedded newlines are collapsed
// to spaces because some players ignore text after a newline.
func FormatLRC(segments []Segment) string {
	var sb strings.Builder
	for _, segment := range segments {
		start := segment.Start
		if start < 0 {
			start = 0
		}
		minutes := int(start) / 60
		seconds := int(start) % 60
		hundredths := int((start - float64(int(start))) * 100)
		text := strings.TrimSpace(strings.ReplaceAll(segment.Text, "\n", " "))
		fmt.Fprintf(&sb, "[%02d:%02d.%02d]%s\n", minutes, seconds, hundredths, text)
	}
	return sb.String()
}

// FormatText renders the plain transcript, one segment per line.
func FormatText(segments []Segment) string {
	var sb strings.Builder
	for _, segment := range segments {
		sb.WriteString(strings.TrimSpace(segment.Text))
		sb.WriteByte('\n')
	}
	return sb.String()
}

const creditOffsetSeconds = 5.0

// AppendCredit appends a credit cue after the final segment: it starts
// five seconds after the last end time and shows for five seconds.
func AppendCredit(segments []Segment, at time.Time) []Segment {
	if len(segments) == 0 {
		return segments
	}
	lastEnd := segments[len(segments)-1].End
	start := lastEnd + creditOffsetSeconds
	out := make([]Segment, len(segments), len(segments)+1)
	copy(out, segments)
	return append(out, Segment{
		Start: start,
		End:   start + creditOffsetSeconds,
		Text:  fmt.Sprintf("Transcribed by Subgen on %s", at.Format("02 Jan 2006 - 15:04:05")),
	})
}

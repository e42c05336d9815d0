package subtitles

import (
	"strings"
	"testing"
	"time"
)

const sampleSRT = `1
00:00:01,500 --> 00:00:03,000
Hello there.

2
00:00:04,000 --> 00:00:06,250
Two lines
of text.
`

func TestParseSRT(t *testing.T) {
	segments := ParseSRT(sampleSRT)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Start != 1.5 || segments[0].End != 3.0 {
		t.Fatalf("unexpected timing: %+v", segments[0])
	}
	if segments[1].Text != "Two lines\nof text." {
		t.Fatalf("unexpected text: %q", segments[1].Text)
	}
}

func TestParseSRTDropsMalformedBlocks(t *testing.T) {
	content := sampleSRT + "\nnot-a-number\n00:00:07,000 --> 00:00:08,000\nBroken.\n"
	segments := ParseSRT(content)
	if len(segments) != 2 {
		t.Fatalf("malformed block should be dropped, got %d segments", len(segments))
	}
}

func TestFormatSRTReindexes(t *testing.T) {
	segments := []Segment{
		{Start: 0.5, End: 1.0, Text: "a"},
		{Start: 2.0, End: 3.5, Text: "b"},
	}
	out := FormatSRT(segments)
	if !strings.HasPrefix(out, "1\n00:00:00,500 --> 00:00:01,000\na\n") {
		t.Fatalf("unexpected first block:\n%s", out)
	}
	if !strings.Contains(out, "\n2\n00:00:02,000 --> 00:00:03,500\nb\n") {
		t.Fatalf("unexpected second block:\n%s", out)
	}
}

func TestRoundTrip(t *testing.T) {
	segments := ParseSRT(sampleSRT)
	again := ParseSRT(FormatSRT(segments))
	if len(again) != len(segments) {
		t.Fatalf("round trip lost segments: %d != %d", len(again), len(segments))
	}
	for i := range segments {
		if segments[i] != again[i] {
			t.Fatalf("segment %d changed: %+v != %+v", i, segments[i], again[i])
		}
	}
}

func TestFormatTimestampRoundsMillis(t *testing.T) {
	// 3.001 has no exact float64 representation; field-by-field
	// truncation used to render it as ,000.
	if got := FormatTimestamp(3.001); got != "00:00:03,001" {
		t.Fatalf("FormatTimestamp(3.001) = %q", got)
	}
	if got := FormatTimestamp(3661.9996); got != "01:01:02,000" {
		t.Fatalf("FormatTimestamp(3661.9996) = %q", got)
	}
	if got := FormatTimestamp(-1); got != "00:00:00,000" {
		t.Fatalf("negative seconds should clamp, got %q", got)
	}
}

func TestFormatTimestampCapsHours(t *testing.T) {
	// 360123 seconds is just over 100 hours.
	if got := FormatTimestamp(360123); got != "99:59:59,999" {
		t.Fatalf("hours should cap at two digits, got %q", got)
	}
}

func TestParseTimestampAcceptsPeriod(t *testing.T) {
	seconds, err := ParseTimestamp("00:01:02.345")
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if seconds != 62.345 {
		t.Fatalf("got %v", seconds)
	}
}

func TestFormatVTT(t *testing.T) {
	segments := []Segment{{Start: 1.5, End: 3, Text: "Hi"}}
	out := FormatVTT(segments)
	if !strings.HasPrefix(out, "WEBVTT\n\n") {
		t.Fatalf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "00:00:01.500 --> 00:00:03.000") {
		t.Fatalf("timestamps should use dots:\n%s", out)
	}
}

func TestFormatVTTKeepsCommasInText(t *testing.T) {
	segments := []Segment{{Start: 0, End: 2, Text: "Hello, this is a test."}}
	out := FormatVTT(segments)
	if !strings.Contains(out, "Hello, this is a test.") {
		t.Fatalf("caption text was altered:\n%s", out)
	}
	if !strings.Contains(out, "00:00:00.000 --> 00:00:02.000") {
		t.Fatalf("unexpected timestamps:\n%s", out)
	}
}

func TestFormatLRC(t *testing.T) {
	segments := []Segment{
		{Start: 61.789, End: 63, Text: "line one\nline two"},
	}
	out := FormatLRC(segments)
	if out != "[01:01.78]line one line two\n" {
		t.Fatalf("unexpected LRC output: %q", out)
	}
}

func TestAppendCredit(t *testing.T) {
	at := time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)
	segments := []Segment{{Start: 0, End: 10, Text: "end"}}
	out := AppendCredit(segments, at)
	if len(out) != 2 {
		t.Fatalf("expected credit appended, got %d segments", len(out))
	}
	credit := out[1]
	if credit.Start != 15 || credit.End != 20 {
		t.Fatalf("unexpected credit timing: %+v", credit)
	}
	if credit.Text != "Transcribed by Subgen on 14 Mar 2026 - 09:26:53" {
		t.Fatalf("unexpected credit text: %q", credit.Text)
	}
}

func TestAppendCreditEmpty(t *testing.T) {
	if out := AppendCredit(nil, time.Now()); len(out) != 0 {
		t.Fatal("credit should not be added to an empty document")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatal("expected error for empty document")
	}
	if err := Validate([]Segment{{Start: 2, End: 1, Text: "x"}}); err == nil {
		t.Fatal("expected error for inverted timing")
	}
	if err := Validate([]Segment{{Start: 1, End: 2, Text: "x"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index       int               `json:"index"`
	CodecName   string            `json:"codec_name"`
	CodecType   string            `json:"codec_type"`
	Channels    int               `json:"channels"`
	Tags        map[string]string `json:"tags"`
	Disposition struct {
		Default int `json:"default"`
	} `json:"disposition"`
}

// Language returns the stream's language tag, lowercased. Missing tags
// come back as "und", matching what muxers write for untagged streams.
func (s Stream) Language() string {
	for key, value := range s.Tags {
		if strings.EqualFold(key, "language") {
			if trimmed := strings.ToLower(strings.TrimSpace(value)); trimmed != "" {
				return trimmed
			}
		}
	}
	return "und"
}

// Title returns the stream title tag, falling back to handler_name.
func (s Stream) Title() string {
	for _, key := range []string{"title", "handler_name"} {
		for tag, value := range s.Tags {
			if strings.EqualFold(tag, key) && strings.TrimSpace(value) != "" {
				return value
			}
		}
	}
	return ""
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

// AudioTrack is one audio stream with its 0-based audio-track ordinal,
// which is what ffmpeg's "-map 0:a:N" selector expects.
type AudioTrack struct {
	TrackIndex  int // ordinal among audio streams
	StreamIndex int // absolute stream index in the container
	Codec       string
	Channels    int
	Language    string
	Title       string
	Default     bool
}

// SubtitleStream is one embedded subtitle stream.
type SubtitleStream struct {
	StreamIndex int
	Codec       string
	Language    string
	Title       string
}

// Inspect executes ffprobe against the provided path and decodes the JSON
// response.
func Inspect(ctx context.Context, binary, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// AudioTracks returns the audio streams in container order with their
// ffmpeg track ordinals assigned.
func (r Result) AudioTracks() []AudioTrack {
	var tracks []AudioTrack
	ordinal := 0
	for _, stream := range r.Streams {
		if !strings.EqualFold(stream.CodecType, "audio") {
			continue
		}
		tracks = append(tracks, AudioTrack{
			TrackIndex:  ordinal,
			StreamIndex: stream.Index,
			Codec:       stream.CodecName,
			Channels:    stream.Channels,
			Language:    stream.Language(),
			Title:       stream.Title(),
			Default:     stream.Disposition.Default == 1,
		})
		ordinal++
	}
	return tracks
}

// SubtitleStreams returns the embedded subtitle streams.
func (r Result) SubtitleStreams() []SubtitleStream {
	var subs []SubtitleStream
	for _, stream := range r.Streams {
		if !strings.EqualFold(stream.CodecType, "subtitle") {
			continue
		}
		subs = append(subs, SubtitleStream{
			StreamIndex: stream.Index,
			Codec:       stream.CodecName,
			Language:    stream.Language(),
			Title:       stream.Title(),
		})
	}
	return subs
}

// DurationSeconds returns the container duration in seconds, or 0 when
// unavailable.
func (r Result) DurationSeconds() float64 {
	cleaned := strings.TrimSpace(r.Format.Duration)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil && parsed > 0 {
		return parsed
	}
	return 0
}

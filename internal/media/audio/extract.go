package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ExtractForUpload extracts one audio track to a mono 16 kHz Opus stream
// in an OGG container. 64 kbps is plenty for speech and keeps uploads an
// order of magnitude smaller than PCM.
func ExtractForUpload(ctx context.Context, ffmpegBinary, source string, audioTrack int, dest string) error {
	if audioTrack < 0 {
		return fmt.Errorf("extract audio: invalid audio track index %d", audioTrack)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", fmt.Sprintf("0:a:%d", audioTrack),
		"-vn",
		"-acodec", "libopus",
		"-ar", "16000",
		"-b:a", "64k",
		"-ac", "1",
		dest,
	}
	return runFFmpeg(ctx, ffmpegBinary, args)
}

// ExtractSegment extracts a bounded mono 16 kHz PCM WAV segment, used for
// language detection samples.
func ExtractSegment(ctx context.Context, ffmpegBinary, source string, offset, duration float64, dest string) error {
	if duration <= 0 {
		return fmt.Errorf("extract segment: invalid duration %v", duration)
	}
	if offset < 0 {
		offset = 0
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(offset),
		"-i", source,
		"-t", formatSeconds(duration),
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		dest,
	}
	return runFFmpeg(ctx, ffmpegBinary, args)
}

// Transcode remuxes an audio file to mono 16 kHz Opus for upload.
func Transcode(ctx context.Context, ffmpegBinary, source, dest string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-acodec", "libopus",
		"-ar", "16000",
		"-b:a", "64k",
		"-ac", "1",
		dest,
	}
	return runFFmpeg(ctx, ffmpegBinary, args)
}

func runFFmpeg(ctx context.Context, binary string, args []string) error {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

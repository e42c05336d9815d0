package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Stager prepares upload-ready audio in the transcode directory.
type Stager struct {
	TranscodeDir string
	FFmpegBinary string
}

// TempFile creates an empty temp file under the transcode directory and
// returns its path.
func (s Stager) TempFile(suffix string) (string, error) {
	dir := s.TranscodeDir
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure transcode dir: %w", err)
	}
	file, err := os.CreateTemp(dir, "subgen-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := file.Name()
	if err := file.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return name, nil
}

// Prepare produces an upload-ready audio file for a media file. Video
// containers get the selected track extracted; Opus/OGG audio passes
// through untouched; other audio is transcoded. The second return reports
// whether the caller owns a temp file to clean up.
func (s Stager) Prepare(ctx context.Context, mediaPath string, audioTrack int) (string, bool, error) {
	if !IsMediaFile(mediaPath) {
		return "", false, fmt.Errorf("unsupported media file: %s", mediaPath)
	}
	if _, err := os.Stat(mediaPath); err != nil {
		return "", false, fmt.Errorf("stat media file: %w", err)
	}

	if IsAudioFile(mediaPath) {
		switch strings.ToLower(filepath.Ext(mediaPath)) {
		case ".ogg", ".opus":
			return mediaPath, false, nil
		}
		dest, err := s.TempFile(".ogg")
		if err != nil {
			return "", false, err
		}
		if err := Transcode(ctx, s.FFmpegBinary, mediaPath, dest); err != nil {
			os.Remove(dest)
			return "", false, err
		}
		return dest, true, nil
	}

	dest, err := s.TempFile(".ogg")
	if err != nil {
		return "", false, err
	}
	if err := ExtractForUpload(ctx, s.FFmpegBinary, mediaPath, audioTrack, dest); err != nil {
		os.Remove(dest)
		return "", false, err
	}
	return dest, true, nil
}

// PrepareSegment extracts a bounded detection sample as WAV. The caller
// owns the returned temp file.
func (s Stager) PrepareSegment(ctx context.Context, mediaPath string, offset, duration float64) (string, error) {
	dest, err := s.TempFile(".wav")
	if err != nil {
		return "", err
	}
	if err := ExtractSegment(ctx, s.FFmpegBinary, mediaPath, offset, duration, dest); err != nil {
		os.Remove(dest)
		return "", err
	}
	return dest, nil
}

// WriteBytes stages raw uploaded audio bytes as a temp file with the
// given extension.
func (s Stager) WriteBytes(data []byte, suffix string) (string, error) {
	dest, err := s.TempFile(suffix)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("write staged audio: %w", err)
	}
	return dest, nil
}

// Cleanup removes a temp file, ignoring files that are already gone.
func Cleanup(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Processing.TranscodeDir, err = expandPath(c.Processing.TranscodeDir); err != nil {
		return fmt.Errorf("processing.transcode_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DatabasePath) == "" {
		c.Paths.DatabasePath = filepath.Join(c.Processing.TranscodeDir, "subgen.db")
	}
	if c.Paths.DatabasePath, err = expandPath(c.Paths.DatabasePath); err != nil {
		return fmt.Errorf("paths.database_path: %w", err)
	}

	c.Azure.SpeechRegion = strings.ToLower(strings.TrimSpace(c.Azure.SpeechRegion))
	c.Azure.StorageContainer = strings.TrimSpace(c.Azure.StorageContainer)
	if c.Azure.StorageContainer == "" {
		c.Azure.StorageContainer = defaultStorageContainer
	}

	c.Naming.NamingType = strings.ToUpper(strings.TrimSpace(c.Naming.NamingType))
	if c.Naming.NamingType == "" {
		c.Naming.NamingType = defaultNamingType
	}

	c.Processing.SubtitleLanguage = strings.TrimSpace(c.Processing.SubtitleLanguage)
	if c.Processing.SubtitleLanguage == "" {
		c.Processing.SubtitleLanguage = defaultSubtitleLanguage
	}
	if c.Processing.ConcurrentTranscriptions <= 0 {
		c.Processing.ConcurrentTranscriptions = defaultConcurrent
	}
	if c.Processing.JobPollInterval <= 0 {
		c.Processing.JobPollInterval = defaultJobPollInterval
	}
	if c.Processing.MaxPollAttempts <= 0 {
		c.Processing.MaxPollAttempts = defaultMaxPollAttempts
	}
	if c.Transcription.DetectLanguageLength <= 0 {
		c.Transcription.DetectLanguageLength = defaultDetectLength
	}
	if c.Transcription.DetectLanguageOffset < 0 {
		c.Transcription.DetectLanguageOffset = 0
	}

	c.Bazarr.URL = strings.TrimRight(strings.TrimSpace(c.Bazarr.URL), "/")
	c.Plex.Server = strings.TrimRight(strings.TrimSpace(c.Plex.Server), "/")
	c.Jellyfin.Server = strings.TrimRight(strings.TrimSpace(c.Jellyfin.Server), "/")
	c.Emby.Server = strings.TrimRight(strings.TrimSpace(c.Emby.Server), "/")

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	return nil
}

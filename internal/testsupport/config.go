// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"subgen/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Azure.SpeechKey = "test-key"
	cfg.Azure.SpeechRegion = "swedencentral"
	cfg.Processing.TranscodeDir = filepath.Join(base, "transcode")
	cfg.Processing.MediaFolders = []string{filepath.Join(base, "media")}
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.DatabasePath = filepath.Join(base, "transcode", "subgen.db")
	cfg.Server.Bind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithSubtitleLanguage overrides the target subtitle language.
func WithSubtitleLanguage(lang string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Processing.SubtitleLanguage = lang
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Processing.TranscodeDir)
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Azure contains speech service and blob storage credentials.
type Azure struct {
	SpeechKey               string `toml:"speech_key"`
	SpeechRegion            string `toml:"speech_region"`
	StorageConnectionString string `toml:"storage_connection_string"`
	StorageContainer        string `toml:"storage_container"`
}

// Configured reports whether enough Azure settings are present to
// transcribe. The daemon starts without them; transcription endpoints
// refuse until they are set.
func (a Azure) Configured() bool {
	return strings.TrimSpace(a.SpeechKey) != "" &&
		strings.TrimSpace(a.SpeechRegion) != "" &&
		strings.TrimSpace(a.StorageConnectionString) != ""
}

// Processing contains pipeline throughput and staging settings.
type Processing struct {
	ConcurrentTranscriptions int      `toml:"concurrent_transcriptions"`
	JobPollInterval          int      `toml:"job_poll_interval"`
	MaxPollAttempts          int      `toml:"max_poll_attempts"`
	TranscodeDir             string   `toml:"transcode_dir"`
	MediaFolders             []string `toml:"media_folders"`
	SubtitleLanguage         string   `toml:"subtitle_language"`
}

// Transcription controls language handling and output behavior.
type Transcription struct {
	ForceLanguage               string `toml:"force_language"`
	AppendCreditLine            bool   `toml:"append_credit_line"`
	LRCForAudioFiles            bool   `toml:"lrc_for_audio_files"`
	PreferredAudioLanguages     string `toml:"preferred_audio_languages"`
	LimitToPreferredAudio       bool   `toml:"limit_to_preferred_audio_languages"`
	DetectLanguageLength        int    `toml:"detect_language_length"`
	DetectLanguageOffset        int    `toml:"detect_language_offset"`
	LanguageDetectionCandidates string `toml:"language_detection_candidates"`
}

// ForcedLanguage returns the forced language or empty when auto-detect.
func (t Transcription) ForcedLanguage() string {
	return strings.TrimSpace(t.ForceLanguage)
}

// PreferredAudioLanguagesList splits the pipe-separated preference list.
func (t Transcription) PreferredAudioLanguagesList() []string {
	return splitList(t.PreferredAudioLanguages, "|")
}

// DetectionCandidates splits the comma-separated candidate locale list.
func (t Transcription) DetectionCandidates() []string {
	out := splitList(t.LanguageDetectionCandidates, ",")
	for i, v := range out {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

// Naming controls the language token in output subtitle filenames.
type Naming struct {
	NamingType           string `toml:"naming_type"`
	ShowSubgenMarker     bool   `toml:"show_subgen_marker"`
	LanguageNameOverride string `toml:"subtitle_language_name"`
}

// Skip determines when subtitle generation is skipped for a file.
type Skip struct {
	IfTargetSubtitlesExist        bool   `toml:"if_target_subtitles_exist"`
	IfExternalSubtitlesExist      bool   `toml:"if_external_subtitles_exist"`
	IfInternalSubtitlesLanguage   string `toml:"if_internal_subtitles_language"`
	OnlySubgenSubtitles           bool   `toml:"only_subgen_subtitles"`
	IfAudioTrackIs                string `toml:"if_audio_track_is"`
	SubtitleLanguages             string `toml:"subtitle_languages"`
	UnknownLanguage               bool   `toml:"unknown_language"`
	IfNoLanguageButSubtitlesExist bool   `toml:"if_no_language_but_subtitles_exist"`
}

// InternalSubtitleLanguage returns the embedded-subtitle language that
// triggers a skip, or empty when the check is disabled.
func (s Skip) InternalSubtitleLanguage() string {
	return strings.TrimSpace(s.IfInternalSubtitlesLanguage)
}

// AudioLanguageSkipList splits the pipe-separated audio language skip list.
func (s Skip) AudioLanguageSkipList() []string {
	return splitLower(s.IfAudioTrackIs)
}

// SubtitleLanguageSkipList splits the pipe-separated subtitle language
// skip list.
func (s Skip) SubtitleLanguageSkipList() []string {
	return splitLower(s.SubtitleLanguages)
}

// PathMapping rewrites incoming paths when the daemon sees a different
// mount layout than the media server that reported them.
type PathMapping struct {
	Enabled  bool   `toml:"enabled"`
	FromPath string `toml:"from_path"`
	ToPath   string `toml:"to_path"`
}

// Apply rewrites path when mapping is enabled.
func (p PathMapping) Apply(path string) string {
	if p.Enabled && p.FromPath != "" {
		return strings.Replace(path, p.FromPath, p.ToPath, 1)
	}
	return path
}

// Webhooks controls which media server events trigger processing.
type Webhooks struct {
	ProcessAddedMedia bool `toml:"process_added_media"`
	ProcessOnPlay     bool `toml:"process_on_play"`
}

// Bazarr contains Bazarr API settings.
type Bazarr struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// Configured reports whether the Bazarr integration can be used.
func (b Bazarr) Configured() bool {
	return strings.TrimSpace(b.URL) != "" && strings.TrimSpace(b.APIKey) != ""
}

// MediaServer contains connection settings for one media server.
type MediaServer struct {
	Token  string `toml:"token"`
	Server string `toml:"server"`
}

// Configured reports whether the server can be called.
func (m MediaServer) Configured() bool {
	return strings.TrimSpace(m.Token) != "" && strings.TrimSpace(m.Server) != ""
}

// Pushover contains failure notification settings.
type Pushover struct {
	UserKey         string `toml:"user_key"`
	APIToken        string `toml:"api_token"`
	NotifyOnFailure bool   `toml:"notify_on_failure"`
}

// Configured reports whether Pushover credentials are present.
func (p Pushover) Configured() bool {
	return strings.TrimSpace(p.UserKey) != "" && strings.TrimSpace(p.APIToken) != ""
}

// Server contains the HTTP listener settings.
type Server struct {
	Bind string `toml:"bind"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Paths contains directory configuration beyond the transcode dir.
type Paths struct {
	LogDir       string `toml:"log_dir"`
	DatabasePath string `toml:"database_path"`
}

// Config encapsulates all configuration values for the daemon.
type Config struct {
	Azure         Azure         `toml:"azure"`
	Processing    Processing    `toml:"processing"`
	Transcription Transcription `toml:"transcription"`
	Naming        Naming        `toml:"naming"`
	Skip          Skip          `toml:"skip"`
	PathMapping   PathMapping   `toml:"path_mapping"`
	Webhooks      Webhooks      `toml:"webhooks"`
	Bazarr        Bazarr        `toml:"bazarr"`
	Plex          MediaServer   `toml:"plex"`
	Jellyfin      MediaServer   `toml:"jellyfin"`
	Emby          MediaServer   `toml:"emby"`
	Pushover      Pushover      `toml:"pushover"`
	Server        Server        `toml:"server"`
	Logging       Logging       `toml:"logging"`
	Paths         Paths         `toml:"paths"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/subgen/config.toml")
}

// Load parses the optional configuration file, layers environment
// variables on top, and validates the result.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("subgen.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Processing.TranscodeDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.DatabasePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func splitList(value, sep string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func splitLower(value string) []string {
	parts := splitList(value, "|")
	for i, part := range parts {
		parts[i] = strings.ToLower(part)
	}
	return parts
}

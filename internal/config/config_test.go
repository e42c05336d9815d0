package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.normalize())
	require.NoError(t, cfg.Validate())
	require.Equal(t, 50, cfg.Processing.ConcurrentTranscriptions)
	require.Equal(t, "ISO_639_2_B", cfg.Naming.NamingType)
	require.True(t, cfg.Skip.IfTargetSubtitlesExist)
	require.True(t, cfg.Pushover.NotifyOnFailure)
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"AZURE_SPEECH_KEY":                "key123",
		"AZURE_SPEECH_REGION":             "westeurope",
		"AZURE_STORAGE_CONNECTION_STRING": "DefaultEndpointsProtocol=https;AccountName=acct;AccountKey=a2V5;EndpointSuffix=core.windows.net",
		"CONCURRENT_TRANSCRIPTIONS":       "8",
		"JOB_POLL_INTERVAL":               "3",
		"TRANSCODE_DIR":                   "/tmp/stage",
		"SKIP_IF_AUDIO_TRACK_IS":          "en|eng|english",
		"SUBTITLE_LANGUAGE_NAMING_TYPE":   "iso_639_1",
		"SHOW_IN_SUBNAME_SUBGEN":          "true",
		"USE_PATH_MAPPING":                "true",
		"PATH_MAPPING_FROM":               "/data",
		"PATH_MAPPING_TO":                 "/media",
		"WEBSERVER_PORT":                  "9100",
		"DEBUG":                           "1",
		"MEDIA_FOLDERS":                   "/films,/series",
	}
	cfg := Default()
	cfg.applyEnv(func(key string) string { return env[key] })
	require.NoError(t, cfg.normalize())
	require.NoError(t, cfg.Validate())

	require.Equal(t, "key123", cfg.Azure.SpeechKey)
	require.Equal(t, "westeurope", cfg.Azure.SpeechRegion)
	require.True(t, cfg.Azure.Configured())
	require.Equal(t, 8, cfg.Processing.ConcurrentTranscriptions)
	require.Equal(t, 3, cfg.Processing.JobPollInterval)
	require.Equal(t, "/tmp/stage", cfg.Processing.TranscodeDir)
	require.Equal(t, []string{"en", "eng", "english"}, cfg.Skip.AudioLanguageSkipList())
	require.Equal(t, "ISO_639_1", cfg.Naming.NamingType)
	require.True(t, cfg.Naming.ShowSubgenMarker)
	require.Equal(t, "/media/movies", cfg.PathMapping.Apply("/data/movies"))
	require.Equal(t, "0.0.0.0:9100", cfg.Server.Bind)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, []string{"/films", "/series"}, cfg.Processing.MediaFolders)
	require.Equal(t, "/tmp/stage/subgen.db", cfg.Paths.DatabasePath)
}

func TestValidateRejectsBadNamingType(t *testing.T) {
	cfg := Default()
	cfg.Naming.NamingType = "ISO_9000"
	require.NoError(t, cfg.normalize())
	require.Error(t, cfg.Validate())
}

func TestValidateAcceptsExtraCandidates(t *testing.T) {
	// Anything past the service's four-locale cap is dropped at
	// normalization time, not rejected here.
	cfg := Default()
	cfg.Transcription.LanguageDetectionCandidates = "en-US,nl-NL,es-ES,fr-FR,de-DE"
	require.NoError(t, cfg.normalize())
	require.NoError(t, cfg.Validate())

	cfg.Transcription.LanguageDetectionCandidates = " , "
	require.Error(t, cfg.Validate())
}

func TestPathMappingDisabledLeavesPath(t *testing.T) {
	cfg := Default()
	cfg.PathMapping.FromPath = "/data"
	cfg.PathMapping.ToPath = "/media"
	require.Equal(t, "/data/movies", cfg.PathMapping.Apply("/data/movies"))
}

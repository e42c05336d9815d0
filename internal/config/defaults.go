package config

const (
	defaultSpeechRegion        = "swedencentral"
	defaultStorageContainer    = "transcription-audio"
	defaultConcurrent          = 50
	defaultJobPollInterval     = 10
	defaultMaxPollAttempts     = 360
	defaultTranscodeDir        = "/transcode"
	defaultSubtitleLanguage    = "en"
	defaultNamingType          = "ISO_639_2_B"
	defaultDetectLength        = 30
	defaultDetectionCandidates = "en-US,nl-NL,es-ES,fr-FR"
	defaultBind                = "0.0.0.0:9000"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogDir              = "~/.local/share/subgen/logs"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Azure: Azure{
			SpeechRegion:     defaultSpeechRegion,
			StorageContainer: defaultStorageContainer,
		},
		Processing: Processing{
			ConcurrentTranscriptions: defaultConcurrent,
			JobPollInterval:          defaultJobPollInterval,
			MaxPollAttempts:          defaultMaxPollAttempts,
			TranscodeDir:             defaultTranscodeDir,
			MediaFolders:             []string{"/tv", "/movies"},
			SubtitleLanguage:         defaultSubtitleLanguage,
		},
		Transcription: Transcription{
			LRCForAudioFiles:            true,
			DetectLanguageLength:        defaultDetectLength,
			LanguageDetectionCandidates: defaultDetectionCandidates,
		},
		Naming: Naming{
			NamingType: defaultNamingType,
		},
		Skip: Skip{
			IfTargetSubtitlesExist: true,
		},
		Pushover: Pushover{
			NotifyOnFailure: true,
		},
		Server: Server{
			Bind: defaultBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Paths: Paths{
			LogDir: defaultLogDir,
		},
	}
}

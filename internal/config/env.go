package config

import (
	"strconv"
	"strings"
)

// applyEnv layers environment variables over the current values. The
// lookup function is injectable for tests.
func (c *Config) applyEnv(lookup func(string) string) {
	setString := func(dst *string, key string) {
		if value := lookup(key); value != "" {
			*dst = value
		}
	}
	setBool := func(dst *bool, key string) {
		if value := lookup(key); value != "" {
			*dst = parseBool(value)
		}
	}
	setInt := func(dst *int, key string) {
		if value := lookup(key); value != "" {
			if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				*dst = parsed
			}
		}
	}

	setString(&c.Azure.SpeechKey, "AZURE_SPEECH_KEY")
	setString(&c.Azure.SpeechRegion, "AZURE_SPEECH_REGION")
	setString(&c.Azure.StorageConnectionString, "AZURE_STORAGE_CONNECTION_STRING")
	setString(&c.Azure.StorageContainer, "AZURE_STORAGE_CONTAINER")

	setInt(&c.Processing.ConcurrentTranscriptions, "CONCURRENT_TRANSCRIPTIONS")
	setInt(&c.Processing.JobPollInterval, "JOB_POLL_INTERVAL")
	setInt(&c.Processing.MaxPollAttempts, "MAX_POLL_ATTEMPTS")
	setString(&c.Processing.TranscodeDir, "TRANSCODE_DIR")
	setString(&c.Processing.SubtitleLanguage, "SUBTITLE_LANGUAGE")
	if value := lookup("MEDIA_FOLDERS"); value != "" {
		c.Processing.MediaFolders = splitList(value, ",")
	}

	setString(&c.Transcription.ForceLanguage, "FORCE_DETECTED_LANGUAGE_TO")
	setBool(&c.Transcription.AppendCreditLine, "APPEND")
	setBool(&c.Transcription.LRCForAudioFiles, "LRC_FOR_AUDIO_FILES")
	setString(&c.Transcription.PreferredAudioLanguages, "PREFERRED_AUDIO_LANGUAGES")
	setBool(&c.Transcription.LimitToPreferredAudio, "LIMIT_TO_PREFERRED_AUDIO_LANGUAGE")
	setInt(&c.Transcription.DetectLanguageLength, "DETECT_LANGUAGE_LENGTH")
	setInt(&c.Transcription.DetectLanguageOffset, "DETECT_LANGUAGE_OFFSET")
	setString(&c.Transcription.LanguageDetectionCandidates, "LANGUAGE_DETECTION_CANDIDATES")

	setString(&c.Naming.NamingType, "SUBTITLE_LANGUAGE_NAMING_TYPE")
	setBool(&c.Naming.ShowSubgenMarker, "SHOW_IN_SUBNAME_SUBGEN")
	setString(&c.Naming.LanguageNameOverride, "SUBTITLE_LANGUAGE_NAME")

	setBool(&c.Skip.IfTargetSubtitlesExist, "SKIP_IF_TARGET_SUBTITLES_EXIST")
	setBool(&c.Skip.IfExternalSubtitlesExist, "SKIP_IF_EXTERNAL_SUBTITLES_EXIST")
	setString(&c.Skip.IfInternalSubtitlesLanguage, "SKIP_IF_INTERNAL_SUBTITLES_LANGUAGE")
	setBool(&c.Skip.OnlySubgenSubtitles, "SKIP_ONLY_SUBGEN_SUBTITLES")
	setString(&c.Skip.IfAudioTrackIs, "SKIP_IF_AUDIO_TRACK_IS")
	setString(&c.Skip.SubtitleLanguages, "SKIP_SUBTITLE_LANGUAGES")
	setBool(&c.Skip.UnknownLanguage, "SKIP_UNKNOWN_LANGUAGE")
	setBool(&c.Skip.IfNoLanguageButSubtitlesExist, "SKIP_IF_NO_LANGUAGE_BUT_SUBTITLES_EXIST")

	setBool(&c.PathMapping.Enabled, "USE_PATH_MAPPING")
	setString(&c.PathMapping.FromPath, "PATH_MAPPING_FROM")
	setString(&c.PathMapping.ToPath, "PATH_MAPPING_TO")

	setBool(&c.Webhooks.ProcessAddedMedia, "PROCESS_ADDED_MEDIA")
	setBool(&c.Webhooks.ProcessOnPlay, "PROCESS_MEDIA_ON_PLAY")

	setString(&c.Bazarr.URL, "BAZARR_URL")
	setString(&c.Bazarr.APIKey, "BAZARR_API_KEY")

	setString(&c.Plex.Token, "PLEX_TOKEN")
	setString(&c.Plex.Server, "PLEX_SERVER")
	setString(&c.Jellyfin.Token, "JELLYFIN_TOKEN")
	setString(&c.Jellyfin.Server, "JELLYFIN_SERVER")
	setString(&c.Emby.Token, "EMBY_TOKEN")
	setString(&c.Emby.Server, "EMBY_SERVER")

	setString(&c.Pushover.UserKey, "PUSHOVER_USER_KEY")
	setString(&c.Pushover.APIToken, "PUSHOVER_API_TOKEN")
	setBool(&c.Pushover.NotifyOnFailure, "NOTIFY_ON_FAILURE")

	if value := lookup("WEBSERVER_PORT"); value != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && port > 0 {
			c.Server.Bind = "0.0.0.0:" + strconv.Itoa(port)
		}
	}

	setString(&c.Logging.Format, "LOG_FORMAT")
	setString(&c.Logging.Level, "LOG_LEVEL")
	if value := lookup("DEBUG"); value != "" && parseBool(value) {
		c.Logging.Level = "debug"
	}

	setString(&c.Paths.LogDir, "LOG_DIR")
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

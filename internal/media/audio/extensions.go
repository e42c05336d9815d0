// Package audio stages media for the transcription service: ffmpeg
// extraction of upload masters and detection segments, media extension
// classification, and preferred audio track selection.
package audio

import (
	"path/filepath"
	"strings"
)

// VideoExtensions are the recognized video container extensions.
var VideoExtensions = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".avi": {}, ".mov": {}, ".wmv": {}, ".flv": {},
	".webm": {}, ".mpg": {}, ".mpeg": {}, ".3gp": {}, ".ogv": {}, ".vob": {},
	".rm": {}, ".rmvb": {}, ".ts": {}, ".m4v": {}, ".f4v": {}, ".svq3": {},
	".asf": {}, ".m2ts": {}, ".divx": {}, ".xvid": {},
}

// AudioExtensions are the recognized pure-audio extensions.
var AudioExtensions = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".aac": {}, ".flac": {}, ".ogg": {}, ".wma": {},
	".alac": {}, ".m4a": {}, ".opus": {}, ".aiff": {}, ".aif": {}, ".pcm": {},
	".ra": {}, ".ram": {}, ".mid": {}, ".midi": {}, ".ape": {}, ".wv": {},
	".amr": {}, ".vox": {}, ".tak": {}, ".spx": {}, ".m4b": {}, ".mka": {},
}

// IsVideoFile reports whether the path has a recognized video extension.
func IsVideoFile(path string) bool {
	_, ok := VideoExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// IsAudioFile reports whether the path has a recognized audio extension.
func IsAudioFile(path string) bool {
	_, ok := AudioExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// IsMediaFile reports whether the path has any recognized media extension.
func IsMediaFile(path string) bool {
	return IsVideoFile(path) || IsAudioFile(path)
}

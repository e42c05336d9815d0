package audio

import (
	"strings"

	"subgen/internal/media/ffprobe"
)

// FindPreferredTrack picks the audio track to transcribe. Preference
// order wins over track order: an exact language-tag match is taken
// first, then a prefix match in either direction ("en" vs "eng"), then
// track 0.
func FindPreferredTrack(tracks []ffprobe.AudioTrack, preferred []string) (int, string) {
	if len(tracks) == 0 {
		return 0, ""
	}
	for _, pref := range preferred {
		pref = strings.ToLower(strings.TrimSpace(pref))
		if pref == "" {
			continue
		}
		for _, track := range tracks {
			if strings.ToLower(track.Language) == pref {
				return track.TrackIndex, track.Language
			}
		}
	}
	for _, pref := range preferred {
		pref = strings.ToLower(strings.TrimSpace(pref))
		if pref == "" {
			continue
		}
		for _, track := range tracks {
			lang := strings.ToLower(track.Language)
			if strings.HasPrefix(lang, pref) || strings.HasPrefix(pref, lang) {
				return track.TrackIndex, track.Language
			}
		}
	}
	return 0, tracks[0].Language
}

// HasPreferredLanguage reports whether any track matches the preference
// list. With no tracks or no preferences it reports true, so callers
// never skip a file they cannot classify.
func HasPreferredLanguage(tracks []ffprobe.AudioTrack, preferred []string) bool {
	if len(tracks) == 0 || len(preferred) == 0 {
		return true
	}
	for _, track := range tracks {
		lang := strings.ToLower(track.Language)
		for _, pref := range preferred {
			pref = strings.ToLower(strings.TrimSpace(pref))
			if pref == "" {
				continue
			}
			if lang == pref || strings.HasPrefix(lang, pref) || strings.HasPrefix(pref, lang) {
				return true
			}
		}
	}
	return false
}

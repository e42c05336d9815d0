package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"subgen/internal/langcodes"
	"subgen/internal/logging"
	"subgen/internal/media/audio"
	"subgen/internal/orchestrator"
	"subgen/internal/subtitles"
	"subgen/internal/taxonomy"
)

// maxUploadMemory bounds how much of a multipart upload is buffered in
// memory before spilling to disk.
const maxUploadMemory = 32 << 20

// readUpload extracts the audio payload from a request: the multipart
// "audio_file" field when present, the raw body otherwise.
func readUpload(r *http.Request) ([]byte, string, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			return nil, "", err
		}
		file, header, err := r.FormFile("audio_file")
		if err != nil {
			return nil, "", err
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		return data, header.Filename, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	return data, "", nil
}

// wantsRawPCM reports whether the client flagged the upload as raw
// 16-bit/16 kHz/mono PCM samples via encode=false. Uploads are encoded
// audio by default.
func wantsRawPCM(query url.Values) bool {
	switch strings.ToLower(strings.TrimSpace(query.Get("encode"))) {
	case "false", "0", "no":
		return true
	default:
		return false
	}
}

// wrapRawPCM gives a raw PCM payload a WAV container and renames the
// upload accordingly so staging treats it as WAV.
func wrapRawPCM(data []byte, filename string) ([]byte, string) {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	if name == "" {
		name = "upload"
	}
	return audio.WrapPCM(data), name + ".wav"
}

// handleASR implements the Whisper-compatible transcription endpoint.
// Bazarr posts the audio track here and expects the subtitle back in the
// response body.
func (s *Server) handleASR(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		// Matches the upstream behavior for misconfigured providers.
		s.writeJSON(w, http.StatusOK, []string{
			"You accessed this request incorrectly via a GET request. POST audio to /asr instead.",
		})
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := r.URL.Query()
	language := strings.TrimSpace(query.Get("language"))
	videoFile := strings.TrimSpace(query.Get("video_file"))
	output := strings.ToLower(strings.TrimSpace(query.Get("output")))
	if output == "" {
		output = "srt"
	}
	if task := query.Get("task"); strings.EqualFold(task, "translate") {
		s.logger.Warn("translation requested but not supported, transcribing instead")
	}

	data, filename, err := readUpload(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read audio upload: "+err.Error())
		return
	}
	if videoFile != "" {
		filename = videoFile
	}
	if wantsRawPCM(query) {
		data, filename = wrapRawPCM(data, filename)
	}
	s.logger.Info("asr request",
		logging.String(logging.FieldFile, filename),
		logging.Int("bytes", len(data)),
		logging.String("output", output))

	result, err := s.orch.TranscribeBytes(r.Context(), data, filename, language)
	if err != nil {
		s.writeTranscribeError(w, err)
		return
	}

	var body string
	contentType := "text/plain; charset=utf-8"
	switch output {
	case "vtt":
		body = subtitles.FormatVTT(result.Segments)
	case "txt":
		body = subtitles.FormatText(result.Segments)
	case "json":
		s.writeJSON(w, http.StatusOK, asrJSONResponse(result))
		return
	default:
		body = subtitles.FormatSRT(result.Segments)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Source", "Transcribed using the Azure batch API by Subgen")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, body)
}

type asrSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type asrResponse struct {
	Text     string       `json:"text"`
	Segments []asrSegment `json:"segments"`
	Language string       `json:"language"`
}

func asrJSONResponse(result orchestrator.ASRResult) asrResponse {
	segments := make([]asrSegment, 0, len(result.Segments))
	var text strings.Builder
	for i, segment := range result.Segments {
		segments = append(segments, asrSegment{
			ID:    i,
			Start: segment.Start,
			End:   segment.End,
			Text:  segment.Text,
		})
		if i > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(strings.TrimSpace(segment.Text))
	}
	return asrResponse{Text: text.String(), Segments: segments, Language: result.Locale}
}

func (s *Server) writeTranscribeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, taxonomy.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, taxonomy.ErrConfiguration):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, taxonomy.ErrCancelled):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleDetectLanguage answers Bazarr's pre-transcription language probe.
// Detection failures degrade to "und" rather than an error so Bazarr can
// continue with its configured default.
func (s *Server) handleDetectLanguage(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.writeJSON(w, http.StatusOK, []string{
			"You accessed this request incorrectly via a GET request. POST audio to /detect-language instead.",
		})
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	data, filename, err := readUpload(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read audio upload: "+err.Error())
		return
	}
	if videoFile := strings.TrimSpace(r.URL.Query().Get("video_file")); videoFile != "" {
		filename = videoFile
	}
	if wantsRawPCM(r.URL.Query()) {
		data, filename = wrapRawPCM(data, filename)
	}

	lang, locale, err := s.orch.DetectLanguageBytes(r.Context(), data, filename)
	if err != nil {
		s.logger.Warn("language detection failed",
			logging.String(logging.FieldFile, filename), logging.Error(err))
		s.writeJSON(w, http.StatusOK, detectResponse{DetectedLanguage: "Unknown", LanguageCode: "und"})
		return
	}

	resp := detectResponse{DetectedLanguage: "Unknown", LanguageCode: "und"}
	if !lang.IsZero() {
		resp = detectResponse{DetectedLanguage: lang.Name(), LanguageCode: lang.ISO6391()}
	} else if locale != "" {
		resp.LanguageCode = locale
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type detectResponse struct {
	DetectedLanguage string `json:"detected_language"`
	LanguageCode     string `json:"language_code"`
}

// handleLanguages lists the languages the registry can transcribe.
func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	type languageEntry struct {
		Code          string `json:"code"`
		Name          string `json:"name"`
		ServiceLocale string `json:"service_locale"`
	}
	supported := langcodes.Supported()
	entries := make([]languageEntry, 0, len(supported))
	for _, lang := range supported {
		entries = append(entries, languageEntry{
			Code:          lang.ISO6391(),
			Name:          lang.Name(),
			ServiceLocale: lang.ServiceLocale(),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"languages": entries})
}

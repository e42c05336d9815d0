package azure

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"subgen/internal/taxonomy"
)

func newTestSpeechClient(t *testing.T, handler http.Handler) (*SpeechClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewSpeechClient("test-key", "swedencentral", nil)
	client.SetEndpoint(server.URL)
	return client, server
}

func TestCreateSubmitsTranscription(t *testing.T) {
	var captured transcriptionPayload
	var client *SpeechClient
	var server *httptest.Server
	client, server = newTestSpeechClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transcriptions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Ocp-Apim-Subscription-Key"); got != "test-key" {
			t.Errorf("subscription key = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"self":   server.URL + "/transcriptions/abc-123",
			"status": StatusNotStarted,
		})
	}))
	_ = server

	created, err := client.Create(context.Background(), CreateRequest{
		DisplayName: "show.mkv",
		Locale:      "en-US",
		ContentURL:  "https://example.invalid/audio.ogg?sig=x",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID != "abc-123" || created.Status != StatusNotStarted {
		t.Fatalf("unexpected transcription: %#v", created)
	}
	if !captured.Properties.WordLevelTimestampsEnabled {
		t.Fatal("word level timestamps should be requested")
	}
	if captured.Properties.PunctuationMode != "DictatedAndAutomatic" {
		t.Fatalf("punctuation mode = %q", captured.Properties.PunctuationMode)
	}
	if captured.Properties.ProfanityFilterMode != "None" {
		t.Fatalf("profanity filter = %q", captured.Properties.ProfanityFilterMode)
	}
	if captured.Properties.LanguageIdentification != nil {
		t.Fatal("single-locale request should not enable language identification")
	}
}

func TestCreateEnablesLanguageIdentification(t *testing.T) {
	var captured transcriptionPayload
	client, server := newTestSpeechClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"self": "https://x/transcriptions/id-1", "status": StatusRunning})
	}))
	_ = server

	_, err := client.Create(context.Background(), CreateRequest{
		Locale:           "en-US",
		ContentURL:       "https://example.invalid/a.wav",
		CandidateLocales: []string{"en-US", "nl-NL"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	ident := captured.Properties.LanguageIdentification
	if ident == nil || len(ident.CandidateLocales) != 2 || ident.Mode != "Single" {
		t.Fatalf("unexpected language identification: %#v", ident)
	}
}

func TestCreateClassifiesAuthFailure(t *testing.T) {
	client, _ := newTestSpeechClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	_, err := client.Create(context.Background(), CreateRequest{Locale: "en-US", ContentURL: "https://x/a.ogg"})
	if !errors.Is(err, taxonomy.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestGetReportsFailureDetail(t *testing.T) {
	client, _ := newTestSpeechClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"self":   "https://x/transcriptions/id-9",
			"status": StatusFailed,
			"properties": map[string]any{
				"error": map[string]any{"code": "InvalidAudio", "message": "unsupported codec"},
			},
		})
	}))
	got, err := client.Get(context.Background(), "id-9")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusFailed || got.Error != "unsupported codec" {
		t.Fatalf("unexpected transcription: %#v", got)
	}
}

func TestFetchResultFollowsFilesLink(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/transcriptions/id-1/files", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"values": []map[string]any{
				{"kind": "TranscriptionReport", "links": map[string]string{"contentUrl": server.URL + "/report"}},
				{"kind": "Transcription", "links": map[string]string{"contentUrl": server.URL + "/result"}},
			},
		})
	})
	mux.HandleFunc("/result", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"recognizedPhrases": []map[string]any{
				{
					"offsetInTicks":   10_000_000,
					"durationInTicks": 25_000_000,
					"locale":          "en-US",
					"nBest":           []map[string]any{{"display": "Hello there.", "confidence": 0.93}},
				},
			},
		})
	})

	client := NewSpeechClient("k", "swedencentral", nil)
	client.SetEndpoint(server.URL)

	result, err := client.FetchResult(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("FetchResult failed: %v", err)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("segments = %d", len(result.Segments))
	}
	seg := result.Segments[0]
	if seg.Start != 1.0 || seg.End != 3.5 || seg.Text != "Hello there." {
		t.Fatalf("unexpected segment: %#v", seg)
	}
	if seg.Confidence != 0.93 {
		t.Fatalf("confidence = %v", seg.Confidence)
	}
	if result.DominantLocale() != "en-US" {
		t.Fatalf("dominant locale = %q", result.DominantLocale())
	}
}

func TestDeleteToleratesMissingAndLocked(t *testing.T) {
	status := http.StatusNotFound
	body := ""
	client, _ := newTestSpeechClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))

	if err := client.Delete(context.Background(), "gone"); err != nil {
		t.Fatalf("missing transcription should not error: %v", err)
	}

	status = http.StatusConflict
	body = `{"code":"DeleteNotAllowed"}`
	if err := client.Delete(context.Background(), "locked"); err != nil {
		t.Fatalf("DeleteNotAllowed should not error: %v", err)
	}

	status = http.StatusInternalServerError
	body = "boom"
	if err := client.Delete(context.Background(), "broken"); err == nil {
		t.Fatal("expected error for server failure")
	}

	if err := client.Delete(context.Background(), ""); err != nil {
		t.Fatalf("blank id should be a no-op: %v", err)
	}
}

func TestParseResultSkipsEmptyPhrases(t *testing.T) {
	raw := []byte(`{"recognizedPhrases":[
        {"offsetInTicks": 50000000, "durationInTicks": 10000000, "nBest":[{"display":"Second."}]},
        {"offsetInTicks": 0, "durationInTicks": 10000000, "nBest":[{"display":"First."}]},
        {"offsetInTicks": 20000000, "durationInTicks": 10000000, "nBest":[{"display":"  "}]},
        {"offsetInTicks": 30000000, "durationInTicks": 10000000, "nBest":[]}
    ]}`)
	result, err := ParseResult(raw)
	if err != nil {
		t.Fatalf("ParseResult failed: %v", err)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("segments = %d", len(result.Segments))
	}
	if result.Segments[0].Text != "First." || result.Segments[1].Text != "Second." {
		t.Fatalf("segments not ordered by start: %#v", result.Segments)
	}
}

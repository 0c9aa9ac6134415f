package transcribe

import (
	"testing"
	"time"

	"voicesnap/internal/domain"
)

func TestParseWhisperJSON(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"result": {"language": "en"},
		"transcription": [
			{"offsets": {"from": 0, "to": 1520}, "text": " Hello there,"},
			{"offsets": {"from": 1520, "to": 3000}, "text": " general Kenobi."}
		]
	}`)
	clip := domain.Clip{Duration: 3 * time.Second}

	result, err := parseWhisperJSON(data, clip)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.Text != "Hello there, general Kenobi." {
		t.Fatalf("text = %q", result.Text)
	}
	if result.DetectedLanguage != "en" {
		t.Fatalf("language = %q, want en", result.DetectedLanguage)
	}
	if result.Duration != clip.Duration {
		t.Fatalf("duration = %s, want %s", result.Duration, clip.Duration)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(result.Segments))
	}
	first := result.Segments[0]
	if first.Start != 0 || first.End != 1.52 || first.Text != "Hello there," {
		t.Fatalf("segment = %+v", first)
	}
}

func TestParseWhisperJSONSkipsBlankSegments(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"result": {"language": "de"},
		"transcription": [
			{"offsets": {"from": 0, "to": 400}, "text": "   "},
			{"offsets": {"from": 400, "to": 900}, "text": " Hallo."}
		]
	}`)

	result, err := parseWhisperJSON(data, domain.Clip{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.Text != "Hallo." {
		t.Fatalf("text = %q, want %q", result.Text, "Hallo.")
	}
	if len(result.Segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(result.Segments))
	}
}

func TestParseWhisperJSONRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := parseWhisperJSON([]byte("not json"), domain.Clip{}); err == nil {
		t.Fatal("expected parse error")
	}
}

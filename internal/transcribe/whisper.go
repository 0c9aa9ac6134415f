package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"voicesnap/internal/domain"
)

// WhisperRunner decodes clips by shelling out to a whisper.cpp style CLI
// with JSON output. One invocation per clip; serialization is the engine's
// concern, not the runner's.
type WhisperRunner struct {
	command string
}

func NewWhisperRunner(command string) *WhisperRunner {
	if command == "" {
		command = "whisper-cli"
	}
	return &WhisperRunner{command: command}
}

// whisperOutput matches the CLI's -oj JSON file format.
type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"` // milliseconds
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (r *WhisperRunner) Decode(ctx context.Context, modelPath string, clip domain.Clip, language string) (*domain.TranscriptionResult, error) {
	workDir, err := os.MkdirTemp("", "voicesnap-decode-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	wavPath := filepath.Join(workDir, "clip.wav")
	if err := writeClipWAV(clip, wavPath); err != nil {
		return nil, err
	}

	if language == "" {
		language = "auto"
	}
	outBase := filepath.Join(workDir, "clip")
	cmd := exec.CommandContext(ctx, r.command,
		"-m", modelPath,
		"-f", wavPath,
		"-l", language,
		"-oj",
		"-of", outBase,
		"-np",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", r.command, err, strings.TrimSpace(string(out)))
	}

	data, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return nil, fmt.Errorf("read decode output: %w", err)
	}
	return parseWhisperJSON(data, clip)
}

func parseWhisperJSON(data []byte, clip domain.Clip) (*domain.TranscriptionResult, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse decode output: %w", err)
	}

	result := &domain.TranscriptionResult{
		DetectedLanguage: out.Result.Language,
		Duration:         clip.Duration,
	}
	var parts []string
	for _, seg := range out.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		result.Segments = append(result.Segments, domain.Segment{
			Start: float64(seg.Offsets.From) / 1000,
			End:   float64(seg.Offsets.To) / 1000,
			Text:  text,
		})
		parts = append(parts, text)
	}
	result.Text = strings.Join(parts, " ")
	return result, nil
}

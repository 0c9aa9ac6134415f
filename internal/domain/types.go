package domain

import "time"

// Mode selects how hotkey presses map to recording intents.
type Mode string

const (
	ModeToggle     Mode = "toggle"
	ModePushToTalk Mode = "push_to_talk"
)

// State models the orchestrator lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
)

// Clip is a frozen recording: the finalized frame sequence of one session.
// Once produced by CaptureSession.Stop it is never mutated again.
type Clip struct {
	Frames     []int16
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Empty reports whether the clip carries no audio.
func (c Clip) Empty() bool { return len(c.Frames) == 0 }

// WaveformSample is a single advisory energy value derived from one chunk of
// captured audio. Seq is monotonic within a session.
type WaveformSample struct {
	Seq    uint64
	Value  float64
	Offset time.Duration
}

// JobStatus tracks a transcription job through the engine.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// TranscriptionJob is one clip submitted for decoding. The clip is a
// read-only handoff from the capture side; the engine never mutates it.
type TranscriptionJob struct {
	SessionID uint64
	Clip      Clip
	ModelID   string
	Language  string // language hint, "" or "auto" for detection
}

// Segment is one timed span of decoded text.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionResult is the immutable output of one successful decode.
type TranscriptionResult struct {
	Text             string        `json:"text"`
	DetectedLanguage string        `json:"language"`
	Segments         []Segment     `json:"segments"`
	Duration         time.Duration `json:"duration"`
}

// JobOutcome is the terminal report for one submitted job.
type JobOutcome struct {
	SessionID uint64
	Status    JobStatus
	Result    *TranscriptionResult
	Err       error
}

// DeviceInfo describes one openable audio input device.
type DeviceInfo struct {
	ID         string
	Name       string
	Channels   int
	SampleRate float64
	Default    bool
}

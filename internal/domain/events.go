package domain

import "time"

// EventKind tags entries on the exposed event stream.
type EventKind string

const (
	EventRecordingStarted       EventKind = "recording_started"
	EventWaveformSample         EventKind = "waveform_sample"
	EventRecordingStopped       EventKind = "recording_stopped"
	EventModelLoading           EventKind = "model_loading"
	EventModelReady             EventKind = "model_ready"
	EventTranscriptionStarted   EventKind = "transcription_started"
	EventTranscriptionCompleted EventKind = "transcription_completed"
	EventTranscriptionFailed    EventKind = "transcription_failed"
	EventTranscriptionCancelled EventKind = "transcription_cancelled"
	EventCaptureFailed          EventKind = "capture_failed"
	EventShutdown               EventKind = "shutdown"
)

// Event is one entry on the exposed stream. Fields beyond Kind are populated
// per kind; per-session events carry SessionID and appear in causal order.
type Event struct {
	Kind       EventKind            `json:"event"`
	SessionID  uint64               `json:"sessionId,omitempty"`
	StartTime  time.Time            `json:"startTime,omitempty"`
	Duration   time.Duration        `json:"duration,omitempty"`
	ModelID    string               `json:"modelId,omitempty"`
	Waveform   *WaveformSample      `json:"waveform,omitempty"`
	Result     *TranscriptionResult `json:"result,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	QueueDepth int                  `json:"queueDepth,omitempty"`
}

// Advisory reports whether the event may be dropped under subscriber
// backpressure without breaking any ordering or terminal-outcome guarantee.
func (e Event) Advisory() bool { return e.Kind == EventWaveformSample }

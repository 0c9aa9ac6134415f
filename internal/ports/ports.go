package ports

import (
	"context"

	"voicesnap/internal/domain"
)

// KeyEvent is a raw press/release of one named key, decoupled from OS key
// codes. Names use the hook vocabulary ("ctrl", "lshift", "space", "a", ...).
type KeyEvent struct {
	Name string
	Down bool
}

// KeySource delivers raw global key events. Start fails fast with
// domain.ErrPermissionDenied when the OS hook cannot be installed.
type KeySource interface {
	Start(ctx context.Context) (<-chan KeyEvent, error)
	Close() error
}

// AudioConfig describes how one capture session should be opened.
type AudioConfig struct {
	DeviceID     string // "default" or a device name
	SampleRate   int
	Channels     int
	MaxDuration  int // seconds; watchdog bound
	WaveformRate int // Hz; advisory sample publish rate
}

// CaptureSession is one live recording. Frames are appended by a single
// capture goroutine owned by the session; Stop freezes and returns them.
type CaptureSession interface {
	// Waveform delivers advisory energy samples at a bounded rate. The
	// channel is closed when the session ends.
	Waveform() <-chan domain.WaveformSample

	// LimitReached fires once if capture runs past the max duration bound.
	LimitReached() <-chan struct{}

	// Stop halts capture, flushes buffered frames and returns the frozen
	// clip. Stop is idempotent; repeat calls return the same clip.
	Stop() (domain.Clip, error)
}

// AudioCapture opens capture sessions. At most one session may be live at a
// time; a second Start while one is active fails with ErrAlreadyRecording.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (CaptureSession, error)
	ListDevices() ([]domain.DeviceInfo, error)
}

// ModelStatus reports the cache state for one model id.
type ModelStatus int

const (
	ModelLoading ModelStatus = iota
	ModelReady
	ModelFailed
)

// Transcriber converts frozen clips into text on a single serialized worker.
// Submissions queue FIFO; outcomes arrive on Results in submission order.
type Transcriber interface {
	// EnsureModel begins an asynchronous load on first call per model id and
	// returns Loading; an already-loaded id returns Ready synchronously.
	EnsureModel(modelID string) ModelStatus

	// ModelEvents reports load begin/completion for surfaced progress.
	ModelEvents() <-chan ModelEvent

	Submit(job domain.TranscriptionJob)

	// Cancel discards a queued job, or marks a running one so its result is
	// dropped. The outcome still arrives on Results as cancelled.
	Cancel(sessionID uint64)

	Results() <-chan domain.JobOutcome
	QueueDepth() int
	Close()
}

// ModelEvent is one model lifecycle notification.
type ModelEvent struct {
	ModelID string
	Status  ModelStatus
	Err     error
}

// EventSink receives orchestrator lifecycle events.
type EventSink interface {
	Publish(domain.Event)
}

// TextSink delivers final transcript text to a consumer (clipboard layer).
type TextSink interface {
	Deliver(ctx context.Context, text string) error
}

package domain

import "errors"

// Failure taxonomy. Listener and device errors are fatal to their component;
// per-job errors surface as transcription_failed events and never abort the
// orchestrator.
var (
	// ErrPermissionDenied means the global key hook could not be installed.
	ErrPermissionDenied = errors.New("hotkey listener permission denied")

	// ErrDeviceUnavailable means the capture device could not be opened,
	// including after the one default-device retry.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrAlreadyRecording is an invariant violation: a second capture start
	// while one is active. The orchestrator makes it unreachable.
	ErrAlreadyRecording = errors.New("capture already recording")

	// ErrAudioTooShort rejects clips below the configured minimum duration.
	ErrAudioTooShort = errors.New("audio clip too short to transcribe")

	// ErrModelNotReady means Transcribe was invoked before EnsureModel
	// reported ready for the job's model.
	ErrModelNotReady = errors.New("model not ready")

	// ErrModelLoadFailed means the model artifact could not be acquired.
	ErrModelLoadFailed = errors.New("model load failed")

	// ErrInference wraps decode failures inside the model runtime.
	ErrInference = errors.New("inference failed")

	// ErrCancelled is the expected outcome of explicit cancellation, not a
	// failure.
	ErrCancelled = errors.New("cancelled")
)

// FailureReason maps a job error onto the stable reason string carried by
// transcription_failed events.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrAudioTooShort):
		return "audio_too_short"
	case errors.Is(err, ErrModelLoadFailed):
		return "model_load_failed"
	case errors.Is(err, ErrModelNotReady):
		return "model_not_ready"
	case errors.Is(err, ErrInference):
		return "inference_error"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case err == nil:
		return ""
	default:
		return "internal_error"
	}
}

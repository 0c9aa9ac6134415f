package usecase

import (
	"time"

	"voicesnap/internal/ports"
)

// recordingSession is one open capture-to-transcript cycle. It lives on the
// orchestrator loop only; the capture goroutine owns the frames until Stop
// freezes them.
type recordingSession struct {
	id        uint64
	startTime time.Time
	capture   ports.CaptureSession

	// waveDone marks the advisory channel closed so the loop stops
	// selecting on it.
	waveDone bool
}

// Package audio owns the capture side: one live PCM input stream at a time,
// an append-only frame sequence per session and a live waveform derivative.
package audio

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"voicesnap/internal/domain"
	"voicesnap/internal/ports"
)

const (
	waveformCapacity = 100
	waveformChanSize = 32
)

// pcmStream is the seam between session bookkeeping and the physical input
// backend. ReadChunk blocks until frames arrive; the returned slice is only
// valid until the next call. Close unblocks a pending ReadChunk.
type pcmStream interface {
	ReadChunk() ([]int16, error)
	Close() error
}

// streamOpener creates pcm streams for a backend and enumerates its devices.
type streamOpener interface {
	open(cfg ports.AudioConfig) (pcmStream, error)
	listDevices() ([]domain.DeviceInfo, error)
}

// Engine opens capture sessions against one backend. It enforces the
// single-live-session invariant: a second Start while one session is open
// fails with ErrAlreadyRecording.
type Engine struct {
	opener streamOpener

	mu     sync.Mutex
	active *Session
}

func newEngine(opener streamOpener) *Engine { return &Engine{opener: opener} }

// Start opens the configured device and begins capturing on a dedicated
// goroutine. When the named device cannot be opened it retries once against
// the system default before surfacing ErrDeviceUnavailable.
func (e *Engine) Start(ctx context.Context, cfg ports.AudioConfig) (ports.CaptureSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil && !e.active.finished() {
		return nil, domain.ErrAlreadyRecording
	}

	stream, err := e.opener.open(cfg)
	if err != nil && cfg.DeviceID != "" && cfg.DeviceID != "default" {
		log.Printf("audio: device %q failed (%v), retrying system default", cfg.DeviceID, err)
		fallback := cfg
		fallback.DeviceID = "default"
		stream, err = e.opener.open(fallback)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	session := newSession(stream, cfg)
	e.active = session
	go session.run(ctx)
	return session, nil
}

// ListDevices enumerates the backend's input devices.
func (e *Engine) ListDevices() ([]domain.DeviceInfo, error) {
	return e.opener.listDevices()
}

// Session is one live recording. The capture goroutine is the only writer of
// the frame sequence, which keeps appends strictly ordered with no gaps.
type Session struct {
	stream pcmStream
	cfg    ports.AudioConfig

	waveform *WaveformBuffer
	waveCh   chan domain.WaveformSample
	limitCh  chan struct{}

	stopOnce  sync.Once
	limitOnce sync.Once
	stopReq   chan struct{}
	done      chan struct{}

	// written by the capture goroutine before done closes, read after.
	frames []int16
	clip   domain.Clip
	err    error
}

func newSession(stream pcmStream, cfg ports.AudioConfig) *Session {
	return &Session{
		stream:   stream,
		cfg:      cfg,
		waveform: NewWaveformBuffer(waveformCapacity),
		waveCh:   make(chan domain.WaveformSample, waveformChanSize),
		limitCh:  make(chan struct{}),
		stopReq:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Session) Waveform() <-chan domain.WaveformSample { return s.waveCh }
func (s *Session) LimitReached() <-chan struct{}          { return s.limitCh }

// WaveformSnapshot exposes the retained ring for visualization pulls.
func (s *Session) WaveformSnapshot() []domain.WaveformSample {
	return s.waveform.Snapshot()
}

// Stop halts capture, flushes buffered frames and returns the frozen clip.
// Idempotent: later calls return the same clip.
func (s *Session) Stop() (domain.Clip, error) {
	s.stopOnce.Do(func() {
		close(s.stopReq)
		_ = s.stream.Close()
	})
	<-s.done
	return s.clip, s.err
}

func (s *Session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.waveCh)

	start := time.Now()
	maxDur := time.Duration(s.cfg.MaxDuration) * time.Second
	var watchdog <-chan time.Time
	if maxDur > 0 {
		timer := time.NewTimer(maxDur)
		defer timer.Stop()
		watchdog = timer.C
	}

	// One advisory sample per window of this many frames bounds the publish
	// rate to roughly WaveformRate Hz.
	rate := s.cfg.WaveformRate
	if rate <= 0 {
		rate = 1
	}
	window := s.cfg.SampleRate * s.cfg.Channels / rate
	if window <= 0 {
		window = 1024
	}
	var windowFrames []int16

	for {
		select {
		case <-s.stopReq:
			s.finalize(start, nil)
			return
		case <-ctx.Done():
			s.finalize(start, nil)
			return
		case <-watchdog:
			watchdog = nil
			s.limitOnce.Do(func() { close(s.limitCh) })
			log.Printf("audio: max duration %s reached, awaiting stop", maxDur)
		default:
		}

		chunk, err := s.stream.ReadChunk()
		if len(chunk) > 0 {
			s.frames = append(s.frames, chunk...)
			windowFrames = append(windowFrames, chunk...)
			for len(windowFrames) >= window {
				s.emitWave(windowFrames[:window], start)
				windowFrames = windowFrames[window:]
			}
		}
		if err != nil {
			if len(windowFrames) > 0 {
				s.emitWave(windowFrames, start)
			}
			s.finalize(start, s.readFailure(err))
			return
		}
	}
}

func (s *Session) emitWave(frames []int16, start time.Time) {
	sample := s.waveform.Append(rms(frames), time.Since(start))
	select {
	case s.waveCh <- sample:
	default:
		// Advisory; consumers that fall behind lose samples, never frames.
	}
}

// readFailure classifies a stream read error. After Stop the stream is torn
// down on purpose and the error is expected; before it, the device went away
// mid-capture and the caller gets the partial clip plus the failure.
func (s *Session) readFailure(err error) error {
	select {
	case <-s.stopReq:
		return nil
	default:
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}
}

func (s *Session) finalize(start time.Time, err error) {
	_ = s.stream.Close()
	s.err = err
	s.clip = domain.Clip{
		Frames:     s.frames,
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Duration:   frameDuration(len(s.frames), s.cfg.SampleRate, s.cfg.Channels),
	}
}

func frameDuration(frames, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	return time.Duration(float64(frames) / float64(channels) / float64(sampleRate) * float64(time.Second))
}

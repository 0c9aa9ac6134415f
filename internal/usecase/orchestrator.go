// Package usecase wires hotkey intents, audio capture and transcription into
// a single state machine. All session state lives on one goroutine; every
// collaborator talks to it through ordered channels, so there is no
// check-then-act window between listener, capture and transcription.
package usecase

import (
	"context"
	"log"
	"strings"
	"time"

	"voicesnap/internal/domain"
	"voicesnap/internal/hotkey"
	"voicesnap/internal/ports"
)

// Config holds the orchestrator's runtime parameters.
type Config struct {
	Audio    ports.AudioConfig
	ModelID  string
	Language string
}

type cmdKind int

const (
	cmdShutdown cmdKind = iota
	cmdCancelActive
	cmdSwitchModel
	cmdSwitchDevice
)

type command struct {
	kind cmdKind
	arg  string
}

// Orchestrator drives the Idle/Recording/Transcribing lifecycle. One
// recording and one transcription may overlap in time, but never two of
// either; per-session events are published in causal order.
type Orchestrator struct {
	capture ports.AudioCapture
	engine  ports.Transcriber
	sink    ports.EventSink
	intents <-chan hotkey.Intent
	cfg     Config

	commands chan command
	done     chan struct{}

	// loop-owned state
	state         domain.State
	nextSessionID uint64
	current       *recordingSession
	// submitted sessions not yet terminal, in Deactivate order; the head is
	// the one whose TranscriptionStarted has been published.
	jobQueue []uint64
}

func NewOrchestrator(
	capture ports.AudioCapture,
	engine ports.Transcriber,
	sink ports.EventSink,
	intents <-chan hotkey.Intent,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		capture:  capture,
		engine:   engine,
		sink:     sink,
		intents:  intents,
		cfg:      cfg,
		commands: make(chan command, 8),
		done:     make(chan struct{}),
		state:    domain.StateIdle,
	}
}

// State reports the lifecycle state as of the last loop iteration. Intended
// for tests and status displays, not for synchronization.
func (o *Orchestrator) State() domain.State { return o.state }

// RequestShutdown asks the loop to cancel the open session, drain the engine
// and terminate. Run returns once shutdown completes.
func (o *Orchestrator) RequestShutdown() { o.post(command{kind: cmdShutdown}) }

// CancelActiveSession discards an in-progress recording without transcribing
// it; when nothing is recording it cancels the transcription in progress.
func (o *Orchestrator) CancelActiveSession() { o.post(command{kind: cmdCancelActive}) }

// SwitchModel changes the model used for subsequent sessions and begins
// loading it immediately.
func (o *Orchestrator) SwitchModel(modelID string) {
	o.post(command{kind: cmdSwitchModel, arg: modelID})
}

// SwitchDevice changes the capture device for subsequent sessions.
func (o *Orchestrator) SwitchDevice(deviceID string) {
	o.post(command{kind: cmdSwitchDevice, arg: deviceID})
}

func (o *Orchestrator) post(cmd command) {
	select {
	case o.commands <- cmd:
	case <-o.done:
	}
}

// Run executes the state machine until shutdown is requested or ctx is
// cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)

	intents := o.intents
	for {
		var waveCh <-chan domain.WaveformSample
		var limitCh <-chan struct{}
		if o.current != nil {
			if !o.current.waveDone {
				waveCh = o.current.capture.Waveform()
			}
			limitCh = o.current.capture.LimitReached()
		}

		select {
		case intent, ok := <-intents:
			if !ok {
				// Listener went away; recording can still be stopped through
				// commands, so keep running without intents.
				intents = nil
				continue
			}
			o.handleIntent(intent)

		case sample, ok := <-waveCh:
			if !ok {
				o.current.waveDone = true
				continue
			}
			o.sink.Publish(domain.Event{
				Kind:      domain.EventWaveformSample,
				SessionID: o.current.id,
				Waveform:  &sample,
			})

		case <-limitCh:
			o.stopRecording("max_duration")

		case ev := <-o.engine.ModelEvents():
			o.publishModelEvent(ev)

		case outcome := <-o.engine.Results():
			o.handleOutcome(outcome)

		case cmd := <-o.commands:
			if done := o.handleCommand(cmd); done {
				return nil
			}

		case <-ctx.Done():
			o.shutdown()
			return ctx.Err()
		}
	}
}

func (o *Orchestrator) handleIntent(intent hotkey.Intent) {
	switch intent {
	case hotkey.IntentActivate:
		if o.current != nil {
			// Unreachable by construction: the signal layer alternates in
			// toggle mode and suppresses repeats in push-to-talk.
			log.Printf("orchestrator: activate while recording, ignoring")
			return
		}
		o.startRecording()
	case hotkey.IntentDeactivate:
		if o.current == nil {
			// Stale deactivate, e.g. a toggle press following a watchdog
			// auto-stop. Idempotent no-op.
			return
		}
		o.stopRecording("deactivate")
	}
}

func (o *Orchestrator) startRecording() {
	// Kick the model load so it overlaps capture instead of gating the
	// first transcription.
	o.engine.EnsureModel(o.cfg.ModelID)

	session, err := o.capture.Start(context.Background(), o.cfg.Audio)
	if err != nil {
		o.sink.Publish(domain.Event{Kind: domain.EventCaptureFailed, Reason: err.Error()})
		return
	}

	o.nextSessionID++
	o.current = &recordingSession{
		id:        o.nextSessionID,
		startTime: time.Now(),
		capture:   session,
	}
	o.state = domain.StateRecording
	o.sink.Publish(domain.Event{
		Kind:      domain.EventRecordingStarted,
		SessionID: o.current.id,
		StartTime: o.current.startTime,
	})
}

func (o *Orchestrator) stopRecording(cause string) {
	session := o.current
	o.current = nil

	clip, err := session.capture.Stop()
	if err != nil {
		log.Printf("orchestrator: capture stop for session %d: %v", session.id, err)
	}
	o.drainWaveform(session)

	o.sink.Publish(domain.Event{
		Kind:      domain.EventRecordingStopped,
		SessionID: session.id,
		Duration:  clip.Duration,
		Reason:    cause,
	})

	o.enqueueJob(session.id, clip)
	o.refreshState()
}

// drainWaveform flushes samples buffered before Stop so they precede the
// RecordingStopped event for the session.
func (o *Orchestrator) drainWaveform(session *recordingSession) {
	for sample := range session.capture.Waveform() {
		o.sink.Publish(domain.Event{
			Kind:      domain.EventWaveformSample,
			SessionID: session.id,
			Waveform:  &sample,
		})
	}
}

func (o *Orchestrator) enqueueJob(sessionID uint64, clip domain.Clip) {
	o.engine.Submit(domain.TranscriptionJob{
		SessionID: sessionID,
		Clip:      clip,
		ModelID:   o.cfg.ModelID,
		Language:  o.cfg.Language,
	})
	o.jobQueue = append(o.jobQueue, sessionID)
	if len(o.jobQueue) == 1 {
		o.sink.Publish(domain.Event{Kind: domain.EventTranscriptionStarted, SessionID: sessionID})
	} else {
		log.Printf("orchestrator: %d transcription jobs pending", o.engine.QueueDepth())
	}
}

func (o *Orchestrator) handleOutcome(outcome domain.JobOutcome) {
	o.popJob(outcome.SessionID)

	switch outcome.Status {
	case domain.JobSucceeded:
		o.sink.Publish(domain.Event{
			Kind:      domain.EventTranscriptionCompleted,
			SessionID: outcome.SessionID,
			Result:    outcome.Result,
			Duration:  outcome.Result.Duration,
		})
	case domain.JobCancelled:
		o.sink.Publish(domain.Event{
			Kind:      domain.EventTranscriptionCancelled,
			SessionID: outcome.SessionID,
		})
	default:
		o.sink.Publish(domain.Event{
			Kind:      domain.EventTranscriptionFailed,
			SessionID: outcome.SessionID,
			Reason:    domain.FailureReason(outcome.Err),
			QueueDepth: len(o.jobQueue),
		})
	}

	if len(o.jobQueue) > 0 {
		o.sink.Publish(domain.Event{Kind: domain.EventTranscriptionStarted, SessionID: o.jobQueue[0]})
	}
	o.refreshState()
}

// popJob removes the outcome's session from the FIFO. Outcomes arrive in
// submission order, so it is normally the head.
func (o *Orchestrator) popJob(sessionID uint64) {
	for i, id := range o.jobQueue {
		if id == sessionID {
			o.jobQueue = append(o.jobQueue[:i], o.jobQueue[i+1:]...)
			return
		}
	}
}

func (o *Orchestrator) refreshState() {
	switch {
	case o.current != nil:
		o.state = domain.StateRecording
	case len(o.jobQueue) > 0:
		o.state = domain.StateTranscribing
	default:
		o.state = domain.StateIdle
	}
}

func (o *Orchestrator) publishModelEvent(ev ports.ModelEvent) {
	switch ev.Status {
	case ports.ModelLoading:
		o.sink.Publish(domain.Event{Kind: domain.EventModelLoading, ModelID: ev.ModelID})
	case ports.ModelReady:
		o.sink.Publish(domain.Event{Kind: domain.EventModelReady, ModelID: ev.ModelID})
	case ports.ModelFailed:
		log.Printf("orchestrator: model %q load failed: %v", ev.ModelID, ev.Err)
	}
}

func (o *Orchestrator) handleCommand(cmd command) bool {
	switch cmd.kind {
	case cmdCancelActive:
		o.cancelActive()
	case cmdSwitchModel:
		if cmd.arg != "" && cmd.arg != o.cfg.ModelID {
			o.cfg.ModelID = cmd.arg
			o.engine.EnsureModel(cmd.arg)
		}
	case cmdSwitchDevice:
		o.switchDevice(cmd.arg)
	case cmdShutdown:
		o.shutdown()
		return true
	}
	return false
}

// switchDevice applies a new capture device after checking it against the
// backend's device list; an unknown id keeps the current device.
func (o *Orchestrator) switchDevice(deviceID string) {
	if deviceID == "" || deviceID == "default" {
		o.cfg.Audio.DeviceID = "default"
		return
	}
	devices, err := o.capture.ListDevices()
	if err != nil {
		log.Printf("orchestrator: device list: %v, keeping %q", err, o.cfg.Audio.DeviceID)
		return
	}
	want := strings.ToLower(deviceID)
	for _, dev := range devices {
		if dev.ID == deviceID || strings.Contains(strings.ToLower(dev.Name), want) {
			o.cfg.Audio.DeviceID = deviceID
			return
		}
	}
	log.Printf("orchestrator: no input device matching %q, keeping %q", deviceID, o.cfg.Audio.DeviceID)
}

// cancelActive cancels whatever the user would call "the current session":
// an open recording is discarded without transcribing, otherwise the
// transcription in progress is cancelled through the engine.
func (o *Orchestrator) cancelActive() {
	if o.current == nil {
		if len(o.jobQueue) > 0 {
			o.engine.Cancel(o.jobQueue[0])
		}
		return
	}
	session := o.current
	o.current = nil

	if _, err := session.capture.Stop(); err != nil {
		log.Printf("orchestrator: capture stop for cancelled session %d: %v", session.id, err)
	}
	o.drainWaveform(session)
	o.sink.Publish(domain.Event{Kind: domain.EventTranscriptionCancelled, SessionID: session.id})
	o.refreshState()
}

func (o *Orchestrator) shutdown() {
	o.cancelActive()

	// Close drains queued jobs as cancelled outcomes and abandons a running
	// decode; republishing them preserves one terminal event per session.
	o.engine.Close()
	for outcome := range o.engine.Results() {
		o.handleOutcome(outcome)
	}
	for _, sessionID := range o.jobQueue {
		o.sink.Publish(domain.Event{Kind: domain.EventTranscriptionCancelled, SessionID: sessionID})
	}
	o.jobQueue = nil

	o.state = domain.StateIdle
	o.sink.Publish(domain.Event{Kind: domain.EventShutdown})
}

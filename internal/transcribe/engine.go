// Package transcribe converts frozen audio clips into text. Model artifacts
// are acquired lazily and cached; inference runs on a single worker so no
// two decodes ever touch a model concurrently.
package transcribe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voicesnap/internal/domain"
	"voicesnap/internal/ports"
)

const (
	jobQueueSize     = 64
	defaultCacheSize = 2
)

// decoder runs one blocking decode against a local model artifact.
type decoder interface {
	Decode(ctx context.Context, modelPath string, clip domain.Clip, language string) (*domain.TranscriptionResult, error)
}

// fetcher resolves a model id to a local artifact, downloading on first use.
type fetcher interface {
	Fetch(ctx context.Context, modelID string) (string, error)
}

// Options tunes engine behavior.
type Options struct {
	// MinClipDuration rejects clips below this bound with ErrAudioTooShort
	// instead of decoding noise.
	MinClipDuration time.Duration

	// ModelCacheLimit caps how many loaded models are retained; the most
	// recently used model is always kept.
	ModelCacheLimit int
}

// Engine is the transcription engine. Submissions queue FIFO and execute
// strictly serialized on one worker goroutine.
type Engine struct {
	dec  decoder
	mods fetcher
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	models    map[string]*modelState
	cancelled map[uint64]bool
	pending   int

	queue       chan domain.TranscriptionJob
	results     chan domain.JobOutcome
	modelEvents chan ports.ModelEvent

	workerDone chan struct{}
}

type modelState struct {
	status   ports.ModelStatus
	path     string
	err      error
	done     chan struct{}
	lastUsed time.Time
}

func NewEngine(dec decoder, mods fetcher, opts Options) *Engine {
	if opts.ModelCacheLimit < 1 {
		opts.ModelCacheLimit = defaultCacheSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		dec:         dec,
		mods:        mods,
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		models:      make(map[string]*modelState),
		cancelled:   make(map[uint64]bool),
		queue:       make(chan domain.TranscriptionJob, jobQueueSize),
		results:     make(chan domain.JobOutcome, jobQueueSize),
		modelEvents: make(chan ports.ModelEvent, 16),
		workerDone:  make(chan struct{}),
	}
	go e.worker()
	return e
}

// NewWhisperEngine wires the default runner and model store.
func NewWhisperEngine(command, cacheDir, baseURL string, opts Options) *Engine {
	return NewEngine(NewWhisperRunner(command), NewModelStore(cacheDir, baseURL), opts)
}

// EnsureModel begins an asynchronous load on the first call per model id and
// returns Loading immediately; an already-loaded id returns Ready
// synchronously. A previously failed id is retried.
func (e *Engine) EnsureModel(modelID string) ports.ModelStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensureModelLocked(modelID).status
}

func (e *Engine) ensureModelLocked(modelID string) *modelState {
	st, ok := e.models[modelID]
	if ok && st.status != ports.ModelFailed {
		st.lastUsed = time.Now()
		return st
	}

	st = &modelState{status: ports.ModelLoading, done: make(chan struct{}), lastUsed: time.Now()}
	e.models[modelID] = st
	e.notifyModel(ports.ModelEvent{ModelID: modelID, Status: ports.ModelLoading})
	go e.load(modelID, st)
	return st
}

func (e *Engine) load(modelID string, st *modelState) {
	path, err := e.mods.Fetch(e.ctx, modelID)

	e.mu.Lock()
	if err != nil {
		st.status = ports.ModelFailed
		st.err = fmt.Errorf("%w: %v", domain.ErrModelLoadFailed, err)
	} else {
		st.status = ports.ModelReady
		st.path = path
		e.evictOverLimitLocked(modelID)
	}
	e.mu.Unlock()

	close(st.done)
	ev := ports.ModelEvent{ModelID: modelID, Status: st.status, Err: st.err}
	e.notifyModel(ev)
}

// evictOverLimitLocked drops the least recently used ready models beyond the
// cache limit, never the one just loaded.
func (e *Engine) evictOverLimitLocked(keep string) {
	ready := 0
	for _, st := range e.models {
		if st.status == ports.ModelReady {
			ready++
		}
	}
	for ready > e.opts.ModelCacheLimit {
		var oldestID string
		var oldest time.Time
		for id, st := range e.models {
			if id == keep || st.status != ports.ModelReady {
				continue
			}
			if oldestID == "" || st.lastUsed.Before(oldest) {
				oldestID, oldest = id, st.lastUsed
			}
		}
		if oldestID == "" {
			return
		}
		delete(e.models, oldestID)
		ready--
	}
}

func (e *Engine) notifyModel(ev ports.ModelEvent) {
	select {
	case e.modelEvents <- ev:
	default:
	}
}

// ModelEvents reports load begin/completion notifications.
func (e *Engine) ModelEvents() <-chan ports.ModelEvent { return e.modelEvents }

// Submit queues one job. FIFO relative to other submissions; never blocks
// the caller as long as the queue bound holds.
func (e *Engine) Submit(job domain.TranscriptionJob) {
	e.mu.Lock()
	e.pending++
	e.mu.Unlock()
	e.queue <- job
}

// Cancel marks a session's job so it is skipped if queued, or its result
// discarded if already running. A cancelled outcome is still reported.
func (e *Engine) Cancel(sessionID uint64) {
	e.mu.Lock()
	e.cancelled[sessionID] = true
	e.mu.Unlock()
}

// Results delivers one terminal outcome per submitted job, in order.
func (e *Engine) Results() <-chan domain.JobOutcome { return e.results }

// QueueDepth reports jobs submitted but not yet completed.
func (e *Engine) QueueDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// Close stops the worker. Queued jobs drain as cancelled outcomes; a decode
// already running is abandoned via context cancellation.
func (e *Engine) Close() {
	e.cancel()
	<-e.workerDone
}

func (e *Engine) worker() {
	defer close(e.workerDone)
	for {
		// Shutdown wins over further queue picks once requested.
		select {
		case <-e.ctx.Done():
			e.drain()
			return
		default:
		}
		select {
		case job := <-e.queue:
			e.emit(e.run(job))
		case <-e.ctx.Done():
			e.drain()
			return
		}
	}
}

func (e *Engine) drain() {
	for {
		select {
		case job := <-e.queue:
			e.emit(domain.JobOutcome{SessionID: job.SessionID, Status: domain.JobCancelled, Err: domain.ErrCancelled})
		default:
			close(e.results)
			return
		}
	}
}

func (e *Engine) run(job domain.TranscriptionJob) domain.JobOutcome {
	if e.takeCancelled(job.SessionID) {
		return domain.JobOutcome{SessionID: job.SessionID, Status: domain.JobCancelled, Err: domain.ErrCancelled}
	}

	e.mu.Lock()
	st := e.ensureModelLocked(job.ModelID)
	e.mu.Unlock()

	select {
	case <-st.done:
	case <-e.ctx.Done():
		return domain.JobOutcome{SessionID: job.SessionID, Status: domain.JobCancelled, Err: domain.ErrCancelled}
	}
	if st.err != nil {
		return domain.JobOutcome{SessionID: job.SessionID, Status: domain.JobFailed, Err: st.err}
	}

	if job.Clip.Duration < e.opts.MinClipDuration {
		return domain.JobOutcome{SessionID: job.SessionID, Status: domain.JobFailed,
			Err: fmt.Errorf("%w: %s < %s", domain.ErrAudioTooShort, job.Clip.Duration, e.opts.MinClipDuration)}
	}

	result, err := e.dec.Decode(e.ctx, st.path, job.Clip, job.Language)

	// The runtime has no cheap preemption point; a cancel that landed during
	// the decode discards the result after the fact.
	if e.takeCancelled(job.SessionID) {
		return domain.JobOutcome{SessionID: job.SessionID, Status: domain.JobCancelled, Err: domain.ErrCancelled}
	}
	if err != nil {
		// A decode aborted by shutdown is a cancellation, not an inference
		// failure.
		if e.ctx.Err() != nil {
			return domain.JobOutcome{SessionID: job.SessionID, Status: domain.JobCancelled, Err: domain.ErrCancelled}
		}
		return domain.JobOutcome{SessionID: job.SessionID, Status: domain.JobFailed,
			Err: fmt.Errorf("%w: %v", domain.ErrInference, err)}
	}
	return domain.JobOutcome{SessionID: job.SessionID, Status: domain.JobSucceeded, Result: result}
}

func (e *Engine) takeCancelled(sessionID uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelled[sessionID] {
		delete(e.cancelled, sessionID)
		return true
	}
	return false
}

func (e *Engine) emit(outcome domain.JobOutcome) {
	e.mu.Lock()
	e.pending--
	e.mu.Unlock()

	select {
	case e.results <- outcome:
	case <-e.ctx.Done():
		// Best effort during shutdown; buffered sends above normally land.
		select {
		case e.results <- outcome:
		default:
		}
	}
}

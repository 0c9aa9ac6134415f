package transcribe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voicesnap/internal/domain"
	"voicesnap/internal/ports"
)

func testClip(d time.Duration) domain.Clip {
	frames := make([]int16, int(d.Seconds()*16000))
	return domain.Clip{Frames: frames, SampleRate: 16000, Channels: 1, Duration: d}
}

func TestEnsureModelLoadsOnceAndBecomesReady(t *testing.T) {
	t.Parallel()

	fetch := newFakeFetcher()
	fetch.gate = make(chan struct{})
	engine := NewEngine(newFakeDecoder(), fetch, Options{})
	defer engine.Close()

	if got := engine.EnsureModel("base"); got != ports.ModelLoading {
		t.Fatalf("first EnsureModel = %v, want Loading", got)
	}
	if got := engine.EnsureModel("base"); got != ports.ModelLoading {
		t.Fatalf("second EnsureModel during load = %v, want Loading", got)
	}

	close(fetch.gate)
	waitModelStatus(t, engine, "base", ports.ModelReady)

	if n := fetch.count("base"); n != 1 {
		t.Fatalf("fetch called %d times, want 1", n)
	}
}

func TestModelEventsReportLoadLifecycle(t *testing.T) {
	t.Parallel()

	fetch := newFakeFetcher()
	engine := NewEngine(newFakeDecoder(), fetch, Options{})
	defer engine.Close()

	engine.EnsureModel("tiny")

	loading := receiveModelEvent(t, engine)
	if loading.ModelID != "tiny" || loading.Status != ports.ModelLoading {
		t.Fatalf("first event = %+v, want tiny loading", loading)
	}
	ready := receiveModelEvent(t, engine)
	if ready.ModelID != "tiny" || ready.Status != ports.ModelReady {
		t.Fatalf("second event = %+v, want tiny ready", ready)
	}
}

func TestFailedModelLoadIsRetriedOnNextEnsure(t *testing.T) {
	t.Parallel()

	fetch := newFakeFetcher()
	fetch.fail("broken", errors.New("network down"))
	engine := NewEngine(newFakeDecoder(), fetch, Options{})
	defer engine.Close()

	engine.EnsureModel("broken")
	waitModelStatus(t, engine, "broken", ports.ModelFailed)

	fetch.fail("broken", nil)
	if got := engine.EnsureModel("broken"); got != ports.ModelLoading {
		t.Fatalf("EnsureModel after failure = %v, want Loading", got)
	}
	waitModelStatus(t, engine, "broken", ports.ModelReady)
	if n := fetch.count("broken"); n != 2 {
		t.Fatalf("fetch called %d times, want 2", n)
	}
}

func TestResultsArriveInSubmissionOrder(t *testing.T) {
	t.Parallel()

	engine := NewEngine(newFakeDecoder(), newFakeFetcher(), Options{})
	defer engine.Close()

	for _, id := range []uint64{11, 12, 13} {
		engine.Submit(domain.TranscriptionJob{SessionID: id, Clip: testClip(time.Second), ModelID: "base"})
	}

	for _, want := range []uint64{11, 12, 13} {
		outcome := receiveOutcome(t, engine)
		if outcome.SessionID != want {
			t.Fatalf("outcome for session %d, want %d", outcome.SessionID, want)
		}
		if outcome.Status != domain.JobSucceeded {
			t.Fatalf("session %d status = %s: %v", outcome.SessionID, outcome.Status, outcome.Err)
		}
		if outcome.Result == nil || outcome.Result.Text == "" {
			t.Fatalf("session %d has empty result", outcome.SessionID)
		}
	}
}

func TestDecodesNeverOverlap(t *testing.T) {
	t.Parallel()

	dec := newFakeDecoder()
	dec.delay = 20 * time.Millisecond
	engine := NewEngine(dec, newFakeFetcher(), Options{})
	defer engine.Close()

	for i := uint64(1); i <= 4; i++ {
		engine.Submit(domain.TranscriptionJob{SessionID: i, Clip: testClip(time.Second), ModelID: "base"})
	}
	for i := 0; i < 4; i++ {
		receiveOutcome(t, engine)
	}
	if dec.maxConcurrent() > 1 {
		t.Fatalf("observed %d concurrent decodes, want 1", dec.maxConcurrent())
	}
}

func TestShortClipFailsWithoutDecoding(t *testing.T) {
	t.Parallel()

	dec := newFakeDecoder()
	engine := NewEngine(dec, newFakeFetcher(), Options{MinClipDuration: 300 * time.Millisecond})
	defer engine.Close()

	engine.Submit(domain.TranscriptionJob{SessionID: 5, Clip: testClip(100 * time.Millisecond), ModelID: "base"})

	outcome := receiveOutcome(t, engine)
	if outcome.Status != domain.JobFailed || !errors.Is(outcome.Err, domain.ErrAudioTooShort) {
		t.Fatalf("outcome = %s/%v, want failed ErrAudioTooShort", outcome.Status, outcome.Err)
	}
	if dec.callCount() != 0 {
		t.Fatalf("decoder invoked %d times for a too-short clip", dec.callCount())
	}
}

func TestCancelQueuedJobSkipsDecode(t *testing.T) {
	t.Parallel()

	dec := newFakeDecoder()
	dec.gate = make(chan struct{})
	engine := NewEngine(dec, newFakeFetcher(), Options{})
	defer engine.Close()

	engine.Submit(domain.TranscriptionJob{SessionID: 1, Clip: testClip(time.Second), ModelID: "base"})
	dec.waitEntered(t)
	engine.Submit(domain.TranscriptionJob{SessionID: 2, Clip: testClip(time.Second), ModelID: "base"})
	engine.Cancel(2)
	close(dec.gate)

	first := receiveOutcome(t, engine)
	if first.SessionID != 1 || first.Status != domain.JobSucceeded {
		t.Fatalf("first outcome = %+v", first)
	}
	second := receiveOutcome(t, engine)
	if second.SessionID != 2 || second.Status != domain.JobCancelled {
		t.Fatalf("second outcome = %+v", second)
	}
	if dec.callCount() != 1 {
		t.Fatalf("decoder ran %d times, want 1", dec.callCount())
	}
}

func TestCancelRunningJobDiscardsResult(t *testing.T) {
	t.Parallel()

	dec := newFakeDecoder()
	dec.gate = make(chan struct{})
	engine := NewEngine(dec, newFakeFetcher(), Options{})
	defer engine.Close()

	engine.Submit(domain.TranscriptionJob{SessionID: 9, Clip: testClip(time.Second), ModelID: "base"})
	dec.waitEntered(t)
	engine.Cancel(9)
	close(dec.gate)

	outcome := receiveOutcome(t, engine)
	if outcome.Status != domain.JobCancelled {
		t.Fatalf("status = %s, want cancelled", outcome.Status)
	}
	if outcome.Result != nil {
		t.Fatal("cancelled outcome still carries a result")
	}
}

func TestFailedModelFailsDependentJob(t *testing.T) {
	t.Parallel()

	fetch := newFakeFetcher()
	fetch.fail("missing", errors.New("404"))
	engine := NewEngine(newFakeDecoder(), fetch, Options{})
	defer engine.Close()

	engine.Submit(domain.TranscriptionJob{SessionID: 3, Clip: testClip(time.Second), ModelID: "missing"})

	outcome := receiveOutcome(t, engine)
	if outcome.Status != domain.JobFailed || !errors.Is(outcome.Err, domain.ErrModelLoadFailed) {
		t.Fatalf("outcome = %s/%v, want failed ErrModelLoadFailed", outcome.Status, outcome.Err)
	}
}

func TestCacheEvictsLeastRecentlyUsedModel(t *testing.T) {
	t.Parallel()

	fetch := newFakeFetcher()
	engine := NewEngine(newFakeDecoder(), fetch, Options{ModelCacheLimit: 1})
	defer engine.Close()

	engine.EnsureModel("tiny")
	waitModelStatus(t, engine, "tiny", ports.ModelReady)
	engine.EnsureModel("base")
	waitModelStatus(t, engine, "base", ports.ModelReady)

	engine.mu.Lock()
	_, tinyKept := engine.models["tiny"]
	_, baseKept := engine.models["base"]
	engine.mu.Unlock()
	if tinyKept {
		t.Fatal("least recently used model survived eviction")
	}
	if !baseKept {
		t.Fatal("most recently loaded model was evicted")
	}

	// Re-ensuring the evicted model triggers a fresh load.
	if got := engine.EnsureModel("tiny"); got != ports.ModelLoading {
		t.Fatalf("EnsureModel after eviction = %v, want Loading", got)
	}
}

func TestQueueDepthTracksPendingJobs(t *testing.T) {
	t.Parallel()

	dec := newFakeDecoder()
	dec.gate = make(chan struct{})
	engine := NewEngine(dec, newFakeFetcher(), Options{})
	defer engine.Close()

	for i := uint64(1); i <= 3; i++ {
		engine.Submit(domain.TranscriptionJob{SessionID: i, Clip: testClip(time.Second), ModelID: "base"})
	}
	dec.waitEntered(t)
	if depth := engine.QueueDepth(); depth != 3 {
		t.Fatalf("depth = %d, want 3", depth)
	}

	close(dec.gate)
	for i := 0; i < 3; i++ {
		receiveOutcome(t, engine)
	}
	if depth := engine.QueueDepth(); depth != 0 {
		t.Fatalf("depth after drain = %d, want 0", depth)
	}
}

func TestCloseDrainsQueuedJobsAsCancelled(t *testing.T) {
	t.Parallel()

	dec := newFakeDecoder()
	dec.gate = make(chan struct{})
	engine := NewEngine(dec, newFakeFetcher(), Options{})

	for i := uint64(1); i <= 3; i++ {
		engine.Submit(domain.TranscriptionJob{SessionID: i, Clip: testClip(time.Second), ModelID: "base"})
	}
	dec.waitEntered(t)
	engine.Close()

	seen := make(map[uint64]domain.JobStatus)
	for outcome := range engine.Results() {
		seen[outcome.SessionID] = outcome.Status
	}
	if len(seen) != 3 {
		t.Fatalf("got %d outcomes, want one per job: %v", len(seen), seen)
	}
	// The in-flight decode aborted by shutdown is a cancellation too, never
	// an inference failure.
	for _, id := range []uint64{1, 2, 3} {
		if seen[id] != domain.JobCancelled {
			t.Fatalf("job %d drained as %s, want cancelled", id, seen[id])
		}
	}
}

func waitModelStatus(t *testing.T, engine *Engine, modelID string, want ports.ModelStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		engine.mu.Lock()
		st, ok := engine.models[modelID]
		var status ports.ModelStatus
		if ok {
			status = st.status
		}
		engine.mu.Unlock()
		if ok && status == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("model %q never reached status %v", modelID, want)
}

func receiveModelEvent(t *testing.T, engine *Engine) ports.ModelEvent {
	t.Helper()
	select {
	case ev := <-engine.ModelEvents():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for model event")
		return ports.ModelEvent{}
	}
}

func receiveOutcome(t *testing.T, engine *Engine) domain.JobOutcome {
	t.Helper()
	select {
	case outcome, ok := <-engine.Results():
		if !ok {
			t.Fatal("results channel closed early")
		}
		return outcome
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return domain.JobOutcome{}
	}
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string]error
	gate  chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), errs: make(map[string]error)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, modelID string) (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[modelID]++
	if err := f.errs[modelID]; err != nil {
		return "", err
	}
	return "/models/ggml-" + modelID + ".bin", nil
}

func (f *fakeFetcher) fail(modelID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, modelID)
		return
	}
	f.errs[modelID] = err
}

func (f *fakeFetcher) count(modelID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[modelID]
}

type fakeDecoder struct {
	mu      sync.Mutex
	calls   int
	running int
	maxSeen int
	entered chan struct{}

	gate  chan struct{}
	delay time.Duration
	err   error
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{entered: make(chan struct{}, 16)}
}

func (d *fakeDecoder) Decode(ctx context.Context, modelPath string, clip domain.Clip, language string) (*domain.TranscriptionResult, error) {
	d.mu.Lock()
	d.calls++
	d.running++
	if d.running > d.maxSeen {
		d.maxSeen = d.running
	}
	d.mu.Unlock()
	select {
	case d.entered <- struct{}{}:
	default:
	}

	defer func() {
		d.mu.Lock()
		d.running--
		d.mu.Unlock()
	}()

	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.err != nil {
		return nil, d.err
	}
	return &domain.TranscriptionResult{Text: "hello world", Duration: clip.Duration}, nil
}

func (d *fakeDecoder) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-d.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("decoder never entered")
	}
}

func (d *fakeDecoder) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDecoder) maxConcurrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxSeen
}

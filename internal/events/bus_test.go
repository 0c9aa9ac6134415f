package events

import (
	"testing"
	"time"

	"voicesnap/internal/domain"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	defer bus.Close()

	first, cancelFirst := bus.Subscribe(0)
	defer cancelFirst()
	second, cancelSecond := bus.Subscribe(0)
	defer cancelSecond()

	bus.Publish(domain.Event{Kind: domain.EventRecordingStarted, SessionID: 1})

	for _, ch := range []<-chan domain.Event{first, second} {
		ev := receiveEvent(t, ch)
		if ev.Kind != domain.EventRecordingStarted || ev.SessionID != 1 {
			t.Fatalf("unexpected event %+v", ev)
		}
	}
}

func TestOrderPreservedPerSubscriber(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(0)
	defer cancel()

	kinds := []domain.EventKind{
		domain.EventRecordingStarted,
		domain.EventRecordingStopped,
		domain.EventTranscriptionStarted,
		domain.EventTranscriptionCompleted,
	}
	for _, kind := range kinds {
		bus.Publish(domain.Event{Kind: kind, SessionID: 7})
	}

	for _, want := range kinds {
		if got := receiveEvent(t, ch).Kind; got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
	}
}

func TestFullQueueDropsAdvisoryEventsFirst(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	defer bus.Close()

	// A tiny queue with no reader lets the publisher overrun it. The pump
	// goroutine may steal at most one event into its send, so fill past
	// capacity before publishing the event that must survive.
	ch, cancel := bus.Subscribe(2)
	defer cancel()

	sample := domain.WaveformSample{}
	for i := 0; i < 8; i++ {
		bus.Publish(domain.Event{Kind: domain.EventWaveformSample, SessionID: 3, Waveform: &sample})
	}
	bus.Publish(domain.Event{Kind: domain.EventTranscriptionCompleted, SessionID: 3})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == domain.EventTranscriptionCompleted {
				return
			}
		case <-deadline:
			t.Fatal("terminal event was dropped under advisory pressure")
		}
	}
}

func TestCancelClosesChannel(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(0)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}

	// Publishing after cancel must not panic or block.
	bus.Publish(domain.Event{Kind: domain.EventShutdown})
}

func TestSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	bus.Close()

	ch, cancel := bus.Subscribe(0)
	defer cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel from closed bus")
	}
}

func receiveEvent(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return domain.Event{}
	}
}

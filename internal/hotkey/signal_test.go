package hotkey

import (
	"context"
	"testing"
	"time"

	"voicesnap/internal/domain"
	"voicesnap/internal/ports"
)

func TestToggleModeAlternatesIntents(t *testing.T) {
	t.Parallel()

	source := newFakeKeySource()
	signal := startSignal(t, source, "ctrl+shift+space", domain.ModeToggle)

	source.press("ctrl", "shift", "space")
	source.release("space", "shift", "ctrl")
	source.press("ctrl", "shift", "space")
	source.release("space", "shift", "ctrl")
	source.close()

	expectIntents(t, signal, IntentActivate, IntentDeactivate)
}

func TestToggleModeIgnoresKeyRepeats(t *testing.T) {
	t.Parallel()

	source := newFakeKeySource()
	signal := startSignal(t, source, "ctrl+space", domain.ModeToggle)

	source.press("ctrl", "space")
	// OS key-repeat shows up as repeated down edges while held.
	source.press("space")
	source.press("space")
	source.release("space", "ctrl")
	source.close()

	expectIntents(t, signal, IntentActivate)
}

func TestToggleModeRequiresFreshPrimaryEdge(t *testing.T) {
	t.Parallel()

	source := newFakeKeySource()
	signal := startSignal(t, source, "ctrl+space", domain.ModeToggle)

	source.press("ctrl", "space")
	source.release("space")
	source.press("space") // second edge with ctrl still held
	source.release("space", "ctrl")
	source.close()

	expectIntents(t, signal, IntentActivate, IntentDeactivate)
}

func TestPushToTalkReleasesOnPrimaryKeyUp(t *testing.T) {
	t.Parallel()

	source := newFakeKeySource()
	signal := startSignal(t, source, "ctrl+shift+space", domain.ModePushToTalk)

	source.press("ctrl", "shift", "space")
	// Modifiers released before the primary key: combination stays held
	// until the primary key itself releases.
	source.release("ctrl", "shift")
	source.release("space")
	source.close()

	expectIntents(t, signal, IntentActivate, IntentDeactivate)
}

func TestPushToTalkSuppressesRepeatPressesWhileHeld(t *testing.T) {
	t.Parallel()

	source := newFakeKeySource()
	signal := startSignal(t, source, "ctrl+space", domain.ModePushToTalk)

	source.press("ctrl", "space")
	source.press("space")
	source.press("space")
	source.release("space")
	source.close()

	expectIntents(t, signal, IntentActivate, IntentDeactivate)
}

func TestLeftRightModifierVariantsAreInterchangeable(t *testing.T) {
	t.Parallel()

	source := newFakeKeySource()
	signal := startSignal(t, source, "ctrl+space", domain.ModeToggle)

	source.press("rctrl", "space")
	source.release("space", "rctrl")
	source.close()

	expectIntents(t, signal, IntentActivate)
}

func TestPrimaryKeyAloneDoesNotTrigger(t *testing.T) {
	t.Parallel()

	source := newFakeKeySource()
	signal := startSignal(t, source, "ctrl+space", domain.ModeToggle)

	source.press("space")
	source.release("space")
	source.close()

	expectIntents(t, signal)
}

func TestStartPropagatesPermissionError(t *testing.T) {
	t.Parallel()

	source := &fakeKeySource{startErr: domain.ErrPermissionDenied}
	combo, err := ParseCombination("ctrl+space")
	if err != nil {
		t.Fatalf("parse combination: %v", err)
	}
	signal := NewSignal(source, combo, domain.ModeToggle)
	if err := signal.Start(context.Background()); err != domain.ErrPermissionDenied {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestParseCombination(t *testing.T) {
	t.Parallel()

	combo, err := ParseCombination("Ctrl+Shift+Space")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if combo.Key != "space" {
		t.Fatalf("unexpected primary key %q", combo.Key)
	}
	if len(combo.Modifiers) != 2 || combo.Modifiers[0] != "ctrl" || combo.Modifiers[1] != "shift" {
		t.Fatalf("unexpected modifiers %v", combo.Modifiers)
	}

	if _, err := ParseCombination("ctrl+shift"); err == nil {
		t.Fatalf("expected error for modifier-only combination")
	}
	if _, err := ParseCombination("a+b"); err == nil {
		t.Fatalf("expected error for two primary keys")
	}
	if _, err := ParseCombination("super+f1"); err != nil {
		t.Fatalf("super+f1 should parse: %v", err)
	}
}

func startSignal(t *testing.T, source *fakeKeySource, combination string, mode domain.Mode) *Signal {
	t.Helper()
	combo, err := ParseCombination(combination)
	if err != nil {
		t.Fatalf("parse combination: %v", err)
	}
	signal := NewSignal(source, combo, mode)
	if err := signal.Start(context.Background()); err != nil {
		t.Fatalf("start signal: %v", err)
	}
	return signal
}

func expectIntents(t *testing.T, signal *Signal, want ...Intent) {
	t.Helper()
	var got []Intent
	deadline := time.After(2 * time.Second)
	for {
		select {
		case intent, ok := <-signal.Intents():
			if !ok {
				if len(got) != len(want) {
					t.Fatalf("intents = %v, want %v", got, want)
				}
				for i := range want {
					if got[i] != want[i] {
						t.Fatalf("intents = %v, want %v", got, want)
					}
				}
				return
			}
			got = append(got, intent)
		case <-deadline:
			t.Fatalf("timed out waiting for intent channel close; got %v", got)
		}
	}
}

type fakeKeySource struct {
	events   chan ports.KeyEvent
	startErr error
}

func newFakeKeySource() *fakeKeySource {
	return &fakeKeySource{events: make(chan ports.KeyEvent, 64)}
}

func (f *fakeKeySource) Start(context.Context) (<-chan ports.KeyEvent, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.events, nil
}

func (f *fakeKeySource) Close() error { return nil }

func (f *fakeKeySource) press(names ...string) {
	for _, name := range names {
		f.events <- ports.KeyEvent{Name: name, Down: true}
	}
}

func (f *fakeKeySource) release(names ...string) {
	for _, name := range names {
		f.events <- ports.KeyEvent{Name: name, Down: false}
	}
}

func (f *fakeKeySource) close() { close(f.events) }

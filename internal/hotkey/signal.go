// Package hotkey turns raw global key events into abstract recording
// intents, independent of OS key-code representation.
package hotkey

import (
	"context"
	"log"

	"voicesnap/internal/domain"
	"voicesnap/internal/ports"
)

// Intent is an abstract start/stop signal.
type Intent int

const (
	IntentActivate Intent = iota
	IntentDeactivate
)

const intentBuffer = 64

// Signal watches a KeySource for the configured combination and emits
// alternating Activate/Deactivate intents. The source goroutine never blocks
// on the consumer: intents queue on a buffered channel in arrival order.
type Signal struct {
	source ports.KeySource
	combo  Combination
	mode   domain.Mode

	intents chan Intent

	// listener-goroutine state; no lock needed, single reader.
	held        map[string]bool
	primaryHeld bool
	active      bool
}

func NewSignal(source ports.KeySource, combo Combination, mode domain.Mode) *Signal {
	return &Signal{
		source:  source,
		combo:   combo,
		mode:    mode,
		intents: make(chan Intent, intentBuffer),
		held:    make(map[string]bool),
	}
}

// Start installs the key hook and begins intent delivery. It fails fast with
// domain.ErrPermissionDenied when the hook cannot be installed.
func (s *Signal) Start(ctx context.Context) error {
	raw, err := s.source.Start(ctx)
	if err != nil {
		return err
	}
	go s.run(raw)
	return nil
}

// Intents is the ordered intent stream. Closed once the source ends.
func (s *Signal) Intents() <-chan Intent { return s.intents }

// Close uninstalls the key hook; the intent channel closes once the raw
// stream drains.
func (s *Signal) Close() error { return s.source.Close() }

func (s *Signal) run(raw <-chan ports.KeyEvent) {
	defer close(s.intents)
	for ev := range raw {
		s.handle(ev)
	}
}

func (s *Signal) handle(ev ports.KeyEvent) {
	name := CanonicalKey(ev.Name)
	if name == "" {
		return
	}

	if !ev.Down {
		s.held[name] = false
		if name == s.combo.Key {
			s.primaryHeld = false
			// Push-to-talk tracks the primary key release regardless of
			// modifier state, tolerating natural release-order variance.
			if s.mode == domain.ModePushToTalk && s.active {
				s.active = false
				s.emit(IntentDeactivate)
			}
		}
		return
	}

	if s.held[name] && name == s.combo.Key {
		// OS key-repeat while held; not a fresh edge.
		return
	}
	s.held[name] = true

	if name != s.combo.Key || s.primaryHeld || !s.modifiersHeld() {
		return
	}
	s.primaryHeld = true

	switch s.mode {
	case domain.ModePushToTalk:
		if !s.active {
			s.active = true
			s.emit(IntentActivate)
		}
	default: // toggle
		if s.active {
			s.active = false
			s.emit(IntentDeactivate)
		} else {
			s.active = true
			s.emit(IntentActivate)
		}
	}
}

func (s *Signal) modifiersHeld() bool {
	for _, mod := range s.combo.Modifiers {
		if !s.held[mod] {
			return false
		}
	}
	return true
}

func (s *Signal) emit(intent Intent) {
	select {
	case s.intents <- intent:
	default:
		// 64 pending intents means the orchestrator is gone; dropping here
		// keeps the listener from ever blocking.
		log.Printf("hotkey: intent queue full, dropping intent %d", intent)
	}
}

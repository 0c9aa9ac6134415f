package deliver

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

// ClipboardSink writes transcript text to the system clipboard and, when
// enabled, simulates the platform paste chord so the text lands in the
// focused application.
type ClipboardSink struct {
	paste bool
}

func NewClipboardSink(paste bool) *ClipboardSink {
	return &ClipboardSink{paste: paste}
}

func (s *ClipboardSink) Deliver(ctx context.Context, text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard write: %w", err)
	}
	if !s.paste {
		return nil
	}
	if err := simulatePaste(); err != nil {
		return fmt.Errorf("paste simulation: %w", err)
	}
	return nil
}

func simulatePaste() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}

	// Give the user's modifier keys a moment to clear; the hotkey that
	// triggered the session may still be physically held.
	time.Sleep(100 * time.Millisecond)

	kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	return kb.Launching()
}

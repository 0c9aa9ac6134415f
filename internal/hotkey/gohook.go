package hotkey

import (
	"context"
	"sort"
	"sync"
	"time"
	"unicode"

	hook "github.com/robotn/gohook"

	"voicesnap/internal/domain"
	"voicesnap/internal/ports"
)

const hookInstallTimeout = 2 * time.Second

// HookSource adapts the gohook global keyboard hook to the KeySource port.
// Hook installation is verified before Start returns: if the enabled marker
// never arrives (missing accessibility/input permissions), Start fails with
// domain.ErrPermissionDenied instead of silently degrading.
type HookSource struct {
	closeOnce sync.Once
}

func NewHookSource() *HookSource { return &HookSource{} }

func (h *HookSource) Start(ctx context.Context) (<-chan ports.KeyEvent, error) {
	raw := hook.Start()

	timer := time.NewTimer(hookInstallTimeout)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-raw:
			if !ok {
				return nil, domain.ErrPermissionDenied
			}
			if ev.Kind == hook.HookEnabled {
				out := make(chan ports.KeyEvent, 64)
				go h.translate(ctx, raw, out)
				return out, nil
			}
		case <-timer.C:
			hook.End()
			return nil, domain.ErrPermissionDenied
		case <-ctx.Done():
			hook.End()
			return nil, ctx.Err()
		}
	}
}

func (h *HookSource) translate(ctx context.Context, raw chan hook.Event, out chan<- ports.KeyEvent) {
	defer close(out)
	for {
		select {
		case ev, ok := <-raw:
			if !ok {
				return
			}
			name := keyName(ev)
			if name == "" {
				continue
			}
			switch ev.Kind {
			case hook.KeyDown:
				out <- ports.KeyEvent{Name: name, Down: true}
			case hook.KeyUp:
				out <- ports.KeyEvent{Name: name, Down: false}
			}
			// KeyHold repeats are dropped; the signal layer guards against
			// platforms that report repeats as KeyDown instead.
		case <-ctx.Done():
			hook.End()
			return
		}
	}
}

var (
	keyNamesOnce sync.Once
	keyNames     map[uint16]string
)

// keyName resolves a hook event to the shared key vocabulary: named keys via
// the hook keycode table, printable characters via the event rune.
func keyName(ev hook.Event) string {
	keyNamesOnce.Do(buildKeyNames)
	if name, ok := keyNames[ev.Keycode]; ok {
		return name
	}
	if ev.Keychar != 0 && unicode.IsPrint(ev.Keychar) {
		return string(unicode.ToLower(ev.Keychar))
	}
	return ""
}

func buildKeyNames() {
	keyNames = make(map[uint16]string, len(hook.Keycode))
	names := make([]string, 0, len(hook.Keycode))
	for name := range hook.Keycode {
		names = append(names, name)
	}
	// Deterministic reverse mapping; ties on a keycode resolve to the
	// lexically first name, and variants collapse to roles downstream anyway.
	sort.Strings(names)
	for _, name := range names {
		code := hook.Keycode[name]
		if _, exists := keyNames[code]; !exists {
			keyNames[code] = name
		}
	}
}

func (h *HookSource) Close() error {
	h.closeOnce.Do(hook.End)
	return nil
}

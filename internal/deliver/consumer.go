// Package deliver is the downstream consumer side of the event stream:
// clipboard, paste simulation, notifications and transcript history. None of
// it feeds back into the orchestration core.
package deliver

import (
	"context"
	"log"

	"voicesnap/internal/domain"
	"voicesnap/internal/ports"
)

// Options selects which delivery paths are active.
type Options struct {
	Clipboard bool
	Paste     bool
	Notify    bool
}

// HistoryWriter is the subset of the history store the consumer needs.
type HistoryWriter interface {
	Save(sessionID uint64, result *domain.TranscriptionResult) error
}

// Consumer drains one event-stream subscription and fans completed
// transcripts out to the configured sinks.
type Consumer struct {
	opts     Options
	replacer *Replacer
	text     ports.TextSink
	notifier Notifier
	history  HistoryWriter
}

// Notifier shows a desktop notification for terminal outcomes.
type Notifier interface {
	Notify(title, message string) error
}

func NewConsumer(opts Options, replacer *Replacer, text ports.TextSink, notifier Notifier, history HistoryWriter) *Consumer {
	if replacer == nil {
		replacer = &Replacer{}
	}
	return &Consumer{opts: opts, replacer: replacer, text: text, notifier: notifier, history: history}
}

// Run consumes events until the subscription channel closes or ctx ends.
func (c *Consumer) Run(ctx context.Context, events <-chan domain.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handle(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) handle(ctx context.Context, ev domain.Event) {
	switch ev.Kind {
	case domain.EventTranscriptionCompleted:
		c.deliverResult(ctx, ev)
	case domain.EventTranscriptionFailed:
		c.notify("Transcription failed", ev.Reason)
	}
}

func (c *Consumer) deliverResult(ctx context.Context, ev domain.Event) {
	if ev.Result == nil {
		return
	}
	text := c.replacer.Apply(ev.Result.Text)

	if c.history != nil {
		if err := c.history.Save(ev.SessionID, ev.Result); err != nil {
			log.Printf("deliver: history save for session %d: %v", ev.SessionID, err)
		}
	}

	if text == "" {
		c.notify("Transcription finished", "no speech detected")
		return
	}

	if c.opts.Clipboard && c.text != nil {
		if err := c.text.Deliver(ctx, text); err != nil {
			log.Printf("deliver: clipboard for session %d: %v", ev.SessionID, err)
			c.notify("Transcript ready", "clipboard write failed")
			return
		}
	}
	c.notify("Transcript ready", text)
}

func (c *Consumer) notify(title, message string) {
	if !c.opts.Notify || c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(title, message); err != nil {
		log.Printf("deliver: notification: %v", err)
	}
}

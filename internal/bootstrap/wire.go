// Package bootstrap assembles the runtime graph.
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"voicesnap/internal/audio"
	"voicesnap/internal/config"
	"voicesnap/internal/deliver"
	"voicesnap/internal/domain"
	"voicesnap/internal/events"
	"voicesnap/internal/history"
	"voicesnap/internal/hotkey"
	"voicesnap/internal/ports"
	"voicesnap/internal/transcribe"
	"voicesnap/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config       config.Config
	Bus          *events.Bus
	Signal       *hotkey.Signal
	Capture      ports.AudioCapture
	Orchestrator *usecase.Orchestrator
	Consumer     *deliver.Consumer
	History      *history.Store
}

// Build wires all backend dependencies for the current configuration.
func Build(cfg config.Config) (Services, error) {
	combo, err := hotkey.ParseCombination(cfg.Hotkey.Combination)
	if err != nil {
		return Services{}, fmt.Errorf("hotkey config: %w", err)
	}
	if !transcribe.IsKnownModel(cfg.Transcribe.Model) {
		return Services{}, fmt.Errorf("transcribe config: unknown model %q (known: %s)",
			cfg.Transcribe.Model, strings.Join(transcribe.KnownModels(), ", "))
	}
	signal := hotkey.NewSignal(hotkey.NewHookSource(), combo, domain.Mode(cfg.Hotkey.Mode))

	var capture ports.AudioCapture
	if cfg.Audio.Backend == "ffmpeg" {
		capture = audio.NewFFmpegEngine(cfg.Audio.FFmpegCommand, cfg.Audio.FFmpegInputFormat)
	} else {
		capture = audio.NewPortAudioEngine()
	}

	engine := transcribe.NewWhisperEngine(
		cfg.Transcribe.Command,
		cfg.Transcribe.ModelCacheDir,
		cfg.Transcribe.ModelBaseURL,
		transcribe.Options{
			MinClipDuration: time.Duration(cfg.Transcribe.MinClipMillis) * time.Millisecond,
			ModelCacheLimit: cfg.Transcribe.ModelCacheLimit,
		},
	)

	bus := events.NewBus()
	orchestrator := usecase.NewOrchestrator(capture, engine, bus, signal.Intents(), usecase.Config{
		Audio: ports.AudioConfig{
			DeviceID:     cfg.Audio.Device,
			SampleRate:   cfg.Audio.SampleRate,
			Channels:     cfg.Audio.Channels,
			MaxDuration:  cfg.Audio.MaxDurationSeconds,
			WaveformRate: cfg.Audio.WaveformRateHz,
		},
		ModelID:  cfg.Transcribe.Model,
		Language: cfg.Transcribe.Language,
	})

	replacer, err := deliver.LoadReplacer(cfg.Deliver.RulesFile, 0)
	if err != nil {
		return Services{}, err
	}

	var hist *history.Store
	var histWriter deliver.HistoryWriter
	if cfg.History.Enabled {
		hist, err = history.Open(cfg.History.Path)
		if err != nil {
			return Services{}, err
		}
		histWriter = historyAdapter{store: hist}
	}

	var textSink ports.TextSink
	if cfg.Deliver.Clipboard {
		textSink = deliver.NewClipboardSink(cfg.Deliver.Paste)
	}
	var notifier deliver.Notifier
	if cfg.Deliver.Notify {
		notifier = deliver.NewBeeepNotifier()
	}

	consumer := deliver.NewConsumer(deliver.Options{
		Clipboard: cfg.Deliver.Clipboard,
		Paste:     cfg.Deliver.Paste,
		Notify:    cfg.Deliver.Notify,
	}, replacer, textSink, notifier, histWriter)

	return Services{
		Config:       cfg,
		Bus:          bus,
		Signal:       signal,
		Capture:      capture,
		Orchestrator: orchestrator,
		Consumer:     consumer,
		History:      hist,
	}, nil
}

type historyAdapter struct {
	store *history.Store
}

func (a historyAdapter) Save(sessionID uint64, result *domain.TranscriptionResult) error {
	_, err := a.store.Save(sessionID, result)
	return err
}

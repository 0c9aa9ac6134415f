package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"voicesnap/internal/bootstrap"
	"voicesnap/internal/config"
	"voicesnap/internal/domain"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	services, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer services.Bus.Close()
	if services.History != nil {
		defer services.History.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := services.Signal.Start(ctx); err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			log.Fatalf("hotkey: %v (grant input monitoring permission and retry)", err)
		}
		log.Fatalf("hotkey: %v", err)
	}
	defer services.Signal.Close()

	eventCh, unsubscribe := services.Bus.Subscribe(0)
	defer unsubscribe()
	go services.Consumer.Run(ctx, eventCh)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("shutting down")
		services.Orchestrator.RequestShutdown()
	}()

	if devices, err := services.Capture.ListDevices(); err != nil {
		log.Printf("audio devices: %v", err)
	} else {
		for _, dev := range devices {
			marker := ""
			if dev.Default {
				marker = " (default)"
			}
			log.Printf("audio device: %s%s", dev.Name, marker)
		}
	}

	log.Printf("voicesnap ready: %s (%s), model %q, device %q",
		cfg.Hotkey.Combination, cfg.Hotkey.Mode, cfg.Transcribe.Model, cfg.Audio.Device)

	if err := services.Orchestrator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("orchestrator: %v", err)
	}
}

// Package config resolves runtime configuration from a YAML file plus
// environment overrides, with sensible defaults for everything.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config stores the assembled runtime configuration.
type Config struct {
	Hotkey     HotkeyConfig     `yaml:"hotkey"`
	Audio      AudioConfig      `yaml:"audio"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	History    HistoryConfig    `yaml:"history"`
	Deliver    DeliverConfig    `yaml:"deliver"`
}

type HotkeyConfig struct {
	Combination string `yaml:"combination"`
	Mode        string `yaml:"mode"` // toggle | push_to_talk
}

type AudioConfig struct {
	Backend            string `yaml:"backend"` // portaudio | ffmpeg
	Device             string `yaml:"device"`
	SampleRate         int    `yaml:"sample_rate"`
	Channels           int    `yaml:"channels"`
	MaxDurationSeconds int    `yaml:"max_duration_seconds"`
	WaveformRateHz     int    `yaml:"waveform_rate_hz"`
	FFmpegCommand      string `yaml:"ffmpeg_command"`
	FFmpegInputFormat  string `yaml:"ffmpeg_input_format"`
}

type TranscribeConfig struct {
	Model           string `yaml:"model"`
	Language        string `yaml:"language"` // hint or "auto"
	Command         string `yaml:"command"`
	ModelBaseURL    string `yaml:"model_base_url"`
	ModelCacheDir   string `yaml:"model_cache_dir"`
	ModelCacheLimit int    `yaml:"model_cache_limit"`
	MinClipMillis   int    `yaml:"min_clip_ms"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type DeliverConfig struct {
	Clipboard bool   `yaml:"clipboard"`
	Paste     bool   `yaml:"paste"`
	Notify    bool   `yaml:"notify"`
	RulesFile string `yaml:"rules_file"`
}

// Load reads the config file (VOICESNAP_CONFIG or the default location if
// present), applies environment overrides and clamps the result.
func Load() (Config, error) {
	cfg := defaults()

	path := strings.TrimSpace(os.Getenv("VOICESNAP_CONFIG"))
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".config", "voicesnap", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	clamp(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		Hotkey: HotkeyConfig{Combination: "ctrl+shift+space", Mode: "toggle"},
		Audio: AudioConfig{
			Backend:            "portaudio",
			Device:             "default",
			SampleRate:         16000,
			Channels:           1,
			MaxDurationSeconds: 120,
			WaveformRateHz:     30,
			FFmpegCommand:      "ffmpeg",
			FFmpegInputFormat:  "pulse",
		},
		Transcribe: TranscribeConfig{
			Model:           "base",
			Language:        "auto",
			Command:         "whisper-cli",
			ModelCacheLimit: 2,
			MinClipMillis:   400,
		},
		History: HistoryConfig{Enabled: true},
		Deliver: DeliverConfig{Clipboard: true, Notify: true},
	}
}

func applyEnv(cfg *Config) {
	cfg.Hotkey.Combination = envOrDefault("VOICESNAP_HOTKEY", cfg.Hotkey.Combination)
	cfg.Hotkey.Mode = envOrDefault("VOICESNAP_MODE", cfg.Hotkey.Mode)

	cfg.Audio.Backend = envOrDefault("VOICESNAP_AUDIO_BACKEND", cfg.Audio.Backend)
	cfg.Audio.Device = envOrDefault("VOICESNAP_AUDIO_DEVICE", cfg.Audio.Device)
	cfg.Audio.SampleRate = envOrDefaultInt("VOICESNAP_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("VOICESNAP_CHANNELS", cfg.Audio.Channels)
	cfg.Audio.MaxDurationSeconds = envOrDefaultInt("VOICESNAP_MAX_DURATION", cfg.Audio.MaxDurationSeconds)
	cfg.Audio.WaveformRateHz = envOrDefaultInt("VOICESNAP_WAVEFORM_RATE", cfg.Audio.WaveformRateHz)
	cfg.Audio.FFmpegCommand = envOrDefault("VOICESNAP_FFMPEG_COMMAND", cfg.Audio.FFmpegCommand)
	cfg.Audio.FFmpegInputFormat = envOrDefault("VOICESNAP_FFMPEG_FORMAT", cfg.Audio.FFmpegInputFormat)

	cfg.Transcribe.Model = envOrDefault("VOICESNAP_MODEL", cfg.Transcribe.Model)
	cfg.Transcribe.Language = envOrDefault("VOICESNAP_LANGUAGE", cfg.Transcribe.Language)
	cfg.Transcribe.Command = envOrDefault("VOICESNAP_WHISPER_COMMAND", cfg.Transcribe.Command)
	cfg.Transcribe.ModelBaseURL = envOrDefault("VOICESNAP_MODEL_BASE_URL", cfg.Transcribe.ModelBaseURL)
	cfg.Transcribe.ModelCacheDir = envOrDefault("VOICESNAP_MODEL_CACHE_DIR", cfg.Transcribe.ModelCacheDir)
	cfg.Transcribe.MinClipMillis = envOrDefaultInt("VOICESNAP_MIN_CLIP_MS", cfg.Transcribe.MinClipMillis)

	cfg.History.Path = envOrDefault("VOICESNAP_HISTORY_DB", cfg.History.Path)
	cfg.Deliver.RulesFile = envOrDefault("VOICESNAP_RULES_FILE", cfg.Deliver.RulesFile)
	cfg.Deliver.Clipboard = envOrDefaultBool("VOICESNAP_CLIPBOARD", cfg.Deliver.Clipboard)
	cfg.Deliver.Paste = envOrDefaultBool("VOICESNAP_PASTE", cfg.Deliver.Paste)
	cfg.Deliver.Notify = envOrDefaultBool("VOICESNAP_NOTIFY", cfg.Deliver.Notify)
}

func clamp(cfg *Config) {
	if cfg.Hotkey.Mode != "push_to_talk" {
		cfg.Hotkey.Mode = "toggle"
	}
	if cfg.Audio.Backend != "ffmpeg" {
		cfg.Audio.Backend = "portaudio"
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.MaxDurationSeconds <= 0 {
		cfg.Audio.MaxDurationSeconds = 120
	}
	if cfg.Audio.WaveformRateHz <= 0 || cfg.Audio.WaveformRateHz > 120 {
		cfg.Audio.WaveformRateHz = 30
	}
	if cfg.Audio.Device == "" {
		cfg.Audio.Device = "default"
	}
	if cfg.Transcribe.Model == "" {
		cfg.Transcribe.Model = "base"
	}
	if cfg.Transcribe.Language == "" {
		cfg.Transcribe.Language = "auto"
	}
	if cfg.Transcribe.ModelCacheLimit < 1 {
		cfg.Transcribe.ModelCacheLimit = 2
	}
	if cfg.Transcribe.MinClipMillis < 0 {
		cfg.Transcribe.MinClipMillis = 400
	}
	if cfg.History.Enabled && cfg.History.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.History.Path = filepath.Join(home, ".local", "share", "voicesnap", "history.sqlite")
		} else {
			cfg.History.Enabled = false
		}
	}
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

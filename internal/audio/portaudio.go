package audio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"voicesnap/internal/domain"
	"voicesnap/internal/ports"
)

const portaudioChunkFrames = 1024

// NewPortAudioEngine returns the primary capture engine, backed by the
// PortAudio blocking-read API.
func NewPortAudioEngine() *Engine {
	return newEngine(&portAudioOpener{})
}

type portAudioOpener struct {
	initOnce sync.Once
	initErr  error
}

func (o *portAudioOpener) ensureInit() error {
	o.initOnce.Do(func() { o.initErr = portaudio.Initialize() })
	return o.initErr
}

func (o *portAudioOpener) open(cfg ports.AudioConfig) (pcmStream, error) {
	if err := o.ensureInit(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	dev, err := o.resolveDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	buf := make([]int16, portaudioChunkFrames*cfg.Channels)
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = cfg.Channels
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = portaudioChunkFrames

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("open stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start stream on %q: %w", dev.Name, err)
	}
	return &paStream{stream: stream, buf: buf}, nil
}

func (o *portAudioOpener) resolveDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" || deviceID == "default" {
		return portaudio.DefaultInputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	want := strings.ToLower(deviceID)
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 && strings.Contains(strings.ToLower(dev.Name), want) {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("no input device matching %q", deviceID)
}

func (o *portAudioOpener) listDevices() ([]domain.DeviceInfo, error) {
	if err := o.ensureInit(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []domain.DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, domain.DeviceInfo{
			ID:         dev.Name,
			Name:       dev.Name,
			Channels:   dev.MaxInputChannels,
			SampleRate: dev.DefaultSampleRate,
			Default:    def != nil && dev.Name == def.Name,
		})
	}
	return out, nil
}

type paStream struct {
	stream *portaudio.Stream
	buf    []int16

	closeOnce sync.Once
	closeErr  error
}

func (s *paStream) ReadChunk() ([]int16, error) {
	if err := s.stream.Read(); err != nil {
		return nil, err
	}
	return s.buf, nil
}

func (s *paStream) Close() error {
	s.closeOnce.Do(func() {
		// Abort rather than Stop so a blocked Read returns promptly.
		_ = s.stream.Abort()
		s.closeErr = s.stream.Close()
	})
	return s.closeErr
}

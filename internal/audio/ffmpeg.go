package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"voicesnap/internal/domain"
	"voicesnap/internal/ports"
)

const ffmpegChunkBytes = 4096

// NewFFmpegEngine returns the fallback capture engine: an ffmpeg subprocess
// emitting s16le PCM on stdout. Used where PortAudio is unavailable.
func NewFFmpegEngine(command, inputFormat string) *Engine {
	if command == "" {
		command = "ffmpeg"
	}
	if inputFormat == "" {
		inputFormat = "pulse"
	}
	return newEngine(&ffmpegOpener{command: command, inputFormat: inputFormat})
}

type ffmpegOpener struct {
	command     string
	inputFormat string
}

func (o *ffmpegOpener) open(cfg ports.AudioConfig) (pcmStream, error) {
	device := cfg.DeviceID
	if device == "" {
		device = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", o.inputFormat,
		"-i", device,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.Command(o.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// An immediate exit means the device/format arguments were rejected.
	select {
	case err := <-waitErr:
		msg := bytes.TrimSpace(stderr.Bytes())
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffmpeg exited before capture started: %s", msg)
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegStream{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
		raw:     make([]byte, ffmpegChunkBytes),
	}, nil
}

// listDevices cannot enumerate through ffmpeg; the default device is the
// only addressable entry for this backend.
func (o *ffmpegOpener) listDevices() ([]domain.DeviceInfo, error) {
	return []domain.DeviceInfo{{ID: "default", Name: "system default (" + o.inputFormat + ")", Channels: 2, Default: true}}, nil
}

type ffmpegStream struct {
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	process *os.Process
	waitErr <-chan error

	raw    []byte
	frames []int16

	closeOnce sync.Once
	closeErr  error
}

func (s *ffmpegStream) ReadChunk() ([]int16, error) {
	n, err := s.stdout.Read(s.raw)
	if n > 0 {
		usable := n - n%2
		if cap(s.frames) < usable/2 {
			s.frames = make([]int16, usable/2)
		}
		s.frames = s.frames[:usable/2]
		for i := range s.frames {
			s.frames[i] = int16(binary.LittleEndian.Uint16(s.raw[i*2:]))
		}
		return s.frames, err
	}
	return nil, err
}

func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.closeErr = ignoreExitErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.closeErr = ignoreExitErr(err)
			}
		}

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.closeErr == nil {
			s.closeErr = err
		}
		if s.closeErr != nil && s.stderr.Len() > 0 {
			s.closeErr = fmt.Errorf("%w: %s", s.closeErr, bytes.TrimSpace(s.stderr.Bytes()))
		}
	})
	return s.closeErr
}

// ignoreExitErr drops the non-zero exit status ffmpeg reports when it is
// interrupted mid-stream.
func ignoreExitErr(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

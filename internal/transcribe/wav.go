package transcribe

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"voicesnap/internal/domain"
)

// writeClipWAV encodes a frozen clip as a 16-bit PCM WAV file at path.
func writeClipWAV(clip domain.Clip, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}

	enc := wav.NewEncoder(f, clip.SampleRate, 16, clip.Channels, 1)

	data := make([]int, len(clip.Frames))
	for i, frame := range clip.Frames {
		data[i] = int(frame)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: clip.Channels, SampleRate: clip.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}

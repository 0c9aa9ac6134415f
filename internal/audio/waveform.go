package audio

import (
	"math"
	"sync"
	"time"

	"voicesnap/internal/domain"
)

// WaveformBuffer keeps the most recent energy samples of a session for live
// visualization. Ring semantics: older samples are evicted once capacity is
// reached, since only a live view is required, not playback history.
type WaveformBuffer struct {
	mu      sync.Mutex
	samples []domain.WaveformSample
	head    int
	count   int
	seq     uint64
}

func NewWaveformBuffer(capacity int) *WaveformBuffer {
	if capacity <= 0 {
		capacity = 100
	}
	return &WaveformBuffer{samples: make([]domain.WaveformSample, capacity)}
}

// Append records one energy value and returns the stored sample with its
// assigned sequence index.
func (b *WaveformBuffer) Append(value float64, offset time.Duration) domain.WaveformSample {
	b.mu.Lock()
	defer b.mu.Unlock()

	sample := domain.WaveformSample{Seq: b.seq, Value: value, Offset: offset}
	b.seq++

	idx := (b.head + b.count) % len(b.samples)
	b.samples[idx] = sample
	if b.count < len(b.samples) {
		b.count++
	} else {
		b.head = (b.head + 1) % len(b.samples)
	}
	return sample
}

// Snapshot returns the retained samples oldest-first.
func (b *WaveformBuffer) Snapshot() []domain.WaveformSample {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.WaveformSample, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.samples[(b.head+i)%len(b.samples)]
	}
	return out
}

// Len reports how many samples are currently retained.
func (b *WaveformBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// rms computes the normalized root-mean-square magnitude of a PCM chunk,
// in [0, 1].
func rms(frames []int16) float64 {
	if len(frames) == 0 {
		return 0
	}
	var sum float64
	for _, f := range frames {
		v := float64(f)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(frames))) / math.MaxInt16
}

// Package memsink is an in-memory AudioSink fake. It replaces the hardware
// mixer with a deep-copying frame ring (the teacher's AudioFrameRingBuffer)
// so property tests can drive queue/unqueue, underrun, and wrap-around
// scenarios deterministically, without real audio output.
package memsink

import (
	"fmt"
	"sync"

	"github.com/drgolem/audiostream/internal/sink"
	"github.com/drgolem/audiostream/pkg/audioframe"
	"github.com/drgolem/audiostream/pkg/audioframeringbuffer"
)

// Sink is a test double for sink.AudioSink. It is safe for concurrent use
// by the control goroutine and the producer goroutine, matching the real
// contract.
type Sink struct {
	mu sync.Mutex

	n       int
	buffers []audioframe.AudioFrame

	inflight  *audioframeringbuffer.AudioFrameRingBuffer
	ids       []sink.BufferID // FIFO, parallel to the frames held in inflight
	processed []sink.BufferID

	state         sink.State
	volume, pitch float32
	secondsOffset float64
}

// New creates a fake sink with a fixed ring of n buffers.
func New(n int) *Sink {
	return &Sink{
		n:        n,
		buffers:  make([]audioframe.AudioFrame, n),
		inflight: audioframeringbuffer.New(uint64(n)),
		volume:   1.0,
		pitch:    1.0,
	}
}

func (s *Sink) SetVolume(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

func (s *Sink) SetPitch(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pitch = v
}

func (s *Sink) Volume() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Sink) Pitch() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pitch
}

func (s *Sink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = sink.StatePlaying
	return nil
}

func (s *Sink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = sink.StatePaused
	return nil
}

func (s *Sink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = sink.StateStopped
	s.inflight.Reset()
	s.ids = nil
	s.processed = nil
	return nil
}

func (s *Sink) GetState() sink.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState lets a test force a transient sink state (e.g. simulate an
// underrun by flipping to StateStopped while buffers are mid-refill).
func (s *Sink) SetState(st sink.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *Sink) SecondsOffset() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secondsOffset
}

func (s *Sink) SetSecondsOffset(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secondsOffset = v
}

func (s *Sink) BufferCount() int {
	return s.n
}

func (s *Sink) SetBufferData(id sink.BufferID, pcm []byte, bits, channels, sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) < 0 || int(id) >= len(s.buffers) {
		return fmt.Errorf("memsink: invalid buffer id %d", id)
	}
	s.buffers[id] = audioframe.AudioFrame{
		Format: audioframe.FrameFormat{
			SampleRate:    uint32(sampleRate),
			Channels:      uint8(channels),
			BitsPerSample: uint8(bits),
		},
		Audio: pcm,
	}
	return nil
}

// QueueBuffer hands the current contents of buffer id to the simulated
// mixer. The frame is deep-copied into the inflight ring, matching the
// hardware invariant that the producer may reuse the id immediately.
func (s *Sink) QueueBuffer(id sink.BufferID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) < 0 || int(id) >= len(s.buffers) {
		return fmt.Errorf("memsink: invalid buffer id %d", id)
	}
	if _, err := s.inflight.Write([]audioframe.AudioFrame{s.buffers[id]}); err != nil {
		return err
	}
	s.ids = append(s.ids, id)
	return nil
}

// Advance simulates the hardware mixer finishing count queued buffers,
// moving them from "in flight" to "processed". Tests call this to emulate
// the mixer draining the queue at its own pace.
func (s *Sink) Advance(count int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames, err := s.inflight.Read(count)
	if err != nil {
		return 0
	}
	for range frames {
		s.processed = append(s.processed, s.ids[0])
		s.ids = s.ids[1:]
	}
	return len(frames)
}

func (s *Sink) GetProcBufferCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

func (s *Sink) UnqueueBuffer() (sink.BufferID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.processed) == 0 {
		return 0, false
	}
	id := s.processed[0]
	s.processed = s.processed[1:]
	return id, true
}

func (s *Sink) ClearQueue() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight.Reset()
	s.ids = nil
	s.processed = nil
	return nil
}

func (s *Sink) DetachBuffer() error {
	return nil
}

func (s *Sink) Bits(id sink.BufferID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) < 0 || int(id) >= len(s.buffers) {
		return 0
	}
	return int(s.buffers[id].Format.BitsPerSample)
}

func (s *Sink) Size(id sink.BufferID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) < 0 || int(id) >= len(s.buffers) {
		return 0
	}
	return len(s.buffers[id].Audio)
}

func (s *Sink) Channels(id sink.BufferID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) < 0 || int(id) >= len(s.buffers) {
		return 0
	}
	return int(s.buffers[id].Format.Channels)
}

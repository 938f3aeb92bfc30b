// Package portaudiosink adapts the teacher's PortAudio blocking-stream
// binding (pkg/audioplayer) from a push-callback consumer into the
// queue/unqueue AudioSink contract the stream driver expects. Buffers are
// staged in the teacher's byte ring buffer and drained to the device by a
// background goroutine that stands in for the hardware mixer.
package portaudiosink

import (
	"fmt"
	"sync"
	"time"

	"github.com/drgolem/audiostream/internal/sink"
	"github.com/drgolem/audiostream/pkg/ringbuffer"

	"github.com/drgolem/go-portaudio/portaudio"
)

type bufferMeta struct {
	pcm      []byte
	bits     int
	channels int
	rate     int
}

// Sink drives a single PortAudio output stream. N buffer slots are fixed at
// construction; QueueBuffer stages a slot's PCM into the drain ring and the
// background writer goroutine moves it to the device, after which it
// becomes visible through GetProcBufferCount/UnqueueBuffer.
type Sink struct {
	mu      sync.Mutex
	n       int
	buffers []bufferMeta

	deviceIndex     int
	framesPerBuffer int

	stream *portaudio.PaStream
	ring   *ringbuffer.RingBuffer

	state         sink.State
	volume, pitch float32
	secondsOffset float64

	ids       []sink.BufferID
	processed []sink.BufferID

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// New creates a PortAudio-backed sink with n buffer slots. The stream is
// not opened until the first successful SetBufferData establishes a
// format, mirroring how the teacher's Player lazily initializes its
// stream from the first decoded format.
func New(deviceIndex, framesPerBuffer, n int) *Sink {
	return &Sink{
		n:               n,
		buffers:         make([]bufferMeta, n),
		deviceIndex:     deviceIndex,
		framesPerBuffer: framesPerBuffer,
		ring:            ringbuffer.New(uint64(framesPerBuffer) * 64),
		volume:          1.0,
		pitch:           1.0,
	}
}

func (s *Sink) BufferCount() int { return s.n }

func (s *Sink) SetBufferData(id sink.BufferID, pcm []byte, bits, channels, sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) < 0 || int(id) >= len(s.buffers) {
		return fmt.Errorf("portaudiosink: invalid buffer id %d", id)
	}
	s.buffers[id] = bufferMeta{pcm: pcm, bits: bits, channels: channels, rate: sampleRate}
	if s.stream == nil {
		if err := s.openStreamLocked(bits, channels, sampleRate); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) openStreamLocked(bits, channels, sampleRate int) error {
	var format portaudio.PaSampleFormat
	switch bits {
	case 16:
		format = portaudio.SampleFmtInt16
	case 24:
		format = portaudio.SampleFmtInt24
	case 32:
		format = portaudio.SampleFmtInt32
	default:
		return fmt.Errorf("portaudiosink: unsupported bit depth %d", bits)
	}

	stream, err := portaudio.NewStream(portaudio.PaStreamParameters{
		DeviceIndex:  s.deviceIndex,
		ChannelCount: channels,
		SampleFormat: format,
	}, float64(sampleRate))
	if err != nil {
		return fmt.Errorf("portaudiosink: create stream: %w", err)
	}
	if err := stream.Open(s.framesPerBuffer); err != nil {
		return fmt.Errorf("portaudiosink: open stream: %w", err)
	}

	s.stream = stream
	s.stopChan = make(chan struct{})
	s.wg.Add(1)
	go s.drain(bits, channels)
	return nil
}

// drain stands in for the hardware mixer: it pulls staged PCM off the ring
// and writes it to the device, only while the sink reports PLAYING.
func (s *Sink) drain(bits, channels int) {
	defer s.wg.Done()
	bytesPerFrame := channels * (bits / 8)
	buf := make([]byte, s.framesPerBuffer*bytesPerFrame)

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		s.mu.Lock()
		playing := s.state == sink.StatePlaying
		s.mu.Unlock()
		if !playing {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		n, err := s.ring.Read(buf)
		if err != nil || n == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		frames := n / bytesPerFrame
		if frames == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		if err := s.stream.Write(frames, buf[:frames*bytesPerFrame]); err != nil {
			return
		}

		s.mu.Lock()
		if len(s.ids) > 0 {
			s.processed = append(s.processed, s.ids[0])
			s.ids = s.ids[1:]
		}
		s.mu.Unlock()
	}
}

func (s *Sink) QueueBuffer(id sink.BufferID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) < 0 || int(id) >= len(s.buffers) {
		return fmt.Errorf("portaudiosink: invalid buffer id %d", id)
	}
	if _, err := s.ring.Write(s.buffers[id].pcm); err != nil {
		return fmt.Errorf("portaudiosink: stage buffer %d: %w", id, err)
	}
	s.ids = append(s.ids, id)
	return nil
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

func (s *Sink) GetProcBufferCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

func (s *Sink) ClearQueue() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring.Reset()
	s.ids = nil
	s.processed = nil
	return nil
}

func (s *Sink) DetachBuffer() error { return nil }

func (s *Sink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		if err := s.stream.StartStream(); err != nil {
			return err
		}
	}
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
	stream := s.stream
	stopChan := s.stopChan
	s.state = sink.StateStopped
	s.mu.Unlock()

	if stopChan != nil {
		close(stopChan)
	}
	s.wg.Wait()

	if stream != nil {
		if err := stream.StopStream(); err != nil {
			return err
		}
		if err := stream.Close(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.stream = nil
	s.stopChan = nil
	s.ids = nil
	s.processed = nil
	s.ring.Reset()
	s.mu.Unlock()
	return nil
}

func (s *Sink) GetState() sink.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sink) SecondsOffset() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secondsOffset
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

func (s *Sink) Bits(id sink.BufferID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) < 0 || int(id) >= len(s.buffers) {
		return 0
	}
	return s.buffers[id].bits
}

func (s *Sink) Size(id sink.BufferID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) < 0 || int(id) >= len(s.buffers) {
		return 0
	}
	return len(s.buffers[id].pcm)
}

func (s *Sink) Channels(id sink.BufferID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) < 0 || int(id) >= len(s.buffers) {
		return 0
	}
	return s.buffers[id].channels
}

// Package packetsource implements the DataSource contract over an external
// packet feed rather than a container file: a provider hands over
// already-decoded PCM chunks on demand, adapted from the teacher's
// packet-provider decoder shape (originally built for network audio
// sources) so a Stream can play a live or synthetic feed the same way it
// plays a file.
package packetsource

import (
	"context"
	"fmt"
	"sync"

	"github.com/drgolem/audiostream/internal/sink"
	"github.com/drgolem/audiostream/internal/source"
)

// defaultRequestSamples is the chunk size requested from the provider on
// each FillBuffer call.
const defaultRequestSamples = 4096

// Format describes a packet's PCM layout.
type Format struct {
	SampleRate     int
	Channels       int
	BytesPerSample int
}

// Packet is one chunk of already-decoded PCM handed to a Source.
type Packet struct {
	Audio        []byte
	SamplesCount int
	Format       Format
}

// Provider supplies packets on demand. A live network feed or a synthetic
// signal generator implements this instead of a container decoder.
type Provider interface {
	// ReadPacket returns up to samples frames of audio. A packet with
	// SamplesCount == 0 signals end of feed.
	ReadPacket(ctx context.Context, samples int) (*Packet, error)
}

// Source adapts a Provider to the DataSource contract. It never reports
// WrapAround: a packet feed has no embedded loop points, so looping falls
// back to whatever the provider itself chooses to do when it runs dry.
type Source struct {
	sk       sink.AudioSink
	provider Provider
	ctx      context.Context

	mu     sync.RWMutex
	format Format
}

// New creates a Source pulling packets from provider until the feed ends.
func New(ctx context.Context, sk sink.AudioSink, provider Provider, initial Format) *Source {
	return &Source{sk: sk, provider: provider, ctx: ctx, format: initial}
}

// FillBuffer requests the next packet and attaches it to the sink buffer id.
func (s *Source) FillBuffer(id sink.BufferID) (source.Status, error) {
	pkt, err := s.provider.ReadPacket(s.ctx, defaultRequestSamples)
	if err != nil {
		return source.StatusError, fmt.Errorf("packetsource: read packet: %w", err)
	}

	if pkt.SamplesCount == 0 {
		if err := s.sk.SetBufferData(id, nil, s.currentBits(), s.currentChannels(), s.currentRate()); err != nil {
			return source.StatusError, err
		}
		return source.StatusEndOfStream, nil
	}

	s.mu.Lock()
	s.format = pkt.Format
	s.mu.Unlock()

	bytesToCopy := pkt.SamplesCount * pkt.Format.Channels * pkt.Format.BytesPerSample
	pcm := make([]byte, bytesToCopy)
	copy(pcm, pkt.Audio[:bytesToCopy])

	if err := s.sk.SetBufferData(id, pcm, pkt.Format.BytesPerSample*8, pkt.Format.Channels, pkt.Format.SampleRate); err != nil {
		return source.StatusError, err
	}
	return source.StatusNoError, nil
}

// SeekToOffset is a no-op: a live feed has no timeline to seek within.
func (s *Source) SeekToOffset(seconds float64) error {
	return nil
}

func (s *Source) SampleRate() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.format.SampleRate
}

// LoopStartFrames is always 0: a packet feed carries no loop metadata.
func (s *Source) LoopStartFrames() int64 {
	return 0
}

// SetPitch always reports false: the provider does not resample internally.
func (s *Source) SetPitch(f float32) bool {
	return false
}

func (s *Source) Close() error {
	return nil
}

func (s *Source) currentBits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.format.BytesPerSample * 8
}

func (s *Source) currentChannels() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.format.Channels
}

func (s *Source) currentRate() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.format.SampleRate
}

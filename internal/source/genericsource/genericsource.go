// Package genericsource implements the DataSource contract over the
// teacher's existing mp3/flac/wav decoders, selected by extension hint.
// None of those decoders expose native seeking, so looping and offset
// seeking are both implemented by reopening the underlying file and, for a
// nonzero offset, decoding-and-discarding frames until the target is
// reached — the same "no native seek table" shape the teacher's own
// cmd/transform.go drains a decoder with.
package genericsource

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/drgolem/audiostream/internal/sink"
	"github.com/drgolem/audiostream/internal/source"
	"github.com/drgolem/audiostream/pkg/decoders"
	"github.com/drgolem/audiostream/pkg/types"
)

// defaultBufferFrames is the fixed per-buffer decode chunk size the spec's
// SourceOpener parameterizes the generic DataSource with.
const defaultBufferFrames = 4096

// Source wraps one of the extension-dispatched decoders and fills a sink's
// buffer ring chunk by chunk.
type Source struct {
	sk   sink.AudioSink
	path string
	loop bool

	decoder        types.AudioDecoder
	rate, channels int
	bits           int
	bytesPerSample int
	scratch        []byte
}

// New opens path through the existing decoder factory (.mp3/.flac/.fla/
// .wav). r is the stream the opener used to sniff the format signature;
// since every wrapped decoder reopens by path itself, r is simply closed
// here rather than threaded further.
func New(path string, r io.Closer, sk sink.AudioSink, loop bool) (*Source, error) {
	if r != nil {
		r.Close()
	}

	decoder, err := decoders.NewDecoder(path)
	if err != nil {
		return nil, err
	}

	rate, channels, bits := decoder.GetFormat()
	bytesPerSample := bits / 8

	return &Source{
		sk:             sk,
		path:           path,
		loop:           loop,
		decoder:        decoder,
		rate:           rate,
		channels:       channels,
		bits:           bits,
		bytesPerSample: bytesPerSample,
		scratch:        make([]byte, defaultBufferFrames*channels*bytesPerSample),
	}, nil
}

func isEndOfStream(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "eof") || strings.Contains(msg, "done")
}

// FillBuffer decodes the next chunk and attaches it to the sink buffer id.
func (s *Source) FillBuffer(id sink.BufferID) (source.Status, error) {
	n, err := s.decoder.DecodeSamples(defaultBufferFrames, s.scratch)
	if err != nil && !isEndOfStream(err) {
		return source.StatusError, fmt.Errorf("genericsource: decode %s: %w", s.path, err)
	}

	atEnd := n == 0 || n < defaultBufferFrames || isEndOfStream(err)

	var pcm []byte
	if n > 0 {
		bytesDecoded := n * s.channels * s.bytesPerSample
		pcm = make([]byte, bytesDecoded)
		copy(pcm, s.scratch[:bytesDecoded])
	}
	if setErr := s.sk.SetBufferData(id, pcm, s.bits, s.channels, s.rate); setErr != nil {
		return source.StatusError, setErr
	}

	if !atEnd {
		return source.StatusNoError, nil
	}

	if s.loop {
		if err := s.reopen(); err != nil {
			return source.StatusError, err
		}
		return source.StatusWrapAround, nil
	}
	return source.StatusEndOfStream, nil
}

func (s *Source) reopen() error {
	s.decoder.Close()
	decoder, err := decoders.NewDecoder(s.path)
	if err != nil {
		return fmt.Errorf("genericsource: reopen %s: %w", s.path, err)
	}
	s.decoder = decoder
	return nil
}

// SeekToOffset reopens the file and discards frames up to the target
// offset, since none of the wrapped decoders support native seeking.
func (s *Source) SeekToOffset(seconds float64) error {
	if err := s.reopen(); err != nil {
		return err
	}
	if seconds <= 0 || s.rate == 0 {
		return nil
	}

	target := int64(seconds * float64(s.rate))
	discard := make([]byte, defaultBufferFrames*s.channels*s.bytesPerSample)
	var skipped int64
	for skipped < target {
		want := defaultBufferFrames
		if remaining := target - skipped; remaining < int64(want) {
			want = int(remaining)
		}
		if want <= 0 {
			break
		}
		n, err := s.decoder.DecodeSamples(want, discard)
		skipped += int64(n)
		if n == 0 || err != nil {
			break
		}
	}
	return nil
}

func (s *Source) SampleRate() int {
	return s.rate
}

// LoopStartFrames is always 0: none of the wrapped container formats carry
// embedded loop-point metadata, so a loop restarts at the beginning.
func (s *Source) LoopStartFrames() int64 {
	return 0
}

// SetPitch always reports false: none of the wrapped decoders resample
// internally, so the mixer must apply any pitch change.
func (s *Source) SetPitch(f float32) bool {
	return false
}

func (s *Source) Close() error {
	return s.decoder.Close()
}

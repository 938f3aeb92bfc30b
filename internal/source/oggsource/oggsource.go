// Package oggsource implements the DataSource contract for Ogg/Vorbis
// streams (the "OggS" signature branch of the SourceOpener), decoding with
// github.com/jfreymuth/oggvorbis and converting its float32 PCM to 16-bit
// integer samples for the sink.
package oggsource

import (
	"errors"
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/drgolem/audiostream/internal/sink"
	"github.com/drgolem/audiostream/internal/source"
)

// defaultBufferFrames is the fixed per-buffer decode chunk size.
const defaultBufferFrames = 4096

// Source decodes one Ogg/Vorbis stream. Since the underlying decoder only
// reads forward, looping and seeking both rewind the backing stream and
// build a fresh *oggvorbis.Reader.
type Source struct {
	sk   sink.AudioSink
	r    io.ReadSeekCloser
	loop bool

	reader         *oggvorbis.Reader
	rate, channels int
	scratch        []float32
}

func New(r io.ReadSeekCloser, sk sink.AudioSink, loop bool) (*Source, error) {
	reader, err := oggvorbis.NewReader(r)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("oggsource: open: %w", err)
	}

	s := &Source{
		sk:       sk,
		r:        r,
		loop:     loop,
		reader:   reader,
		rate:     reader.SampleRate(),
		channels: reader.Channels(),
	}
	s.scratch = make([]float32, defaultBufferFrames*s.channels)
	return s, nil
}

func floatToInt16(f float32) int16 {
	v := f * 32767
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(v)
}

func (s *Source) FillBuffer(id sink.BufferID) (source.Status, error) {
	n, err := s.reader.Read(s.scratch)
	if err != nil && !errors.Is(err, io.EOF) {
		return source.StatusError, fmt.Errorf("oggsource: decode: %w", err)
	}
	atEnd := errors.Is(err, io.EOF) || n == 0

	frames := n / s.channels
	pcm := make([]byte, frames*s.channels*2)
	for i := 0; i < frames*s.channels; i++ {
		v := floatToInt16(s.scratch[i])
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	if setErr := s.sk.SetBufferData(id, pcm, 16, s.channels, s.rate); setErr != nil {
		return source.StatusError, setErr
	}

	if !atEnd {
		return source.StatusNoError, nil
	}
	if s.loop {
		if err := s.restart(); err != nil {
			return source.StatusError, err
		}
		return source.StatusWrapAround, nil
	}
	return source.StatusEndOfStream, nil
}

func (s *Source) restart() error {
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("oggsource: loop seek: %w", err)
	}
	reader, err := oggvorbis.NewReader(s.r)
	if err != nil {
		return fmt.Errorf("oggsource: loop reopen: %w", err)
	}
	s.reader = reader
	return nil
}

// SeekToOffset rewinds and discards frames until the target offset, since
// the Vorbis reader only decodes forward.
func (s *Source) SeekToOffset(seconds float64) error {
	if err := s.restart(); err != nil {
		return err
	}
	if seconds <= 0 || s.rate == 0 {
		return nil
	}

	target := int64(seconds * float64(s.rate))
	scratch := make([]float32, defaultBufferFrames*s.channels)
	var skipped int64
	for skipped < target {
		n, err := s.reader.Read(scratch)
		skipped += int64(n / s.channels)
		if n == 0 || err != nil {
			break
		}
	}
	return nil
}

func (s *Source) SampleRate() int {
	return s.rate
}

// LoopStartFrames is always 0: Vorbis comment headers in this tree are not
// parsed for custom loop-point metadata, so a loop restarts at the
// beginning of the stream.
func (s *Source) LoopStartFrames() int64 {
	return 0
}

// SetPitch always reports false: the Vorbis decoder does not resample, so
// the mixer must apply any pitch change.
func (s *Source) SetPitch(f float32) bool {
	return false
}

func (s *Source) Close() error {
	return s.r.Close()
}

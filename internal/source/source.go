// Package source defines the abstract decoded-audio contract a Stream
// drives (DataSource in the design) and the OpenIOError its openers return.
// The format-sniffing opener that picks a concrete implementation lives in
// internal/opener. Concrete sources live in the genericsource, oggsource,
// midisource, and packetsource subpackages.
package source

import (
	"fmt"

	"github.com/drgolem/audiostream/internal/sink"
)

// Status reports the outcome of a single FillBuffer call.
type Status int

const (
	StatusNoError Status = iota
	StatusEndOfStream
	StatusWrapAround
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusNoError:
		return "NoError"
	case StatusEndOfStream:
		return "EndOfStream"
	case StatusWrapAround:
		return "WrapAround"
	case StatusError:
		return "Error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// DataSource decodes audio incrementally into a sink's buffer ring.
type DataSource interface {
	// FillBuffer decodes the next chunk and attaches it to the sink buffer
	// identified by id via sink.SetBufferData.
	FillBuffer(id sink.BufferID) (Status, error)
	SeekToOffset(seconds float64) error
	SampleRate() int
	LoopStartFrames() int64
	// SetPitch reports true if the source absorbed the pitch change
	// itself (so the sink should be left at 1.0), false if the mixer
	// must apply it.
	SetPitch(f float32) bool
	Close() error
}

// OpenIOError distinguishes an I/O failure while establishing a source
// (propagated to the caller) from a decoder-setup failure (logged and
// swallowed, per the spec's DecoderSetupError handling).
type OpenIOError struct {
	Err error
}

func (e *OpenIOError) Error() string {
	return fmt.Sprintf("source: I/O error opening stream: %v", e.Err)
}

func (e *OpenIOError) Unwrap() error {
	return e.Err
}

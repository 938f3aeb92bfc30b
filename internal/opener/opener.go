// Package opener implements the SourceOpener: it sniffs a stream's first
// four bytes and dispatches to the concrete DataSource that understands the
// format, without the source package needing to import any of its own
// concrete implementations (which import source for its types).
package opener

import (
	"io"

	"github.com/drgolem/audiostream/internal/sink"
	"github.com/drgolem/audiostream/internal/source"
	"github.com/drgolem/audiostream/internal/source/genericsource"
	"github.com/drgolem/audiostream/internal/source/midisource"
	"github.com/drgolem/audiostream/internal/source/oggsource"
)

var (
	oggSignature = [4]byte{'O', 'g', 'g', 'S'}
	midSignature = [4]byte{'M', 'T', 'h', 'd'}
)

// Opener detects a DataSource's format from its first 4 bytes and
// instantiates the matching concrete implementation. It never double-closes
// the stream it is handed: on the success path the chosen constructor
// consumes it, on the failure path the constructor (or the opener itself,
// for a header-read failure) closes it.
type Opener struct {
	// midiSynthAvailable reports whether a MIDI synthesizer backend is
	// ready. Overridable for tests; defaults to midisource.Available.
	midiSynthAvailable func() bool
}

// New creates an Opener wired to the real MIDI-availability check.
func New() *Opener {
	return &Opener{midiSynthAvailable: midisource.Available}
}

// Open sniffs path's content (via r) and returns the DataSource it selects.
// path is passed through for decoders that can only open by filename (none
// of the wrapped mp3/flac/wav decoders stream from an arbitrary io.Reader).
func (o *Opener) Open(path string, r io.ReadSeekCloser, sk sink.AudioSink, loop bool) (source.DataSource, error) {
	var sig [4]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		r.Close()
		return nil, &source.OpenIOError{Err: err}
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		r.Close()
		return nil, &source.OpenIOError{Err: err}
	}

	switch sig {
	case oggSignature:
		return oggsource.New(r, sk, loop)
	case midSignature:
		if o.midiSynthAvailable() {
			return midisource.New(r, sk, loop)
		}
		return genericsource.New(path, r, sk, loop)
	default:
		return genericsource.New(path, r, sk, loop)
	}
}

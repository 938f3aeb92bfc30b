// Package midisource is the MIDI branch of the SourceOpener's signature
// table ("MThd"). No MIDI synthesizer backend is linked into this tree —
// none of the retrieved dependency graph carries one — so Available always
// reports false and the opener falls through to the generic decoder, per
// §4.2's "otherwise fall through" rule. New is kept so the branch compiles
// and documents the contract a future synth backend would need to satisfy.
package midisource

import (
	"fmt"
	"io"
	"sync"

	"github.com/drgolem/audiostream/internal/sink"
	"github.com/drgolem/audiostream/internal/source"
)

var (
	initOnce    sync.Once
	synthLinked = false // flipped by a future build tag once a synth backend exists
)

// Available reports whether process-wide synthesizer state has been
// initialized and a backend is ready to decode MIDI. It is the gate the
// SourceOpener checks before attempting the MIDI branch.
func Available() bool {
	initOnce.Do(func() {
		// No synthesizer backend is compiled into this tree.
	})
	return synthLinked
}

// New always fails: it exists only so a future synthesizer backend has a
// concrete type to return from the SourceOpener's MIDI branch.
func New(r io.ReadSeekCloser, sk sink.AudioSink, loop bool) (source.DataSource, error) {
	if r != nil {
		r.Close()
	}
	return nil, fmt.Errorf("midisource: no synthesizer backend linked")
}

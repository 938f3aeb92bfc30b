// Package sink defines the abstract hardware/mixer binding a Stream drives.
// A concrete AudioSink owns one mixer source and a fixed ring of N buffers;
// the stream driver queues decoded buffers onto it and drains its processed
// count to recycle them. Two implementations live alongside this contract:
// portaudiosink (real hardware, adapted from the teacher's PortAudio
// binding) and memsink (an in-memory fake used by the stream test suite).
package sink

import "fmt"

// BufferID identifies one of a sink's fixed N buffer slots.
type BufferID int

// State mirrors the mixer source states an OpenAL-style binding reports.
type State int

const (
	StateInitial State = iota
	StatePlaying
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// AudioSink owns one mixer source handle and N buffer handles. It is
// mutated by both the control goroutine (pause/play/stop/volume/pitch,
// clearQueue) and the producer goroutine (queueBuffer/unqueueBuffer/play
// for underrun recovery); see the stream package for the synchronization
// discipline that makes this safe.
type AudioSink interface {
	SetVolume(v float32)
	SetPitch(v float32)

	Play() error
	Pause() error
	Stop() error
	GetState() State

	// SecondsOffset reports the small residual offset the hardware has
	// already consumed beyond the last fully-accounted buffer.
	SecondsOffset() float64

	// BufferCount returns N, the fixed size of the buffer ring.
	BufferCount() int

	// SetBufferData attaches freshly decoded PCM to a buffer slot. It must
	// be called before that slot is queued.
	SetBufferData(id BufferID, pcm []byte, bits, channels, sampleRate int) error

	QueueBuffer(id BufferID) error
	// UnqueueBuffer pops the oldest processed buffer. ok is false if none
	// is available yet (the "null handle" case in the spec).
	UnqueueBuffer() (id BufferID, ok bool)
	GetProcBufferCount() int
	ClearQueue() error
	DetachBuffer() error

	Bits(id BufferID) int
	Size(id BufferID) int
	Channels(id BufferID) int
}

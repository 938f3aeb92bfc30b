// Package config holds the process-wide tunables the stream driver and its
// sinks are parameterized by: ring size, producer poll interval, and the
// default output device.
package config

import "time"

// Config groups the knobs a Stream and its AudioSink are built with.
type Config struct {
	// BufferCount is N, the fixed size of the sink's buffer ring.
	BufferCount int

	// AudioSleep is the producer's refill-loop poll interval.
	AudioSleep time.Duration

	// DeviceIndex selects the PortAudio output device; -1 means the
	// host's default device.
	DeviceIndex int

	// FramesPerBuffer is the per-chunk decode size a DataSource decodes
	// and a sink buffer is sized for.
	FramesPerBuffer int
}

// Default returns the tunables the teacher's own player used: a 3-buffer
// ring and a 10ms poll interval.
func Default() Config {
	return Config{
		BufferCount:     3,
		AudioSleep:      10 * time.Millisecond,
		DeviceIndex:     -1,
		FramesPerBuffer: 4096,
	}
}

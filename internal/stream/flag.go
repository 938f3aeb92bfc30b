package stream

import "sync/atomic"

// Flag is a set-once-or-clearable boolean safe for concurrent read and
// write. It carries no ordering guarantee over any other data; it exists so
// the control goroutine can tell the producer goroutine to exit and so the
// producer can report one-time events back without a mutex.
type Flag struct {
	v atomic.Bool
}

func (f *Flag) Set() {
	f.v.Store(true)
}

func (f *Flag) Clear() {
	f.v.Store(false)
}

func (f *Flag) IsSet() bool {
	return f.v.Load()
}

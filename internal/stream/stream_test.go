package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/drgolem/audiostream/internal/config"
	"github.com/drgolem/audiostream/internal/sink"
	"github.com/drgolem/audiostream/internal/sink/memsink"
	"github.com/drgolem/audiostream/internal/source"
	"github.com/drgolem/audiostream/internal/vfs"
)

// fakeSource is a synthetic DataSource that returns a scripted sequence of
// fill statuses and writes real (silent) PCM of a fixed frame count to the
// sink on every fill, so procFrames accounting exercises the same path a
// real decoder would drive.
type fakeSource struct {
	sk            sink.AudioSink
	rate          int
	channels      int
	bits          int
	framesPerFill int
	loopStart     int64
	absorbs       bool

	statuses  []source.Status
	fillCount int

	seeks  []float64
	closed bool
}

func (f *fakeSource) FillBuffer(id sink.BufferID) (source.Status, error) {
	idx := f.fillCount
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.fillCount++

	bytesPerFrame := f.channels * (f.bits / 8)
	pcm := make([]byte, f.framesPerFill*bytesPerFrame)
	if err := f.sk.SetBufferData(id, pcm, f.bits, f.channels, f.rate); err != nil {
		return source.StatusError, err
	}
	return f.statuses[idx], nil
}

func (f *fakeSource) SeekToOffset(seconds float64) error {
	f.seeks = append(f.seeks, seconds)
	return nil
}

func (f *fakeSource) SampleRate() int         { return f.rate }
func (f *fakeSource) LoopStartFrames() int64  { return f.loopStart }
func (f *fakeSource) SetPitch(v float32) bool { return f.absorbs }
func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func newFakeSource(statuses []source.Status) *fakeSource {
	return &fakeSource{
		rate:          44100,
		channels:      2,
		bits:          16,
		framesPerFill: 1000,
		statuses:      statuses,
	}
}

// stubReadSeekCloser adapts a bytes.Reader to io.ReadSeekCloser.
type stubReadSeekCloser struct {
	*bytes.Reader
}

func (stubReadSeekCloser) Close() error { return nil }

// fakeFS resolves exactly one name to a readable stub stream; every other
// name reports vfs.ErrNotFound.
type fakeFS struct {
	name string
}

func (f *fakeFS) Open(name string) (io.ReadSeekCloser, error) {
	if name != f.name {
		return nil, vfs.ErrNotFound
	}
	return stubReadSeekCloser{bytes.NewReader([]byte("stub"))}, nil
}

// fakeOpener hands back a preconfigured DataSource regardless of the
// sniffed bytes, or a configured error. It wires the real sink into the
// fake source, matching what a real SourceOpener does for its concrete
// DataSource implementations.
type fakeOpener struct {
	src *fakeSource
	err error
}

func (o *fakeOpener) Open(path string, r io.ReadSeekCloser, sk sink.AudioSink, loop bool) (source.DataSource, error) {
	r.Close()
	if o.err != nil {
		return nil, o.err
	}
	o.src.sk = sk
	return o.src, nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.AudioSleep = 2 * time.Millisecond
	cfg.BufferCount = 3
	return cfg
}

func noErrorStatuses(n int) []source.Status {
	st := make([]source.Status, n)
	for i := range st {
		st[i] = source.StatusNoError
	}
	return st
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met within timeout")
	}
}

func TestOpenSucceedsAndLeavesStopped(t *testing.T) {
	fs := &fakeFS{name: "song.ogg"}
	op := &fakeOpener{src: newFakeSource(noErrorStatuses(16))}
	ms := memsink.New(3)

	st := New(fs, op, ms, "test", false, testConfig())
	if err := st.Open("song.ogg"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := st.QueryState(); got != Stopped {
		t.Fatalf("state = %v, want Stopped", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	fs := &fakeFS{name: "song.ogg"}
	op := &fakeOpener{src: newFakeSource(noErrorStatuses(16))}
	ms := memsink.New(3)

	st := New(fs, op, ms, "test", false, testConfig())
	_ = st.Open("song.ogg")
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if got := st.QueryState(); got != Closed {
		t.Fatalf("state = %v, want Closed", got)
	}
}

func TestOpenMissingFilePreservesState(t *testing.T) {
	fs := &fakeFS{name: "song.ogg"}
	op := &fakeOpener{src: newFakeSource(noErrorStatuses(64))}
	ms := memsink.New(3)

	st := New(fs, op, ms, "test", false, testConfig())
	if err := st.Open("song.ogg"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	st.Play(0)
	waitFor(t, time.Second, func() bool { return ms.GetState() == sink.StatePlaying })

	err := st.Open("missing.ogg")
	if err == nil {
		t.Fatal("expected a not-found error")
	}
	if !errors.Is(err, vfs.ErrNotFound) {
		t.Fatalf("expected wrapped vfs.ErrNotFound, got %v", err)
	}
	if got := st.QueryState(); got != Playing {
		t.Fatalf("state = %v after failed open, want preserved Playing", got)
	}
	st.Close()
}

func TestPlayAdvancesOffsetFromStartOffset(t *testing.T) {
	fs := &fakeFS{name: "song.ogg"}
	op := &fakeOpener{src: newFakeSource(noErrorStatuses(64))}
	ms := memsink.New(3)

	st := New(fs, op, ms, "test", false, testConfig())
	_ = st.Open("song.ogg")
	st.Play(2.5)

	if got := st.QueryOffset(); got < 2.5 {
		t.Fatalf("QueryOffset() = %v immediately after Play(2.5), want >= 2.5", got)
	}

	first := st.QueryOffset()
	waitFor(t, time.Second, func() bool { return ms.Advance(1) > 0 })
	waitFor(t, time.Second, func() bool { return st.QueryOffset() > first })
	second := st.QueryOffset()
	if second < first {
		t.Fatalf("offset decreased: %v -> %v", first, second)
	}
	st.Close()
}

func TestPreemptivePauseBlocksPlaybackUntilNextPlay(t *testing.T) {
	fs := &fakeFS{name: "song.ogg"}
	op := &fakeOpener{src: newFakeSource(noErrorStatuses(64))}
	ms := memsink.New(3)

	st := New(fs, op, ms, "test", false, testConfig())
	_ = st.Open("song.ogg")

	st.Play(0)
	st.Pause()

	if got := st.QueryState(); got != Paused {
		t.Fatalf("state = %v, want Paused", got)
	}
	// Give the producer a moment to run its initial resumeStream call; the
	// preemptive pause must have suppressed it.
	time.Sleep(20 * time.Millisecond)
	if ms.GetState() == sink.StatePlaying {
		t.Fatal("sink reports PLAYING despite a pause issued before playback started")
	}

	st.Play(0)
	waitFor(t, time.Second, func() bool { return ms.GetState() == sink.StatePlaying })
	st.Close()
}

func TestUnderrunRecoveryResumesSink(t *testing.T) {
	fs := &fakeFS{name: "song.ogg"}
	op := &fakeOpener{src: newFakeSource(noErrorStatuses(256))}
	ms := memsink.New(3)

	st := New(fs, op, ms, "test", false, testConfig())
	_ = st.Open("song.ogg")
	st.Play(0)
	waitFor(t, time.Second, func() bool { return ms.GetState() == sink.StatePlaying })

	// Simulate the mixer having drained everything and stopped, as if by
	// underrun, then let the producer's next refill notice and resume it.
	ms.SetState(sink.StateStopped)
	ms.Advance(1)

	waitFor(t, time.Second, func() bool { return ms.GetState() == sink.StatePlaying })
	st.Close()
}

func TestWrapAroundResetsProcFramesAtLoopStart(t *testing.T) {
	fs := &fakeFS{name: "song.ogg"}
	statuses := noErrorStatuses(20)
	statuses[3] = source.StatusWrapAround
	src := newFakeSource(statuses)
	src.loopStart = 500
	op := &fakeOpener{src: src}
	ms := memsink.New(3)

	st := New(fs, op, ms, "test", true, testConfig())
	_ = st.Open("song.ogg")
	st.Play(0)
	waitFor(t, time.Second, func() bool { return ms.GetState() == sink.StatePlaying })

	// Fills 0,1,2 are queued during Phase 1. The first three unqueues each
	// accumulate one fill's worth of frames (1000) via normal accounting;
	// refilling buffer 0 (the first one freed) is the 4th fill overall and
	// is scripted as WrapAround, so the next time THAT buffer is unqueued,
	// procFrames must reset to loopStartFrames instead of accumulating.
	framesPerFill := float64(src.framesPerFill)
	rate := float64(src.rate)
	loopOffset := float64(src.loopStart) / rate

	for i := 1; i <= 3; i++ {
		ms.Advance(1)
		want := framesPerFill * float64(i) / rate
		waitFor(t, time.Second, func() bool { return st.QueryOffset() >= want })
	}

	ms.Advance(1)
	waitFor(t, time.Second, func() bool { return st.QueryOffset() <= loopOffset+0.01 })
	st.Close()
}

func TestDecoderErrorDuringInitialFillLeavesStatePlaying(t *testing.T) {
	// Reproduces O1: a decoder error on the very first fill never sets
	// sourceExhausted, so checkStopped can never fire.
	fs := &fakeFS{name: "song.ogg"}
	op := &fakeOpener{src: newFakeSource([]source.Status{source.StatusError})}
	ms := memsink.New(3)

	st := New(fs, op, ms, "test", false, testConfig())
	_ = st.Open("song.ogg")
	st.Play(0)

	time.Sleep(20 * time.Millisecond)
	if got := st.QueryState(); got != Playing {
		t.Fatalf("state = %v, want Playing (stuck, per O1)", got)
	}
	st.Close()
}

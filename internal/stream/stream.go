// Package stream implements the stream driver: a state machine that
// coordinates a decoder producer goroutine against a hardware-side buffer
// consumer, handles looping with seamless wrap-around, tolerates buffer
// underrun, and supports preemptive pause across startup latency.
package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/drgolem/audiostream/internal/config"
	"github.com/drgolem/audiostream/internal/sink"
	"github.com/drgolem/audiostream/internal/source"
	"github.com/drgolem/audiostream/internal/vfs"
)

// State is one of the four states a Stream can occupy.
type State int

const (
	Closed State = iota
	Stopped
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Stopped:
		return "Stopped"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Opener constructs a DataSource from an open byte stream, picking the
// concrete implementation by signature sniff. Satisfied by *opener.Opener;
// declared here (rather than imported) to keep this package from depending
// on the concrete decoder tree, matching the teacher's dependency-injected
// AudioPacketProvider pattern in pkg/decoders/stream.
type Opener interface {
	Open(path string, r io.ReadSeekCloser, sk sink.AudioSink, loop bool) (source.DataSource, error)
}

// Stream is the core state machine: one DataSource, one AudioSink, a
// control goroutine (the caller) and at most one producer goroutine.
type Stream struct {
	cfg    config.Config
	fs     vfs.FS
	opener Opener
	sink   sink.AudioSink

	// syncPoint is the "external secondary sync point" the producer
	// passes once per refill iteration; default no-op.
	syncPoint func()

	threadName string
	loopMode   bool

	mu     sync.Mutex
	state  State
	src    source.DataSource
	pitch  float32

	startOffset float64
	procFrames  int64
	lastBuf     sink.BufferID
	hasLastBuf  bool

	pauseMutex   sync.Mutex
	preemptPause bool

	threadTermReq   Flag
	streamInited    Flag
	sourceExhausted Flag
	needsRewind     Flag

	producerWG      sync.WaitGroup
	producerRunning bool
}

// New creates a Closed Stream bound to fs for file resolution, sk as its
// permanent AudioSink, and opener for format detection. loop fixes whether
// sources opened by this Stream are built in looping mode.
func New(fs vfs.FS, opener Opener, sk sink.AudioSink, threadName string, loop bool, cfg config.Config) *Stream {
	return &Stream{
		cfg:        cfg,
		fs:         fs,
		opener:     opener,
		sink:       sk,
		syncPoint:  func() {},
		threadName: threadName,
		loopMode:   loop,
		state:      Closed,
		pitch:      1.0,
	}
}

// SetSyncPoint installs the external barrier the producer passes once per
// refill iteration. Intended for test harnesses and host schedulers; nil
// restores the default no-op.
func (s *Stream) SetSyncPoint(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	s.mu.Lock()
	s.syncPoint = fn
	s.mu.Unlock()
}

// Open resolves filename via the virtual filesystem and installs the
// DataSource the SourceOpener selects for it.
func (s *Stream) Open(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.fs.Open(filename)
	if err != nil {
		if errors.Is(err, vfs.ErrNotFound) {
			// Previous stream state is preserved; re-raise.
			return fmt.Errorf("stream: open %s: %w", filename, err)
		}
		// File located but unreadable: close the prior stream, re-raise.
		s.closeLocked()
		return fmt.Errorf("stream: open %s: %w", filename, err)
	}

	newSrc, err := s.opener.Open(filename, r, s.sink, s.loopMode)
	if err != nil {
		var ioErr *source.OpenIOError
		s.closeLocked()
		if errors.As(err, &ioErr) {
			return fmt.Errorf("stream: open %s: %w", filename, err)
		}
		// Format-level DecoderSetupError: log and leave source absent.
		slog.Error("decoder setup failed", "file", filename, "thread", s.threadName, "error", err)
		return nil
	}

	s.closeLocked()
	s.src = newSrc
	s.needsRewind.Clear()
	s.state = Stopped
	slog.Info("stream opened", "file", filename, "thread", s.threadName)
	return nil
}

// OpenSource installs an already-constructed DataSource directly, bypassing
// the virtual filesystem and SourceOpener. It runs the same install
// sequence Open's success path does: close whatever stream is current,
// then install src as Stopped. Intended for sources that have no backing
// file to sniff, such as a live or synthetic packet feed.
func (s *Stream) OpenSource(src source.DataSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()
	s.src = src
	s.needsRewind.Clear()
	s.state = Stopped
	slog.Info("stream opened from source", "thread", s.threadName)
	return nil
}

// Close runs the stop protocol if playing, then destroys the source.
// Idempotent: safe to call from any state, including Closed.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *Stream) closeLocked() {
	if s.state == Playing || s.state == Paused {
		s.stopSweepLocked()
	}
	if s.src != nil {
		if err := s.src.Close(); err != nil {
			slog.Warn("error closing source", "thread", s.threadName, "error", err)
		}
		s.src = nil
	}
	s.state = Closed
}

// Play starts a new sweep from Stopped, or resumes from Paused. No-op if
// Closed, already Playing, or no source is installed.
func (s *Stream) Play(offset float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkStoppedLocked()

	if s.state == Closed || s.state == Playing || s.src == nil {
		return
	}

	if s.state == Paused {
		s.resumeStream()
		s.state = Playing
		return
	}

	// Stopped -> Playing: start a new sweep.
	s.startSweepLocked(offset)
	s.state = Playing
}

// Pause issues the pause protocol. No-op unless Playing.
func (s *Stream) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkStoppedLocked()

	if s.state != Playing {
		return
	}
	s.pauseStream()
	s.state = Paused
}

// Stop runs the stop protocol. No-op if Closed or already Stopped.
func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkStoppedLocked()

	if s.state == Closed || s.state == Stopped {
		return
	}
	s.stopSweepLocked()
	s.state = Stopped
}

// SetVolume forwards to the sink, independent of state.
func (s *Stream) SetVolume(v float32) {
	s.sink.SetVolume(v)
}

// SetPitch tells the source to absorb the pitch change if it can; otherwise
// forwards to the sink.
func (s *Stream) SetPitch(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pitch = v

	if s.src != nil && s.src.SetPitch(v) {
		s.sink.SetPitch(1.0)
		return
	}
	s.sink.SetPitch(v)
}

// QueryState runs checkStopped, then reports the current state.
func (s *Stream) QueryState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkStoppedLocked()
	return s.state
}

// QueryOffset returns the wall-clock seconds elapsed within the current
// loop iteration. 0 if Closed or no source is installed.
func (s *Stream) QueryOffset() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Closed || s.src == nil {
		return 0
	}
	rate := s.src.SampleRate()
	if rate == 0 {
		return s.sink.SecondsOffset()
	}
	return float64(s.procFrames)/float64(rate) + s.sink.SecondsOffset()
}

// checkStoppedLocked notices that the mixer has finished draining after
// end-of-stream and self-heals Playing -> Stopped. Caller must hold s.mu.
func (s *Stream) checkStoppedLocked() {
	if s.state != Playing {
		return
	}
	if !s.streamInited.IsSet() {
		return
	}
	if !s.sourceExhausted.IsSet() {
		return
	}
	if s.sink.GetState() == sink.StatePlaying {
		return
	}
	s.stopSweepLocked()
	s.state = Stopped
}

// startSweepLocked begins a new play sweep. Caller must hold s.mu.
func (s *Stream) startSweepLocked(offset float64) {
	if err := s.sink.ClearQueue(); err != nil {
		slog.Warn("clear queue failed at sweep start", "thread", s.threadName, "error", err)
	}

	s.pauseMutex.Lock()
	s.preemptPause = false
	s.pauseMutex.Unlock()

	s.streamInited.Clear()
	s.sourceExhausted.Clear()
	s.threadTermReq.Clear()

	s.startOffset = offset
	rate := s.src.SampleRate()
	s.procFrames = int64(offset * float64(rate))
	s.hasLastBuf = false

	s.producerRunning = true
	s.producerWG.Add(1)
	go s.runProducer()
}

// stopSweepLocked runs the stop protocol. Caller must hold s.mu.
func (s *Stream) stopSweepLocked() {
	s.threadTermReq.Set()
	if s.producerRunning {
		s.mu.Unlock()
		s.producerWG.Wait()
		s.mu.Lock()
		s.producerRunning = false
	}
	s.needsRewind.Set()

	// Only after the join: calling sink.Stop() earlier could race with the
	// producer re-issuing sink.Play() on underrun recovery.
	if err := s.sink.Stop(); err != nil {
		slog.Warn("sink stop failed", "thread", s.threadName, "error", err)
	}
	s.procFrames = 0
}

// pauseStream resolves the preemptive-pause race under pauseMutex.
func (s *Stream) pauseStream() {
	s.pauseMutex.Lock()
	defer s.pauseMutex.Unlock()

	if s.sink.GetState() != sink.StatePlaying {
		s.preemptPause = true
		return
	}
	if err := s.sink.Pause(); err != nil {
		slog.Warn("sink pause failed", "thread", s.threadName, "error", err)
	}
}

// resumeStream resolves the preemptive-pause race under pauseMutex.
func (s *Stream) resumeStream() {
	s.pauseMutex.Lock()
	defer s.pauseMutex.Unlock()

	if s.preemptPause {
		s.preemptPause = false
		return
	}
	if err := s.sink.Play(); err != nil {
		slog.Warn("sink play failed", "thread", s.threadName, "error", err)
	}
}

// runProducer is the producer goroutine algorithm (one run per sweep).
func (s *Stream) runProducer() {
	defer s.producerWG.Done()

	s.mu.Lock()
	src := s.src
	startOffset := s.startOffset
	n := s.sink.BufferCount()
	s.mu.Unlock()

	// O2: the needsRewind check before seeking is not honored; the seek
	// always runs, matching the source behavior this reproduces.
	if err := src.SeekToOffset(startOffset); err != nil {
		slog.Warn("seek to start offset failed", "thread", s.threadName, "error", err)
	}

	if s.threadTermReq.IsSet() {
		return
	}

	firstBuffer := true
	for i := 0; i < n; i++ {
		if s.threadTermReq.IsSet() {
			return
		}

		id := sink.BufferID(i)
		status, err := src.FillBuffer(id)
		if status == source.StatusError {
			// O1: sourceExhausted is deliberately left unset; checkStopped
			// will never fire and state remains Playing until a manual
			// stop/close.
			slog.Error("decoder error during initial fill", "thread", s.threadName, "error", err)
			return
		}

		if err := s.sink.QueueBuffer(id); err != nil {
			slog.Warn("queue buffer failed", "thread", s.threadName, "error", err)
		}

		if firstBuffer {
			s.resumeStream()
			s.streamInited.Set()
			firstBuffer = false
		}

		if s.threadTermReq.IsSet() {
			return
		}

		if status == source.StatusEndOfStream {
			s.sourceExhausted.Set()
			break
		}
	}

	s.refillLoop(src)
}

// refillLoop is Phase 2: the forever refill loop until termination or a
// decoder error.
func (s *Stream) refillLoop(src source.DataSource) {
	for {
		s.syncPoint()

		processed := s.sink.GetProcBufferCount()
		for i := 0; i < processed; i++ {
			if s.threadTermReq.IsSet() {
				break
			}

			id, ok := s.sink.UnqueueBuffer()
			if !ok {
				break
			}

			s.accountProcessedBuffer(src, id)

			if s.sourceExhausted.IsSet() {
				continue
			}

			status, err := src.FillBuffer(id)
			if status == source.StatusError {
				s.sourceExhausted.Set()
				slog.Error("decoder error during refill", "thread", s.threadName, "error", err)
				return
			}

			if err := s.sink.QueueBuffer(id); err != nil {
				slog.Warn("queue buffer failed", "thread", s.threadName, "error", err)
			}

			if s.sink.GetState() == sink.StateStopped {
				slog.Info("underrun detected, resuming sink", "thread", s.threadName)
				if err := s.sink.Play(); err != nil {
					slog.Warn("underrun resume failed", "thread", s.threadName, "error", err)
				}
			}

			switch status {
			case source.StatusWrapAround:
				s.mu.Lock()
				s.lastBuf = id
				s.hasLastBuf = true
				s.mu.Unlock()
			case source.StatusEndOfStream:
				s.sourceExhausted.Set()
			}
		}

		if s.threadTermReq.IsSet() {
			return
		}
		time.Sleep(s.cfg.AudioSleep)
	}
}

// accountProcessedBuffer updates procFrames for one unqueued buffer: either
// resetting it at a loop wrap boundary or accumulating its frame count.
func (s *Stream) accountProcessedBuffer(src source.DataSource, id sink.BufferID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasLastBuf && id == s.lastBuf {
		s.procFrames = src.LoopStartFrames()
		s.hasLastBuf = false
		return
	}

	bits := s.sink.Bits(id)
	size := s.sink.Size(id)
	channels := s.sink.Channels(id)
	if bits == 0 || channels == 0 {
		return
	}
	s.procFrames += int64((size / (bits / 8)) / channels)
}

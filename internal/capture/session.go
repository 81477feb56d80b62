package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Stage is the recording pipeline state.
type Stage int

const (
	StageReady Stage = iota
	StageRecording
	StagePaused
	StagePreview
)

func (s Stage) String() string {
	switch s {
	case StageReady:
		return "ready"
	case StageRecording:
		return "recording"
	case StagePaused:
		return "paused"
	case StagePreview:
		return "preview"
	}
	return "unknown"
}

var (
	// ErrNoStream means no capture stream is attached; every control is
	// disabled until acquisition succeeds.
	ErrNoStream = errors.New("no capture stream attached")
	// ErrWrongStage means the operation is not valid from the current stage.
	ErrWrongStage = errors.New("operation not valid in current stage")
	// ErrBusy means another operation on the session is still in flight.
	ErrBusy = errors.New("session is busy")
)

// Device is a capture input reported by the source.
type Device struct {
	ID   string
	Name string
	Kind string // "video" or "audio"
}

// Selection names the camera and microphone to acquire. Empty fields mean
// the source default.
type Selection struct {
	Camera     string
	Microphone string
}

// Stream is one live capture handle, exclusively owned by a Session.
// Fragments produced between Start and Stop arrive on the chunk callback
// in order; Stop flushes any remaining fragments before returning. Close
// releases the underlying device and must be called on every exit path.
type Stream interface {
	Start(onChunk func([]byte)) error
	Pause() error
	Resume() error
	Stop() error
	MediaType() string
	Close() error
}

// Source acquires live capture streams and enumerates devices.
type Source interface {
	Devices(ctx context.Context) ([]Device, error)
	Acquire(ctx context.Context, sel Selection) (Stream, error)
}

// Blob is the single media object finalized by a stop.
type Blob struct {
	Data      []byte
	MediaType string
}

// Filename returns the download name for a blob finalized at t,
// session-{timestamp}.{ext}.
func (b *Blob) Filename(t time.Time) string {
	ext := "bin"
	switch {
	case strings.HasPrefix(b.MediaType, "video/webm"):
		ext = "webm"
	case strings.HasPrefix(b.MediaType, "video/mp4"):
		ext = "mp4"
	case strings.HasPrefix(b.MediaType, "audio/webm"):
		ext = "weba"
	}
	return fmt.Sprintf("session-%d.%s", t.Unix(), ext)
}

// Session is the record/pause/resume/stop state machine over a capture
// stream. The stream is non-nil exactly while the stage is ready,
// recording, or paused (a failed acquisition leaves ready with no stream
// and all controls disabled); the blob is non-nil exactly in preview.
type Session struct {
	mu     sync.Mutex
	source Source
	sel    Selection

	stage  Stage
	stream Stream
	chunks [][]byte
	blob   *Blob
	busy   bool

	now          func() time.Time
	accumulated  time.Duration
	segmentStart time.Time
}

// NewSession creates a Session in the ready stage with no stream attached.
// Call Open to acquire the capture stream.
func NewSession(source Source) *Session {
	return &Session{
		source: source,
		stage:  StageReady,
		now:    time.Now,
	}
}

// Open acquires the capture stream for the current device selection. Valid
// only while ready. Acquisition failure is non-fatal: the session stays
// ready with no stream.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageReady {
		return fmt.Errorf("%w: open from %s", ErrWrongStage, s.stage)
	}
	return s.acquireLocked(ctx)
}

// acquireLocked tears down any attached stream and acquires a fresh one.
func (s *Session) acquireLocked(ctx context.Context) error {
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
	stream, err := s.source.Acquire(ctx, s.sel)
	if err != nil {
		return fmt.Errorf("acquire capture stream: %w", err)
	}
	s.stream = stream
	return nil
}

// SelectDevices changes the camera/microphone selection and rebuilds the
// stream with the same acquisition routine used at startup. Valid only
// while ready.
func (s *Session) SelectDevices(ctx context.Context, sel Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageReady {
		return fmt.Errorf("%w: select devices from %s", ErrWrongStage, s.stage)
	}
	s.sel = sel
	return s.acquireLocked(ctx)
}

// StartRecording begins collecting fragments. A no-op (state unchanged)
// unless the stage is ready with a stream attached. The chunk buffer is
// reset and the elapsed counter restarted on every start.
func (s *Session) StartRecording() error {
	s.mu.Lock()

	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.stage != StageReady {
		stage := s.stage
		s.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrWrongStage, stage)
	}
	if s.stream == nil {
		s.mu.Unlock()
		return ErrNoStream
	}

	s.chunks = nil
	s.accumulated = 0
	s.segmentStart = s.now()
	s.stage = StageRecording
	stream := s.stream

	// Start may deliver buffered fragments synchronously through the
	// chunk callback, which re-enters the session mutex.
	s.busy = true
	s.mu.Unlock()
	err := stream.Start(s.appendChunk)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false

	if err != nil {
		s.stage = StageReady
		return fmt.Errorf("start recording: %w", err)
	}
	return nil
}

func (s *Session) appendChunk(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StageRecording && s.stage != StagePaused {
		return
	}
	s.chunks = append(s.chunks, chunk)
}

// Pause suspends fragment collection and the elapsed counter. Valid only
// while recording.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageRecording {
		return fmt.Errorf("%w: pause from %s", ErrWrongStage, s.stage)
	}
	if err := s.stream.Pause(); err != nil {
		return fmt.Errorf("pause recording: %w", err)
	}
	s.accumulated += s.now().Sub(s.segmentStart)
	s.stage = StagePaused
	return nil
}

// Resume restarts fragment collection without discarding collected
// fragments. Valid only while paused.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StagePaused {
		return fmt.Errorf("%w: resume from %s", ErrWrongStage, s.stage)
	}
	if err := s.stream.Resume(); err != nil {
		return fmt.Errorf("resume recording: %w", err)
	}
	s.segmentStart = s.now()
	s.stage = StageRecording
	return nil
}

// Stop finalizes the chunk buffer into a single blob, releases the
// capture stream, and moves to preview. Valid from recording or paused.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return ErrBusy
	}
	if s.stage != StageRecording && s.stage != StagePaused {
		return fmt.Errorf("%w: stop from %s", ErrWrongStage, s.stage)
	}

	if s.stage == StageRecording {
		s.accumulated += s.now().Sub(s.segmentStart)
	}

	// Stop flushes remaining fragments through the chunk callback, which
	// re-enters the session mutex. Release it for the duration.
	stream := s.stream
	s.busy = true
	s.mu.Unlock()
	stopErr := stream.Stop()
	s.mu.Lock()
	s.busy = false

	if stopErr != nil {
		stream.Close()
		s.stream = nil
		s.stage = StageReady
		return fmt.Errorf("stop recording: %w", stopErr)
	}

	var size int
	for _, c := range s.chunks {
		size += len(c)
	}
	data := make([]byte, 0, size)
	for _, c := range s.chunks {
		data = append(data, c...)
	}
	s.blob = &Blob{Data: data, MediaType: stream.MediaType()}

	stream.Close()
	s.stream = nil
	s.stage = StagePreview
	return nil
}

// RecordAgain discards the preview blob, resets the chunk buffer and
// elapsed counter, re-acquires a fresh stream, and returns to ready.
func (s *Session) RecordAgain(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StagePreview {
		return fmt.Errorf("%w: record again from %s", ErrWrongStage, s.stage)
	}
	s.blob = nil
	s.chunks = nil
	s.accumulated = 0
	s.stage = StageReady
	return s.acquireLocked(ctx)
}

// Close tears the session down from any stage, releasing the stream and
// discarding any blob. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
	s.blob = nil
	s.chunks = nil
	s.stage = StageReady
}

// Stage returns the current pipeline stage.
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// HasStream reports whether a capture stream is attached.
func (s *Session) HasStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Blob returns the finalized media object, or nil outside preview.
func (s *Session) Blob() *Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blob
}

// Elapsed returns whole seconds of recording time, counting only time
// spent in the recording stage.
func (s *Session) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := s.accumulated
	if s.stage == StageRecording {
		elapsed += s.now().Sub(s.segmentStart)
	}
	return int(elapsed / time.Second)
}

// SetBusy marks the session busy while an upload hand-off is in flight,
// blocking start/stop re-entry. Advisory only.
func (s *Session) SetBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = busy
}

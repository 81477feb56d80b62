package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
)

// FFmpegSource acquires camera+microphone streams by driving an ffmpeg
// process that muxes a single webm stream to stdout. Pipe reads are
// delivered to the session as ordered fragments, so concatenating them
// reproduces the container byte for byte.
type FFmpegSource struct {
	Binary  string // ffmpeg executable, default "ffmpeg"
	Format  string // input format, e.g. "avfoundation" or "v4l2"
	WorkDir string // scratch directory for diagnostics
}

// NewFFmpegSource creates a source using the given input format, keeping
// per-stream diagnostics under workDir.
func NewFFmpegSource(format, workDir string) *FFmpegSource {
	return &FFmpegSource{Binary: "ffmpeg", Format: format, WorkDir: workDir}
}

func (f *FFmpegSource) checkBinary() error {
	if _, err := exec.LookPath(f.Binary); err != nil {
		return fmt.Errorf("%s not found on PATH", f.Binary)
	}
	return nil
}

// Acquire verifies ffmpeg is usable and prepares a stream for the
// selected devices. The process itself starts on Stream.Start.
func (f *FFmpegSource) Acquire(_ context.Context, sel Selection) (Stream, error) {
	if err := f.checkBinary(); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(f.WorkDir, "capture-*")
	if err != nil {
		return nil, fmt.Errorf("create stream dir: %w", err)
	}
	return &ffmpegStream{source: f, sel: sel, dir: dir}, nil
}

// ffmpegStream is one live ffmpeg capture. Pause and resume are delivered
// as SIGSTOP/SIGCONT; the muxer simply stops producing output while
// suspended, so nothing already written is lost.
type ffmpegStream struct {
	source *FFmpegSource
	sel    Selection
	dir    string

	mu      sync.Mutex
	cmd     *exec.Cmd
	drained chan struct{}
	closed  bool
}

func (s *ffmpegStream) input() string {
	camera := s.sel.Camera
	if camera == "" {
		camera = "default"
	}
	mic := s.sel.Microphone
	if mic == "" {
		mic = "default"
	}
	return camera + ":" + mic
}

func (s *ffmpegStream) Start(onChunk func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return fmt.Errorf("stream already started")
	}

	cmd := exec.Command(s.source.Binary,
		"-hide_banner",
		"-f", s.source.Format,
		"-i", s.input(),
		"-c:v", "libvpx",
		"-c:a", "libopus",
		"-f", "webm",
		"pipe:1",
	)

	// Keep ffmpeg's stderr for diagnostics.
	if logFile, err := os.Create(filepath.Join(s.dir, "ffmpeg.log")); err == nil {
		cmd.Stderr = logFile
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open ffmpeg output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	s.cmd = cmd
	s.drained = make(chan struct{})
	go func() {
		defer close(s.drained)
		drainChunks(stdout, onChunk)
	}()
	return nil
}

// drainChunks reads the muxer's output stream and delivers it as ordered
// fragments. The fragments are raw slices of one container stream, never
// standalone files, so the blob they are finalized into is a single
// well-formed webm document.
func drainChunks(r io.Reader, onChunk func([]byte)) {
	buf := make([]byte, 64<<10)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk)
		}
		if err != nil {
			return
		}
	}
}

func (s *ffmpegStream) signal(sig syscall.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return fmt.Errorf("stream not started")
	}
	return s.cmd.Process.Signal(sig)
}

func (s *ffmpegStream) Pause() error {
	if err := s.signal(syscall.SIGSTOP); err != nil {
		return fmt.Errorf("pause ffmpeg: %w", err)
	}
	return nil
}

func (s *ffmpegStream) Resume() error {
	if err := s.signal(syscall.SIGCONT); err != nil {
		return fmt.Errorf("resume ffmpeg: %w", err)
	}
	return nil
}

// Stop interrupts ffmpeg so it finalizes the stream, drains the remaining
// output through the chunk callback, and waits for the process to exit.
func (s *ffmpegStream) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	drained := s.drained
	s.mu.Unlock()

	if cmd == nil {
		return fmt.Errorf("stream not started")
	}

	// SIGCONT first in case we are stopping from paused.
	_ = cmd.Process.Signal(syscall.SIGCONT)
	_ = cmd.Process.Signal(os.Interrupt)

	// Every byte of stdout must be read before Wait closes the pipe.
	<-drained
	_ = cmd.Wait()

	s.mu.Lock()
	s.cmd = nil
	s.drained = nil
	s.mu.Unlock()
	return nil
}

func (s *ffmpegStream) MediaType() string {
	return "video/webm"
}

// Close kills any still-running process and removes the stream directory.
// Safe to call more than once.
func (s *ffmpegStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
		s.cmd = nil
	}
	return os.RemoveAll(s.dir)
}

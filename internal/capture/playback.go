package capture

import (
	"os/exec"
	"runtime"
	"strings"
)

// Viewer is the path chosen to play back a finalized recording.
type Viewer int

const (
	// ViewerNative plays the media in-process via ffplay.
	ViewerNative Viewer = iota
	// ViewerFallback hands the file to the system opener when the media
	// type cannot be played natively.
	ViewerFallback
)

// Playback decides between the native player and the fallback viewer for
// a given media type. The supports probe is injectable for tests.
type Playback struct {
	supports func(mediaType string) bool
}

// NewPlayback creates a Playback using the given support probe, or the
// default ffplay probe when nil.
func NewPlayback(supports func(string) bool) *Playback {
	if supports == nil {
		supports = ffplaySupports
	}
	return &Playback{supports: supports}
}

// Viewer returns the playback path for the media type.
func (p *Playback) Viewer(mediaType string) Viewer {
	if p.supports(mediaType) {
		return ViewerNative
	}
	return ViewerFallback
}

// Command returns the player invocation for the media file at path.
func (p *Playback) Command(mediaType, path string) *exec.Cmd {
	if p.Viewer(mediaType) == ViewerNative {
		return exec.Command("ffplay", "-autoexit", path)
	}
	opener := "xdg-open"
	if runtime.GOOS == "darwin" {
		opener = "open"
	}
	return exec.Command(opener, path)
}

// ffplaySupports reports whether ffplay is available and the media type is
// one it is known to decode.
func ffplaySupports(mediaType string) bool {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return false
	}
	switch {
	case strings.HasPrefix(mediaType, "video/webm"),
		strings.HasPrefix(mediaType, "video/mp4"),
		strings.HasPrefix(mediaType, "audio/"):
		return true
	}
	return false
}

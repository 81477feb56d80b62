package capture

import "testing"

func TestPlaybackFallback(t *testing.T) {
	playback := NewPlayback(func(mediaType string) bool {
		return mediaType == "video/mp4"
	})

	if got := playback.Viewer("video/mp4"); got != ViewerNative {
		t.Errorf("expected native viewer for supported type, got %v", got)
	}
	// Unplayable media must route to the fallback viewer, never the
	// native player.
	if got := playback.Viewer("video/webm"); got != ViewerFallback {
		t.Errorf("expected fallback viewer for unsupported type, got %v", got)
	}
}

func TestPlaybackCommand(t *testing.T) {
	playback := NewPlayback(func(string) bool { return false })
	cmd := playback.Command("video/webm", "/tmp/session.webm")
	if len(cmd.Args) == 0 || cmd.Args[0] == "ffplay" {
		t.Errorf("fallback path must not use the native player, got %v", cmd.Args)
	}
}

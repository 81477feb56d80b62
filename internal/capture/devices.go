package capture

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"
)

// deviceLine matches ffmpeg's -list_devices output, e.g.
// [AVFoundation indev @ 0x...] [0] FaceTime HD Camera
var deviceLine = regexp.MustCompile(`\[(\d+)\]\s+(.+)$`)

// Devices enumerates capture devices via ffmpeg. Enumeration failure
// degrades to an empty list: the caller shows a non-fatal message and
// keeps controls disabled.
func (f *FFmpegSource) Devices(ctx context.Context) ([]Device, error) {
	if err := f.checkBinary(); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, f.Binary,
		"-hide_banner",
		"-f", f.Format,
		"-list_devices", "true",
		"-i", "",
	)
	// ffmpeg exits non-zero after listing; the listing itself is on stderr.
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run()

	return parseDeviceList(stderr.String()), nil
}

// parseDeviceList extracts indexed devices from the listing, tracking the
// video/audio section headers.
func parseDeviceList(listing string) []Device {
	var devices []Device
	kind := "video"

	scanner := bufio.NewScanner(strings.NewReader(listing))
	for scanner.Scan() {
		line := scanner.Text()
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "video devices"):
			kind = "video"
			continue
		case strings.Contains(lower, "audio devices"):
			kind = "audio"
			continue
		}
		m := deviceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		devices = append(devices, Device{
			ID:   m[1],
			Name: strings.TrimSpace(m[2]),
			Kind: kind,
		})
	}
	return devices
}

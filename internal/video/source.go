package video

import (
	"math"
	"strconv"
	"strings"
)

// DefaultFPS is used when a source does not report its frame rate
const DefaultFPS = 25.0

var liveSchemes = []string{"rtsp://", "rtmp://", "udp://", "http://", "https://"}

// Source is a parsed capture source
type Source struct {
	Raw    string
	Device int
	// IsDevice is set for webcams, addressed by an empty string or a device number
	IsDevice bool
}

// ParseSource interprets "" as the default webcam and a bare number as a
// device index. Anything else is a file path or stream URL.
func ParseSource(raw string) Source {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Source{Raw: raw, Device: 0, IsDevice: true}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return Source{Raw: raw, Device: n, IsDevice: true}
	}
	return Source{Raw: s}
}

// Live reports whether the source is a camera or a network stream, i.e. has
// no end and no known length.
func (s Source) Live() bool {
	if s.IsDevice {
		return true
	}
	lower := strings.ToLower(s.Raw)
	for _, scheme := range liveSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

func (s Source) String() string {
	if s.IsDevice {
		return "webcam:" + strconv.Itoa(s.Device)
	}
	return s.Raw
}

// normalizeFPS falls back to DefaultFPS for missing or absurd values
func normalizeFPS(fps float64) float64 {
	if fps <= 0 || fps > 1000 || math.IsNaN(fps) {
		return DefaultFPS
	}
	return fps
}

// scaledSize returns the size that fits width into maxWidth keeping aspect.
// maxWidth <= 0 disables scaling.
func scaledSize(width, height, maxWidth int) (int, int, bool) {
	if maxWidth <= 0 || width <= maxWidth || width == 0 {
		return width, height, false
	}
	h := height * maxWidth / width
	if h < 1 {
		h = 1
	}
	return maxWidth, h, true
}

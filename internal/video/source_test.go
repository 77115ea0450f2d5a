package video

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		raw      string
		want     Source
		wantLive bool
		wantStr  string
	}{
		{"", Source{Raw: "", Device: 0, IsDevice: true}, true, "webcam:0"},
		{"  ", Source{Raw: "  ", Device: 0, IsDevice: true}, true, "webcam:0"},
		{"2", Source{Raw: "2", Device: 2, IsDevice: true}, true, "webcam:2"},
		{"clip.mp4", Source{Raw: "clip.mp4"}, false, "clip.mp4"},
		{"-1", Source{Raw: "-1"}, false, "-1"},
		{"rtsp://cam.local/stream", Source{Raw: "rtsp://cam.local/stream"}, true, "rtsp://cam.local/stream"},
		{"HTTPS://example.com/live.m3u8", Source{Raw: "HTTPS://example.com/live.m3u8"}, true, "HTTPS://example.com/live.m3u8"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := ParseSource(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantLive, got.Live())
			assert.Equal(t, tt.wantStr, got.String())
		})
	}
}

func TestNormalizeFPS(t *testing.T) {
	assert.Equal(t, 30.0, normalizeFPS(30))
	assert.Equal(t, 29.97, normalizeFPS(29.97))
	assert.Equal(t, DefaultFPS, normalizeFPS(0))
	assert.Equal(t, DefaultFPS, normalizeFPS(-1))
	assert.Equal(t, DefaultFPS, normalizeFPS(90000))
	assert.Equal(t, DefaultFPS, normalizeFPS(math.NaN()))
}

func TestScaledSize(t *testing.T) {
	tests := []struct {
		name       string
		w          int
		h          int
		maxWidth   int
		wantW      int
		wantH      int
		wantScaled bool
	}{
		{"full hd to 960", 1920, 1080, 960, 960, 540, true},
		{"already small", 640, 480, 960, 640, 480, false},
		{"disabled", 1920, 1080, 0, 1920, 1080, false},
		{"portrait", 1080, 1920, 540, 540, 960, true},
		{"tiny height", 5000, 1, 100, 100, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, scaled := scaledSize(tt.w, tt.h, tt.maxWidth)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
			assert.Equal(t, tt.wantScaled, scaled)
		})
	}
}

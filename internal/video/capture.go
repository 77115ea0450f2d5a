package video

import (
	"context"
	"fmt"
	"image"
	"io"

	"gocv.io/x/gocv"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
	"github.com/saturnino-fabrica-de-software/findperson/internal/feed"
)

// Options tune how frames are read
type Options struct {
	// MaxWidth downscales wider frames, keeping the aspect ratio. 0 keeps the native size.
	MaxWidth int
}

// Capture reads frames from a webcam, file or stream
type Capture struct {
	vc         *gocv.VideoCapture
	source     Source
	opts       Options
	raw        gocv.Mat
	fps        float64
	frameCount int
	index      int
}

// Open opens source. An empty string or a device number opens a webcam.
func Open(raw string, opts Options) (*Capture, error) {
	src := ParseSource(raw)

	var (
		vc  *gocv.VideoCapture
		err error
	)
	if src.IsDevice {
		vc, err = gocv.OpenVideoCapture(src.Device)
	} else {
		vc, err = gocv.OpenVideoCapture(src.Raw)
	}
	if err != nil {
		return nil, domain.ErrSourceUnavailable.WithError(fmt.Errorf("%s: %w", src, err))
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, domain.ErrSourceUnavailable.WithError(fmt.Errorf("%s: capture not opened", src))
	}

	c := &Capture{
		vc:     vc,
		source: src,
		opts:   opts,
		raw:    gocv.NewMat(),
		fps:    normalizeFPS(vc.Get(gocv.VideoCaptureFPS)),
	}
	if !src.Live() {
		if n := int(vc.Get(gocv.VideoCaptureFrameCount)); n > 0 {
			c.frameCount = n
		}
	}
	return c, nil
}

// Next reads the next frame. It returns io.EOF when the source is exhausted.
// The caller owns the returned frame and must Close it.
func (c *Capture) Next(ctx context.Context) (feed.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := c.vc.Read(&c.raw); !ok || c.raw.Empty() {
		return nil, io.EOF
	}
	c.index++

	w, h, scale := scaledSize(c.raw.Cols(), c.raw.Rows(), c.opts.MaxWidth)
	if !scale {
		return &MatFrame{mat: c.raw.Clone(), index: c.index}, nil
	}

	resized := gocv.NewMat()
	gocv.Resize(c.raw, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
	return &MatFrame{mat: resized, index: c.index}, nil
}

// FPS is the reported frame rate, DefaultFPS when unknown
func (c *Capture) FPS() float64 {
	return c.fps
}

// FrameCount is the number of frames of a recorded source, 0 for live ones
func (c *Capture) FrameCount() int {
	return c.frameCount
}

// Live reports whether the source is a camera or network stream
func (c *Capture) Live() bool {
	return c.source.Live()
}

// Source returns the parsed source
func (c *Capture) Source() Source {
	return c.source
}

// Close releases the device or file
func (c *Capture) Close() error {
	_ = c.raw.Close()
	return c.vc.Close()
}

var _ feed.Source = (*Capture)(nil)

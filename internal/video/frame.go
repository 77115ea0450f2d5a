package video

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/saturnino-fabrica-de-software/findperson/internal/finder"
)

// ErrUnsupportedFrame is returned when an OpenCV operation gets a frame not backed by a Mat
var ErrUnsupportedFrame = errors.New("frame is not backed by an OpenCV Mat")

// MatFrame is a finder.Frame backed by a gocv.Mat
type MatFrame struct {
	mat   gocv.Mat
	index int
}

// NewMatFrame wraps mat. The frame takes ownership of it.
func NewMatFrame(mat gocv.Mat, index int) *MatFrame {
	return &MatFrame{mat: mat, index: index}
}

func (f *MatFrame) Index() int {
	return f.index
}

func (f *MatFrame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.mat.Cols(), f.mat.Rows())
}

// JPEG encodes the frame
func (f *MatFrame) JPEG() ([]byte, error) {
	return encodeJPEG(f.mat)
}

// Mat exposes the underlying matrix, still owned by the frame
func (f *MatFrame) Mat() gocv.Mat {
	return f.mat
}

// Close frees the matrix
func (f *MatFrame) Close() error {
	return f.mat.Close()
}

func encodeJPEG(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	// the native buffer is freed on Close
	return append([]byte(nil), buf.GetBytes()...), nil
}

func matOf(frame finder.Frame) (gocv.Mat, error) {
	mf, ok := frame.(interface{ Mat() gocv.Mat })
	if !ok {
		return gocv.Mat{}, ErrUnsupportedFrame
	}
	return mf.Mat(), nil
}

var _ finder.Frame = (*MatFrame)(nil)

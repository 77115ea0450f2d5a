package video

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/saturnino-fabrica-de-software/findperson/internal/finder"
)

var (
	colorFound    = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	colorNotFound = color.RGBA{R: 255, G: 0, B: 0, A: 0}
)

// Label renders the overlay text and its color for a result
func Label(res finder.Result) (string, color.RGBA) {
	if res.Found {
		return fmt.Sprintf("FOUND | %.2f", res.Score), colorFound
	}
	return fmt.Sprintf("NOT FOUND | %.2f", res.Score), colorNotFound
}

// Annotate draws the result onto a copy of frame and returns it as JPEG
func Annotate(frame finder.Frame, res finder.Result) ([]byte, error) {
	src, err := matOf(frame)
	if err != nil {
		return nil, err
	}

	canvas := src.Clone()
	defer canvas.Close()

	text, c := Label(res)
	if res.Found && !res.Box.Empty() {
		gocv.Rectangle(&canvas, res.Box, c, 2)
	}
	gocv.PutText(&canvas, text, image.Pt(10, 30), gocv.FontHersheySimplex, 0.8, c, 2)

	return encodeJPEG(canvas)
}

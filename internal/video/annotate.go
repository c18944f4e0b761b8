package video

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/LdDl/termites-go/mot"
)

var (
	textColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	lostColor = color.RGBA{R: 128, G: 128, B: 128, A: 0}
)

// Annotator draws subject boxes and frame position on a copy of the frame.
// The source frame stays clean for box selection.
type Annotator struct {
	canvas gocv.Mat
}

// NewAnnotator returns Annotator. Close it when done
func NewAnnotator() *Annotator {
	return &Annotator{canvas: gocv.NewMat()}
}

// Annotate implements mot.Annotator. Returned image is reused by the next call
func (a *Annotator) Annotate(frame mot.Frame[gocv.Mat], marks []mot.Mark, totalFrames int) gocv.Mat {
	frame.Image.CopyTo(&a.canvas)
	for _, mark := range marks {
		rect := mark.Box.Rect()
		label := mark.Label
		markColor := mark.Color
		thickness := 2
		if mark.Lost {
			// Last known box
			label += " lost"
			markColor = lostColor
			thickness = 1
		}
		gocv.Rectangle(&a.canvas, rect, markColor, thickness)
		gocv.PutText(&a.canvas, label, image.Pt(rect.Min.X, rect.Min.Y-5), gocv.FontHersheySimplex, 0.5, markColor, 1)
	}
	info := fmt.Sprintf("Frame #%d of %d", frame.Index, totalFrames)
	gocv.PutText(&a.canvas, info, image.Pt(10, 20), gocv.FontHersheySimplex, 0.6, textColor, 2)
	return a.canvas
}

// Close releases the canvas
func (a *Annotator) Close() error {
	return a.canvas.Close()
}

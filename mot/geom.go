package mot

import (
	"image"
	"math"
)

// BBox is an axis-aligned bounding box in pixel units.
// X and Y point to the top-left corner.
type BBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

func NewBBox(x, y, width, height int) BBox {
	return BBox{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

func NewBBoxFrom(rect image.Rectangle) BBox {
	rect = rect.Canon()
	return BBox{
		X:      rect.Min.X,
		Y:      rect.Min.Y,
		Width:  rect.Dx(),
		Height: rect.Dy(),
	}
}

// Rect returns bounding box as image.Rectangle
func (box BBox) Rect() image.Rectangle {
	return image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height)
}

// Center returns center of the bounding box
func (box BBox) Center() Point {
	return Point{
		X: float64(box.X) + float64(box.Width)/2.0,
		Y: float64(box.Y) + float64(box.Height)/2.0,
	}
}

// Empty reports whether the box has no area (e.g. cancelled ROI selection)
func (box BBox) Empty() bool {
	return box.Width <= 0 || box.Height <= 0
}

type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Sqrt(math.Pow(p1.X-p2.X, 2) + math.Pow(p1.Y-p2.Y, 2))
}

package mot

import (
	"image"
	"math"
	"testing"
)

const (
	eps = 0.00001
)

func TestEuclideanDistance(t *testing.T) {
	p1 := Point{X: 341, Y: 264}
	p2 := Point{X: 421, Y: 427}
	correnctAnswer := 181.57367
	answer := euclideanDistance(p1, p2)
	if math.Abs(answer-correnctAnswer) > eps {
		t.Errorf("Wrong answer: %v, correct answer: %v", answer, correnctAnswer)
	}
}

func TestBBoxCenter(t *testing.T) {
	box := NewBBox(10, 20, 5, 8)
	center := box.Center()
	if math.Abs(center.X-12.5) > eps || math.Abs(center.Y-24.0) > eps {
		t.Errorf("Wrong center: %v, expected (12.5, 24)", center)
	}
}

func TestBBoxRectRoundTrip(t *testing.T) {
	box := NewBBox(3, 4, 30, 40)
	rect := box.Rect()
	if rect != image.Rect(3, 4, 33, 44) {
		t.Errorf("Wrong rectangle: %v", rect)
	}
	if back := NewBBoxFrom(rect); back != box {
		t.Errorf("Expected %v after conversion, got %v", box, back)
	}
	// Inverted rectangles (drag from bottom-right to top-left) are canonicalized
	if back := NewBBoxFrom(image.Rectangle{Min: image.Pt(33, 44), Max: image.Pt(3, 4)}); back != box {
		t.Errorf("Expected %v for inverted rectangle, got %v", box, back)
	}
}

func TestBBoxEmpty(t *testing.T) {
	if !(BBox{}).Empty() {
		t.Error("Zero box should be empty")
	}
	if NewBBox(0, 0, 1, 1).Empty() {
		t.Error("1x1 box should not be empty")
	}
}

func TestIoU(t *testing.T) {
	a := NewBBox(0, 0, 10, 10)
	if iou := IoU(a, a); math.Abs(iou-1.0) > eps {
		t.Errorf("Same boxes should have IoU 1, got %v", iou)
	}
	b := NewBBox(5, 0, 10, 10)
	// intersection 50, union 150
	if iou := IoU(a, b); math.Abs(iou-1.0/3.0) > eps {
		t.Errorf("Expected IoU 1/3, got %v", iou)
	}
	if iou := IoU(a, NewBBox(20, 20, 5, 5)); iou != 0 {
		t.Errorf("Disjoint boxes should have IoU 0, got %v", iou)
	}
}

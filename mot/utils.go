package mot

// IoU calculates Intersection over Union between two bounding boxes.
func IoU(b1, b2 BBox) float64 {
	xA := maxInt(b1.X, b2.X)
	yA := maxInt(b1.Y, b2.Y)
	xB := minInt(b1.X+b1.Width, b2.X+b2.Width)
	yB := minInt(b1.Y+b1.Height, b2.Y+b2.Height)

	interArea := maxInt(0, xB-xA) * maxInt(0, yB-yA)
	if interArea == 0 {
		return 0.0
	}

	b1Area := b1.Width * b1.Height
	b2Area := b2.Width * b2.Height

	return float64(interArea) / float64(b1Area+b2Area-interArea)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

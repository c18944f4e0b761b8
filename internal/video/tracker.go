package video

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"

	"github.com/LdDl/termites-go/mot"
)

// Tracker wraps an OpenCV single-object tracker
type Tracker struct {
	method  mot.TrackingMethod
	tracker gocv.Tracker
}

// NewTracker creates OpenCV tracker for the method. It fits mot.TrackerFactory
func NewTracker(method mot.TrackingMethod) (mot.Tracker[gocv.Mat], error) {
	var tracker gocv.Tracker
	switch method {
	case mot.TrackingMethodMIL:
		tracker = gocv.NewTrackerMIL()
	case mot.TrackingMethodKCF:
		tracker = contrib.NewTrackerKCF()
	case mot.TrackingMethodCSRT:
		tracker = contrib.NewTrackerCSRT()
	default:
		return nil, errors.Errorf("tracking method %d is not supported", method)
	}
	return &Tracker{method: method, tracker: tracker}, nil
}

// Init binds tracker to the box on frame
func (t *Tracker) Init(frame gocv.Mat, box mot.BBox) error {
	if box.Empty() {
		return errors.Wrapf(mot.ErrTrackerLost, "%s tracker got empty box", t.method)
	}
	if !t.tracker.Init(frame, box.Rect()) {
		return errors.Wrapf(mot.ErrTrackerLost, "%s tracker can't lock on %v", t.method, box.Rect())
	}
	return nil
}

// Update returns new box of the object
func (t *Tracker) Update(frame gocv.Mat) (mot.BBox, bool) {
	rect, ok := t.tracker.Update(frame)
	if !ok {
		return mot.BBox{}, false
	}
	box := mot.NewBBoxFrom(rect)
	if box.Empty() {
		return mot.BBox{}, false
	}
	return box, true
}

// Close releases OpenCV tracker
func (t *Tracker) Close() error {
	return t.tracker.Close()
}

package mot

import (
	"strings"

	"github.com/pkg/errors"
)

// Tracker is the interface for single-object visual trackers.
// F is the frame type the tracker works on (e.g., gocv.Mat).
type Tracker[F any] interface {
	// Init binds the tracker to the object inside box on frame.
	// Error should wrap ErrTrackerLost when the tracker can't lock on the object
	Init(frame F, box BBox) error
	// Update advances the tracker by one frame. Returns false when the object is lost
	Update(frame F) (BBox, bool)
	// Close releases the tracker state
	Close() error
}

// TrackerFactory creates fresh tracker handles for the given method
type TrackerFactory[F any] func(method TrackingMethod) (Tracker[F], error)

// TrackingMethod is for algorithm type of the visual tracker backend
type TrackingMethod uint16

const (
	// TrackingMethodMIL uses Multiple Instance Learning tracker
	TrackingMethodMIL TrackingMethod = iota
	// TrackingMethodKCF uses Kernelized Correlation Filters tracker
	TrackingMethodKCF
	// TrackingMethodCSRT uses Discriminative Correlation Filter with Channel and Spatial Reliability tracker
	TrackingMethodCSRT
)

var trackingMethodNames = map[TrackingMethod]string{
	TrackingMethodMIL:  "mil",
	TrackingMethodKCF:  "kcf",
	TrackingMethodCSRT: "csrt",
}

func (method TrackingMethod) String() string {
	if name, ok := trackingMethodNames[method]; ok {
		return name
	}
	return "unknown"
}

// ParseTrackingMethod converts configuration value (case insensitive) to TrackingMethod
func ParseTrackingMethod(value string) (TrackingMethod, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for method, name := range trackingMethodNames {
		if name == value {
			return method, nil
		}
	}
	return 0, errors.Errorf("unknown tracking method %q (expected one of mil, kcf, csrt)", value)
}

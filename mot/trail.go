package mot

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

// TrailRecord is a single observation of a subject on a frame.
type TrailRecord struct {
	Frame int
	Time  time.Duration
	Box   BBox
}

// Center returns center of the recorded bounding box
func (record TrailRecord) Center() Point {
	return record.Box.Center()
}

// Trail is the ordered sequence of observations of one subject.
// Frames are strictly increasing.
type Trail []TrailRecord

// Last returns the most recent record
func (trail Trail) Last() (TrailRecord, bool) {
	if len(trail) == 0 {
		return TrailRecord{}, false
	}
	return trail[len(trail)-1], true
}

// Frames returns frame indices of the trail
func (trail Trail) Frames() []int {
	frames := make([]int, len(trail))
	for i, record := range trail {
		frames[i] = record.Frame
	}
	return frames
}

// Index returns position of the record for given frame or -1 if there is no such record.
// Trail must be valid (see Validate).
func (trail Trail) Index(frame int) int {
	i := sort.Search(len(trail), func(i int) bool {
		return trail[i].Frame >= frame
	})
	if i < len(trail) && trail[i].Frame == frame {
		return i
	}
	return -1
}

// Validate checks that frames are non-negative and strictly increasing
func (trail Trail) Validate() error {
	for i, record := range trail {
		if record.Frame < 0 {
			return errors.Wrapf(ErrMalformedTrail, "negative frame %d at position %d", record.Frame, i)
		}
		if i > 0 && record.Frame <= trail[i-1].Frame {
			return errors.Wrapf(ErrMalformedTrail, "frame %d follows frame %d at position %d", record.Frame, trail[i-1].Frame, i)
		}
	}
	return nil
}

// Clone returns a copy of the trail
func (trail Trail) Clone() Trail {
	if trail == nil {
		return nil
	}
	cloned := make(Trail, len(trail))
	copy(cloned, trail)
	return cloned
}

// truncateAfter drops every record past the given frame but always keeps the first one.
func (trail Trail) truncateAfter(frame int) Trail {
	keep := sort.Search(len(trail), func(i int) bool {
		return trail[i].Frame > frame
	})
	if keep == 0 && len(trail) > 0 {
		keep = 1
	}
	return trail[:keep]
}

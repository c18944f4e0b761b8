package mot

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrVideoUnavailable is returned when a frame source can't be opened or holds no frames
	ErrVideoUnavailable = errors.New("video unavailable")
	// ErrFrameExhausted signals that the frame source has no more frames. It is the normal end of a session
	ErrFrameExhausted = errors.New("frame source exhausted")
	// ErrTrackerLost is reported when a tracker can't find its subject on a frame
	ErrTrackerLost = errors.New("tracker lost subject")
	// ErrInvalidIndex is returned for subject indices (or step counts) out of range
	ErrInvalidIndex = errors.New("invalid index")
	// ErrMalformedTrail is returned when trails can't be used for encounter analysis
	ErrMalformedTrail = errors.New("malformed trail input")
	// ErrAlreadyNormalized is returned when center normalization is requested twice for the same track
	ErrAlreadyNormalized = errors.New("track is already normalized")
	// ErrNotNormalized is returned when a track reaches the analyzer without center normalization
	ErrNotNormalized = errors.New("track is not normalized")
	// ErrSessionState is returned when a session operation is not allowed in the current state
	ErrSessionState = errors.New("operation not allowed in current session state")
	// ErrSelectionCancelled is returned by box selectors when the operator cancels the selection
	ErrSelectionCancelled = errors.New("selection cancelled")
)

// LostError describes a subject that was not found by its tracker on a frame.
type LostError struct {
	Subject string
	Frame   int
}

func (e LostError) Error() string {
	return fmt.Sprintf("subject %s at frame %d: %s", e.Subject, e.Frame, ErrTrackerLost)
}

func (e LostError) Unwrap() error {
	return ErrTrackerLost
}

// PairError describes an ordered subject pair whose encounter computation was aborted.
type PairError struct {
	Subject string
	Other   string
	Err     error
}

func (e PairError) Error() string {
	return fmt.Sprintf("pair %s -> %s: %v", e.Subject, e.Other, e.Err)
}

func (e PairError) Unwrap() error {
	return e.Err
}

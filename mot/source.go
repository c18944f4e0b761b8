package mot

import (
	"image/color"
	"time"
)

// Frame is a single image of the video along with its position
type Frame[F any] struct {
	Index int
	Time  time.Duration
	Image F
}

// FrameSource provides random access to video frames.
// Image of a returned frame stays valid until the next FrameAt or Close call.
type FrameSource[F any] interface {
	FrameCount() int
	// FrameAt returns ErrFrameExhausted when index is beyond the last frame
	FrameAt(index int) (Frame[F], error)
	Close() error
}

// Mark is a subject's box to be drawn on a frame
type Mark struct {
	Label string
	Color color.RGBA
	Box   BBox
	Lost  bool
}

// Annotator draws subject marks and frame info for display
type Annotator[F any] interface {
	Annotate(frame Frame[F], marks []Mark, totalFrames int) F
}

type plainAnnotator[F any] struct{}

func (plainAnnotator[F]) Annotate(frame Frame[F], _ []Mark, _ int) F {
	return frame.Image
}

// TrailWriter persists finalized trails
type TrailWriter interface {
	WriteTrails(trails []SubjectTrail) error
}

// TrailWriterFunc is an adapter to allow the use of ordinary functions as TrailWriter
type TrailWriterFunc func(trails []SubjectTrail) error

func (f TrailWriterFunc) WriteTrails(trails []SubjectTrail) error {
	return f(trails)
}

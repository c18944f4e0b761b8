// Package video adapts OpenCV (gocv) to the tracking session: frame source, tracker backends,
// frame annotation and the interactive window.
package video

import (
	"image"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/LdDl/termites-go/mot"
)

// Source reads frames of a video file, resized by a constant ratio.
type Source struct {
	path    string
	capture *gocv.VideoCapture
	frames  int
	fps     float64
	ratio   float64
	raw     gocv.Mat
	frame   gocv.Mat
	// Index the capture reads next. Sequential access never seeks
	next int
}

// Open opens video at path. Failures wrap mot.ErrVideoUnavailable.
func Open(path string, resizeRatio float64) (*Source, error) {
	if resizeRatio <= 0 {
		return nil, errors.Errorf("resize ratio must be positive, got %v", resizeRatio)
	}
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, errors.Wrapf(mot.ErrVideoUnavailable, "%s: %v", path, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, errors.Wrapf(mot.ErrVideoUnavailable, "%s: can't be opened", path)
	}
	frames := int(capture.Get(gocv.VideoCaptureFrameCount))
	if frames <= 0 {
		_ = capture.Close()
		return nil, errors.Wrapf(mot.ErrVideoUnavailable, "%s: no frames", path)
	}
	source := &Source{
		path:    path,
		capture: capture,
		frames:  frames,
		fps:     capture.Get(gocv.VideoCaptureFPS),
		ratio:   resizeRatio,
		raw:     gocv.NewMat(),
		frame:   gocv.NewMat(),
	}
	mot.Diagf("video %s opened: %d frames at %.2f fps, resize ratio %.2f", path, frames, source.fps, resizeRatio)
	return source, nil
}

// FrameCount returns number of frames reported by the container
func (source *Source) FrameCount() int {
	return source.frames
}

// FrameAt returns frame with given index. Returned image is reused by the next call
func (source *Source) FrameAt(index int) (mot.Frame[gocv.Mat], error) {
	if index < 0 || index >= source.frames {
		return mot.Frame[gocv.Mat]{}, mot.ErrFrameExhausted
	}
	if index != source.next {
		mot.Tracef("seek from frame %d to %d", source.next, index)
		source.capture.Set(gocv.VideoCapturePosFrames, float64(index))
	}
	// Frame count of some containers is an estimate: a failed read is the end of the video
	if ok := source.capture.Read(&source.raw); !ok || source.raw.Empty() {
		source.next = source.frames
		return mot.Frame[gocv.Mat]{}, mot.ErrFrameExhausted
	}
	source.next = index + 1
	if source.ratio == 1 {
		source.raw.CopyTo(&source.frame)
	} else {
		gocv.Resize(source.raw, &source.frame, image.Point{}, source.ratio, source.ratio, gocv.InterpolationLinear)
	}
	return mot.Frame[gocv.Mat]{
		Index: index,
		Time:  source.frameTime(index),
		Image: source.frame,
	}, nil
}

func (source *Source) frameTime(index int) time.Duration {
	if source.fps <= 0 {
		return 0
	}
	return time.Duration(float64(index) / source.fps * float64(time.Second))
}

// Close releases the capture and frame buffers
func (source *Source) Close() error {
	_ = source.raw.Close()
	_ = source.frame.Close()
	return source.capture.Close()
}

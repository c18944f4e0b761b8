package mot

import (
	"time"

	"github.com/pkg/errors"
)

// SessionState is the state of a tracking session
type SessionState uint8

const (
	// StateInitializing waits for initial bounding boxes on the starting frame
	StateInitializing SessionState = iota
	// StateRunning advances frame by frame
	StateRunning
	// StatePausedForROI waits for the operator to select a new box for a subject
	StatePausedForROI
	// StateRewinding discards recent history and re-seeds trackers
	StateRewinding
	// StateFinished means the video is exhausted or the operator quit. Trails are persisted
	StateFinished
)

func (state SessionState) String() string {
	switch state {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StatePausedForROI:
		return "paused-for-roi"
	case StateRewinding:
		return "rewinding"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

const (
	// DefaultPlaybackDelayMs is the delay between displayed frames
	DefaultPlaybackDelayMs = 1
)

// Session orchestrates frame-by-frame tracking of a fixed set of subjects.
// F is the frame type shared by the frame source and the trackers.
//
// Session is not safe for concurrent use: frame N+1 is never processed before
// every subject was updated on frame N.
type Session[F any] struct {
	subjects   []*Subject[F]
	source     FrameSource[F]
	newTracker TrackerFactory[F]
	method     TrackingMethod
	annotator  Annotator[F]
	writer     TrailWriter

	// Last loaded frame
	current       Frame[F]
	totalFrames   int
	currentFrame  int
	startingFrame int
	// Delay between displayed frames (milliseconds). Never less than 1
	playbackDelayMs int
	state           SessionState
	finalized       bool
}

// SessionOption configures a Session
type SessionOption[F any] func(*Session[F])

// WithStartingFrame sets index of the frame where subjects are selected. Default 0
func WithStartingFrame[F any](frame int) SessionOption[F] {
	return func(s *Session[F]) {
		s.startingFrame = frame
	}
}

// WithPlaybackDelay sets delay between displayed frames in milliseconds. Default 1
func WithPlaybackDelay[F any](delayMs int) SessionOption[F] {
	return func(s *Session[F]) {
		s.playbackDelayMs = delayMs
	}
}

// WithTrackingMethod sets tracker backend passed to the factory. Default is KCF
func WithTrackingMethod[F any](method TrackingMethod) SessionOption[F] {
	return func(s *Session[F]) {
		s.method = method
	}
}

// WithAnnotator sets frame annotator used for rendering. By default frames are returned as is
func WithAnnotator[F any](annotator Annotator[F]) SessionOption[F] {
	return func(s *Session[F]) {
		if annotator != nil {
			s.annotator = annotator
		}
	}
}

// NewSession creates new tracking session. The session takes ownership of the source.
func NewSession[F any](source FrameSource[F], factory TrackerFactory[F], writer TrailWriter, identities []Identity, options ...SessionOption[F]) (*Session[F], error) {
	if source == nil {
		return nil, errors.Wrap(ErrVideoUnavailable, "no frame source")
	}
	totalFrames := source.FrameCount()
	if totalFrames <= 0 {
		return nil, errors.Wrap(ErrVideoUnavailable, "frame source has no frames")
	}
	if len(identities) == 0 {
		return nil, errors.Wrap(ErrInvalidIndex, "session needs at least one subject")
	}
	if factory == nil {
		return nil, errors.New("tracker factory is required")
	}
	if writer == nil {
		return nil, errors.New("trail writer is required")
	}
	session := &Session[F]{
		subjects:        make([]*Subject[F], 0, len(identities)),
		source:          source,
		newTracker:      factory,
		method:          TrackingMethodKCF,
		annotator:       plainAnnotator[F]{},
		writer:          writer,
		totalFrames:     totalFrames,
		playbackDelayMs: DefaultPlaybackDelayMs,
		state:           StateInitializing,
	}
	for _, option := range options {
		option(session)
	}
	if session.startingFrame < 0 {
		return nil, errors.Wrapf(ErrInvalidIndex, "starting frame %d is negative", session.startingFrame)
	}
	if session.startingFrame >= totalFrames {
		return nil, errors.Wrapf(ErrVideoUnavailable, "starting frame %d is beyond last frame %d", session.startingFrame, totalFrames-1)
	}
	session.playbackDelayMs = maxInt(1, session.playbackDelayMs)
	session.currentFrame = session.startingFrame
	seen := make(map[string]struct{}, len(identities))
	for _, identity := range identities {
		if _, ok := seen[identity.Label()]; ok {
			return nil, errors.Errorf("duplicate subject label %s", identity.Label())
		}
		seen[identity.Label()] = struct{}{}
		session.subjects = append(session.subjects, newSubject[F](identity))
	}
	return session, nil
}

// Initialize loads the starting frame, asks selector for a box per subject, binds trackers
// and records the first observation of every subject.
func (s *Session[F]) Initialize(selector BoxSelector[F]) error {
	if s.state != StateInitializing {
		return errors.Wrapf(ErrSessionState, "initialize in state %s", s.state)
	}
	frame, err := s.source.FrameAt(s.startingFrame)
	if err != nil {
		return errors.Wrapf(err, "Can't read starting frame %d", s.startingFrame)
	}
	s.current = frame
	boxes := make([]BBox, len(s.subjects))
	for i, subject := range s.subjects {
		box, err := selector.SelectBox(frame.Image, subject.Identity)
		if err != nil {
			return errors.Wrapf(err, "Can't select subject %s", subject.Label())
		}
		if box.Empty() {
			return errors.Wrapf(ErrSelectionCancelled, "empty box for subject %s", subject.Label())
		}
		err = subject.rebind(s.newTracker, s.method, frame.Image, box)
		if err != nil {
			return err
		}
		boxes[i] = box
	}
	for i, subject := range s.subjects {
		subject.trail = subject.trail[:0]
		subject.appendRecord(TrailRecord{Frame: frame.Index, Time: frame.Time, Box: boxes[i]})
	}
	s.currentFrame = frame.Index
	s.state = StateRunning
	Opsf("session started at frame %d of %d with %d subjects (%s tracker)", s.currentFrame, s.totalFrames, len(s.subjects), s.method)
	return nil
}

// Step is the outcome of a single Advance call
type Step[F any] struct {
	Frame int
	Time  time.Duration
	// Rendered frame
	Image F
	// Subjects whose tracker lost them on this frame. Their trails have a gap at Frame
	Lost []LostError
}

// Advance reads the next frame, updates every subject's tracker and records found positions.
// Returns ErrFrameExhausted once the video is over; trails are persisted exactly once at that moment.
func (s *Session[F]) Advance() (Step[F], error) {
	if s.state == StateFinished {
		return Step[F]{}, ErrFrameExhausted
	}
	if s.state != StateRunning {
		return Step[F]{}, errors.Wrapf(ErrSessionState, "advance in state %s", s.state)
	}
	frame, err := s.source.FrameAt(s.currentFrame + 1)
	if err != nil {
		if errors.Is(err, ErrFrameExhausted) {
			s.currentFrame = s.totalFrames
			s.state = StateFinished
			Opsf("video exhausted after %d frames", s.totalFrames)
			if err := s.Finalize(); err != nil {
				return Step[F]{}, err
			}
			return Step[F]{}, ErrFrameExhausted
		}
		return Step[F]{}, errors.Wrapf(err, "Can't read frame %d", s.currentFrame+1)
	}
	s.current = frame

	// Stage every update first: a frame is committed for all subjects or for none
	boxes := make([]BBox, len(s.subjects))
	found := make([]bool, len(s.subjects))
	for i, subject := range s.subjects {
		if subject.tracker == nil {
			continue
		}
		boxes[i], found[i] = subject.tracker.Update(frame.Image)
	}

	step := Step[F]{
		Frame: frame.Index,
		Time:  frame.Time,
	}
	marks := make([]Mark, len(s.subjects))
	for i, subject := range s.subjects {
		marks[i] = Mark{Label: subject.Label(), Color: subject.Color, Box: boxes[i]}
		if !found[i] {
			lost := LostError{Subject: subject.Label(), Frame: frame.Index}
			step.Lost = append(step.Lost, lost)
			Opsf("%v", lost)
			marks[i].Lost = true
			if last, ok := subject.trail.Last(); ok {
				marks[i].Box = last.Box
			}
			continue
		}
		subject.appendRecord(TrailRecord{Frame: frame.Index, Time: frame.Time, Box: boxes[i]})
	}
	s.currentFrame = frame.Index
	step.Image = s.annotator.Annotate(frame, marks, s.totalFrames)
	Tracef("frame %d/%d: %d subjects updated, %d lost", frame.Index, s.totalFrames, len(s.subjects)-len(step.Lost), len(step.Lost))
	return step, nil
}

// RestartTracker replaces tracker of the subject at index with a new one bound to box on the current frame.
// The most recent record of the subject is overwritten, not appended.
func (s *Session[F]) RestartTracker(index int, box BBox) error {
	if index < 0 || index >= len(s.subjects) {
		return errors.Wrapf(ErrInvalidIndex, "subject index %d out of range [0, %d)", index, len(s.subjects))
	}
	if s.state != StateRunning && s.state != StatePausedForROI {
		return errors.Wrapf(ErrSessionState, "restart in state %s", s.state)
	}
	if box.Empty() {
		return errors.Wrapf(ErrSelectionCancelled, "empty box for subject index %d", index)
	}
	subject := s.subjects[index]
	previous, _ := subject.trail.Last()
	err := subject.rebind(s.newTracker, s.method, s.current.Image, box)
	if err != nil {
		return err
	}
	subject.overwriteLast(TrailRecord{Frame: s.currentFrame, Time: s.current.Time, Box: box})
	Opsf("tracker of subject %s restarted at frame %d (overlap with previous box %.2f)", subject.Label(), s.currentFrame, IoU(previous.Box, box))
	return nil
}

// Rewind goes back steps+1 frames (never before the starting frame), drops trail records
// past that frame and re-seeds every tracker from its subject's last kept record.
func (s *Session[F]) Rewind(steps int) error {
	if steps < 0 {
		return errors.Wrapf(ErrInvalidIndex, "negative rewind steps %d", steps)
	}
	if s.state != StateRunning {
		return errors.Wrapf(ErrSessionState, "rewind in state %s", s.state)
	}
	target := maxInt(s.startingFrame, s.currentFrame-steps-1)
	s.state = StateRewinding
	defer func() {
		s.state = StateRunning
	}()
	frame, err := s.source.FrameAt(target)
	if err != nil {
		return errors.Wrapf(err, "Can't read frame %d for rewind", target)
	}
	s.current = frame
	s.currentFrame = target
	var rebindErr error
	for _, subject := range s.subjects {
		subject.trail = subject.trail.truncateAfter(target)
		last, ok := subject.trail.Last()
		if !ok {
			continue
		}
		if err := subject.rebind(s.newTracker, s.method, frame.Image, last.Box); err != nil {
			Opsf("rewind: %v", err)
			if rebindErr == nil {
				rebindErr = err
			}
		}
	}
	Opsf("rewound to frame %d", target)
	return rebindErr
}

// AdjustPlaybackDelay changes delay between displayed frames by deltaMs. The result is clamped to 1ms
func (s *Session[F]) AdjustPlaybackDelay(deltaMs int) int {
	s.playbackDelayMs = maxInt(1, s.playbackDelayMs+deltaMs)
	Diagf("playback delay is %dms", s.playbackDelayMs)
	return s.playbackDelayMs
}

// Finalize persists every subject's trail and releases trackers.
// Once it succeeded further calls are no-op.
func (s *Session[F]) Finalize() error {
	if s.finalized {
		return nil
	}
	if s.state == StateInitializing {
		return errors.Wrap(ErrSessionState, "finalize before initialization")
	}
	trails := s.Subjects()
	if err := s.writer.WriteTrails(trails); err != nil {
		return errors.Wrap(err, "Can't persist trails")
	}
	s.finalized = true
	s.state = StateFinished
	s.releaseTrackers()
	Opsf("session finalized at frame %d: %d trails persisted", s.currentFrame, len(trails))
	return nil
}

// Close releases trackers and the frame source
func (s *Session[F]) Close() error {
	s.releaseTrackers()
	return s.source.Close()
}

func (s *Session[F]) releaseTrackers() {
	for _, subject := range s.subjects {
		if err := subject.release(); err != nil {
			Opsf("%v", err)
		}
	}
}

// State returns current state of the session
func (s *Session[F]) State() SessionState {
	return s.state
}

// CurrentFrame returns index of the last loaded frame. Equals TotalFrames once the video is exhausted
func (s *Session[F]) CurrentFrame() int {
	return s.currentFrame
}

// StartingFrame returns index of the frame where subjects were selected
func (s *Session[F]) StartingFrame() int {
	return s.startingFrame
}

// TotalFrames returns number of frames in the source
func (s *Session[F]) TotalFrames() int {
	return s.totalFrames
}

// PlaybackDelay returns delay between displayed frames
func (s *Session[F]) PlaybackDelay() time.Duration {
	return time.Duration(s.playbackDelayMs) * time.Millisecond
}

// Subjects returns snapshots of all subjects in session order
func (s *Session[F]) Subjects() []SubjectTrail {
	trails := make([]SubjectTrail, len(s.subjects))
	for i, subject := range s.subjects {
		trails[i] = subject.Snapshot()
	}
	return trails
}

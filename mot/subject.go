package mot

import (
	"image/color"
	"math/rand"
	"strconv"

	"github.com/pkg/errors"
)

// DefaultCaste is the caste label used when none is configured. It gives labels "t1", "t2", ...
const DefaultCaste = "t"

// Identity is the stable description of a tracked subject.
type Identity struct {
	ID    int
	Caste string
	Color color.RGBA
}

// Label returns the external identifier of the subject (caste followed by ID)
func (identity Identity) Label() string {
	return identity.Caste + strconv.Itoa(identity.ID)
}

// NewIdentities creates n identities numbered from 1. Castes are taken by position,
// the last caste repeats when the list is shorter than n.
func NewIdentities(n int, castes []string, seed int64) []Identity {
	colors := Palette(n, seed)
	identities := make([]Identity, n)
	for i := range identities {
		caste := DefaultCaste
		if len(castes) > 0 {
			caste = castes[minInt(i, len(castes)-1)]
		}
		identities[i] = Identity{
			ID:    i + 1,
			Caste: caste,
			Color: colors[i],
		}
	}
	return identities
}

// Palette returns n opaque display colors. The same seed always gives the same colors.
func Palette(n int, seed int64) []color.RGBA {
	rnd := rand.New(rand.NewSource(seed))
	colors := make([]color.RGBA, n)
	for i := range colors {
		colors[i] = color.RGBA{
			R: uint8(rnd.Intn(256)),
			G: uint8(rnd.Intn(256)),
			B: uint8(rnd.Intn(256)),
			A: 255,
		}
	}
	return colors
}

// SubjectTrail is a tracker-free snapshot of a subject: what persistence and analytics consume.
type SubjectTrail struct {
	Identity
	Trail Trail
}

// Subject is a tracked individual. It owns exactly one tracker handle at a time.
type Subject[F any] struct {
	Identity
	trail   Trail
	tracker Tracker[F]
}

func newSubject[F any](identity Identity) *Subject[F] {
	return &Subject[F]{
		Identity: identity,
		trail:    make(Trail, 0, 256),
	}
}

// Trail returns subject's trail. Be careful: this is not copy of trail, but reference to it
func (subject *Subject[F]) Trail() Trail {
	return subject.trail
}

// Snapshot returns copy of subject's identity and trail
func (subject *Subject[F]) Snapshot() SubjectTrail {
	return SubjectTrail{
		Identity: subject.Identity,
		Trail:    subject.trail.Clone(),
	}
}

// rebind destroys current tracker handle (if any) and creates a new one initialized with box on frame.
func (subject *Subject[F]) rebind(factory TrackerFactory[F], method TrackingMethod, frame F, box BBox) error {
	if err := subject.release(); err != nil {
		return err
	}
	tracker, err := factory(method)
	if err != nil {
		return errors.Wrapf(err, "Can't create %s tracker for subject %s", method, subject.Label())
	}
	if err := tracker.Init(frame, box); err != nil {
		_ = tracker.Close()
		return errors.Wrapf(err, "Can't init tracker for subject %s", subject.Label())
	}
	subject.tracker = tracker
	return nil
}

// release closes current tracker handle
func (subject *Subject[F]) release() error {
	if subject.tracker == nil {
		return nil
	}
	tracker := subject.tracker
	subject.tracker = nil
	if err := tracker.Close(); err != nil {
		return errors.Wrapf(err, "Can't close tracker of subject %s", subject.Label())
	}
	return nil
}

func (subject *Subject[F]) appendRecord(record TrailRecord) {
	subject.trail = append(subject.trail, record)
}

// overwriteLast replaces the most recent record (appends when trail is empty)
func (subject *Subject[F]) overwriteLast(record TrailRecord) {
	if len(subject.trail) == 0 {
		subject.trail = append(subject.trail, record)
		return
	}
	subject.trail[len(subject.trail)-1] = record
}

package mot

import (
	stderrors "errors"
	"math"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Interaction is the categorical state of a subject towards another subject on a frame
type Interaction uint8

const (
	NoInteraction Interaction = iota
	Encountering
)

func (interaction Interaction) String() string {
	switch interaction {
	case NoInteraction:
		return "no-interaction"
	case Encountering:
		return "encountering"
	default:
		return "unknown"
	}
}

// Track is a finalized subject trail prepared for encounter analysis.
// Raw records keep top-left coordinates; centers are derived once by Normalize.
type Track struct {
	Identity
	Records    Trail
	centers    []Point
	normalized bool
}

// NewTrack creates track from a subject snapshot. Records are copied
func NewTrack(trail SubjectTrail) *Track {
	return &Track{
		Identity: trail.Identity,
		Records:  trail.Trail.Clone(),
	}
}

// NewTracks creates tracks for every snapshot preserving order
func NewTracks(trails []SubjectTrail) []*Track {
	tracks := make([]*Track, len(trails))
	for i := range trails {
		tracks[i] = NewTrack(trails[i])
	}
	return tracks
}

// Normalize derives bounding box centers (x + width/2, y + height/2) of every record.
// It must be called exactly once: second call returns ErrAlreadyNormalized.
func (track *Track) Normalize() error {
	if track.normalized {
		return errors.Wrapf(ErrAlreadyNormalized, "subject %s", track.Label())
	}
	track.centers = make([]Point, len(track.Records))
	for i, record := range track.Records {
		track.centers[i] = record.Center()
	}
	track.normalized = true
	return nil
}

// Normalized reports whether Normalize has been called
func (track *Track) Normalized() bool {
	return track.normalized
}

// Centers returns normalized positions aligned with Records. Nil until Normalize is called
func (track *Track) Centers() []Point {
	return track.centers
}

// NormalizeAll normalizes every track
func NormalizeAll(tracks []*Track) error {
	for _, track := range tracks {
		if err := track.Normalize(); err != nil {
			return err
		}
	}
	return nil
}

// PairColumn holds derived columns of a subject towards Other, aligned with the subject's records.
// Distance is NaN on frames where Other has no record.
type PairColumn struct {
	Other       Identity
	Distance    []float64
	Interaction []Interaction
}

// AnalyzedTrail is a track with one PairColumn per other subject (in subjects order)
type AnalyzedTrail struct {
	Track   *Track
	Columns []PairColumn
}

// Column returns column towards subject with given label
func (trail AnalyzedTrail) Column(otherLabel string) (PairColumn, bool) {
	for _, column := range trail.Columns {
		if column.Other.Label() == otherLabel {
			return column, true
		}
	}
	return PairColumn{}, false
}

// Analysis is the outcome of encounter analysis
type Analysis struct {
	Threshold         float64
	FirstScannedFrame int
	Trails            []AnalyzedTrail
}

const (
	// DefaultEncounterThreshold is the default encounter distance (pixels)
	DefaultEncounterThreshold = 10.0
)

// EncounterAnalyzer computes pairwise distances and encounter labels for a closed set of tracks.
type EncounterAnalyzer struct {
	// Centers closer than threshold (strictly) are encountering. Pixels
	threshold float64
	// Frames below this index are not scanned for encounters. Default 0
	firstScannedFrame int
	// Max number of pairs computed in parallel. Default GOMAXPROCS
	workers int
}

// AnalyzerOption configures EncounterAnalyzer
type AnalyzerOption func(*EncounterAnalyzer)

// WithFirstScannedFrame excludes frames with lower index from encounter scanning.
// Distances are still computed for them.
func WithFirstScannedFrame(frame int) AnalyzerOption {
	return func(analyzer *EncounterAnalyzer) {
		analyzer.firstScannedFrame = frame
	}
}

// WithWorkers limits number of pairs computed in parallel. Non-positive value means GOMAXPROCS
func WithWorkers(workers int) AnalyzerOption {
	return func(analyzer *EncounterAnalyzer) {
		analyzer.workers = workers
	}
}

// NewEncounterAnalyzer creates new instance of EncounterAnalyzer
func NewEncounterAnalyzer(threshold float64, options ...AnalyzerOption) *EncounterAnalyzer {
	analyzer := &EncounterAnalyzer{
		threshold: threshold,
	}
	for _, option := range options {
		option(analyzer)
	}
	if analyzer.workers <= 0 {
		analyzer.workers = runtime.GOMAXPROCS(0)
	}
	return analyzer
}

// encounterKey addresses interaction state of subject towards other on a frame
type encounterKey struct {
	subject int
	other   int
	frame   int
}

// Analyze computes, for every ordered pair of tracks, distance and interaction columns.
//
// Every track must be normalized. A pair with an invalid trail or without shared frames
// is skipped: its columns keep NaN distances and no-interaction labels, and a PairError
// is joined into the returned error alongside the (partial) analysis.
func (analyzer *EncounterAnalyzer) Analyze(tracks []*Track) (*Analysis, error) {
	if analyzer.threshold <= 0 || math.IsNaN(analyzer.threshold) {
		return nil, errors.Errorf("encounter threshold must be positive, got %v", analyzer.threshold)
	}
	labels := make(map[string]struct{}, len(tracks))
	for _, track := range tracks {
		if !track.Normalized() {
			return nil, errors.Wrapf(ErrNotNormalized, "subject %s", track.Label())
		}
		if _, ok := labels[track.Label()]; ok {
			return nil, errors.Wrapf(ErrMalformedTrail, "duplicate subject label %s", track.Label())
		}
		labels[track.Label()] = struct{}{}
	}
	started := time.Now()
	n := len(tracks)
	invalid := make([]error, n)
	for i, track := range tracks {
		invalid[i] = track.Records.Validate()
	}

	analysis := &Analysis{
		Threshold:         analyzer.threshold,
		FirstScannedFrame: analyzer.firstScannedFrame,
		Trails:            make([]AnalyzedTrail, n),
	}
	for i, track := range tracks {
		columns := make([]PairColumn, 0, maxInt(0, n-1))
		for j, other := range tracks {
			if i == j {
				continue
			}
			column := PairColumn{
				Other:       other.Identity,
				Distance:    make([]float64, len(track.Records)),
				Interaction: make([]Interaction, len(track.Records)),
			}
			for k := range column.Distance {
				column.Distance[k] = math.NaN()
			}
			columns = append(columns, column)
		}
		analysis.Trails[i] = AnalyzedTrail{Track: track, Columns: columns}
	}

	// Distances. Every goroutine writes its own column only
	pairErrs := make([]error, n*n)
	var group errgroup.Group
	group.SetLimit(analyzer.workers)
	for i := range tracks {
		for j := range tracks {
			if i == j {
				continue
			}
			column := &analysis.Trails[i].Columns[columnIndex(i, j)]
			group.Go(func() error {
				switch {
				case invalid[i] != nil:
					pairErrs[i*n+j] = invalid[i]
				case invalid[j] != nil:
					pairErrs[i*n+j] = invalid[j]
				default:
					pairErrs[i*n+j] = fillDistances(tracks[i], tracks[j], column.Distance)
				}
				return nil
			})
		}
	}
	_ = group.Wait()

	// Labels. Encounter on (A, B) marks both A towards B and B towards A
	encounters := make(map[encounterKey]struct{})
	for i, track := range tracks {
		for j := range tracks {
			if i == j || pairErrs[i*n+j] != nil {
				continue
			}
			distances := analysis.Trails[i].Columns[columnIndex(i, j)].Distance
			for k, record := range track.Records {
				if record.Frame < analyzer.firstScannedFrame {
					continue
				}
				if distance := distances[k]; !math.IsNaN(distance) && distance < analyzer.threshold {
					encounters[encounterKey{subject: i, other: j, frame: record.Frame}] = struct{}{}
					encounters[encounterKey{subject: j, other: i, frame: record.Frame}] = struct{}{}
				}
			}
		}
	}
	var errs []error
	for i, track := range tracks {
		for j, other := range tracks {
			if i == j {
				continue
			}
			if err := pairErrs[i*n+j]; err != nil {
				errs = append(errs, PairError{Subject: track.Label(), Other: other.Label(), Err: err})
				continue
			}
			interactions := analysis.Trails[i].Columns[columnIndex(i, j)].Interaction
			for k, record := range track.Records {
				if _, ok := encounters[encounterKey{subject: i, other: j, frame: record.Frame}]; ok {
					interactions[k] = Encountering
				}
			}
		}
	}
	Diagf("encounter analysis of %d subjects took %s (%d encountering entries, %d failed pairs)", n, time.Since(started), len(encounters), len(errs))
	return analysis, stderrors.Join(errs...)
}

// fillDistances writes distance from a to b on every frame both tracks share
func fillDistances(a, b *Track, out []float64) error {
	shared := 0
	k := 0
	for i, record := range a.Records {
		for k < len(b.Records) && b.Records[k].Frame < record.Frame {
			k++
		}
		if k == len(b.Records) {
			break
		}
		if b.Records[k].Frame != record.Frame {
			continue
		}
		out[i] = euclideanDistance(a.centers[i], b.centers[k])
		shared++
	}
	if shared == 0 {
		return errors.Wrapf(ErrMalformedTrail, "subjects %s and %s share no frames", a.Label(), b.Label())
	}
	return nil
}

// columnIndex maps subject index j to position in columns of subject i
func columnIndex(i, j int) int {
	if j < i {
		return j
	}
	return j - 1
}

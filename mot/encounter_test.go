package mot

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
)

type position struct {
	frame int
	x, y  int
}

// makeTrack builds a normalized track whose centers are exactly at given positions
func makeTrack(t *testing.T, id int, positions ...position) *Track {
	t.Helper()
	trail := make(Trail, len(positions))
	for i, p := range positions {
		trail[i] = TrailRecord{Frame: p.frame, Box: NewBBox(p.x-2, p.y-2, 4, 4)}
	}
	track := NewTrack(SubjectTrail{Identity: Identity{ID: id, Caste: "t"}, Trail: trail})
	if err := track.Normalize(); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	return track
}

func column(t *testing.T, analysis *Analysis, subject int, other string) PairColumn {
	t.Helper()
	c, ok := analysis.Trails[subject].Column(other)
	if !ok {
		t.Fatalf("No column towards %s for subject %s", other, analysis.Trails[subject].Track.Label())
	}
	return c
}

func TestTrackNormalizeOnce(t *testing.T) {
	track := NewTrack(SubjectTrail{
		Identity: Identity{ID: 1, Caste: "t"},
		Trail:    Trail{{Frame: 0, Box: NewBBox(10, 20, 4, 6)}},
	})
	if track.Normalized() || track.Centers() != nil {
		t.Error("New track should not be normalized")
	}
	if err := track.Normalize(); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if diff := cmp.Diff([]Point{{X: 12, Y: 23}}, track.Centers()); diff != "" {
		t.Errorf("Centers mismatch (-want +got):\n%s", diff)
	}
	if err := track.Normalize(); !errors.Is(err, ErrAlreadyNormalized) {
		t.Errorf("Expected ErrAlreadyNormalized, got %v", err)
	}
	// Raw records are never changed
	if track.Records[0].Box != NewBBox(10, 20, 4, 6) {
		t.Errorf("Raw box changed: %v", track.Records[0].Box)
	}
}

func TestAnalyzeRequiresNormalizedTracks(t *testing.T) {
	normalized := makeTrack(t, 1, position{0, 0, 0})
	raw := NewTrack(SubjectTrail{Identity: Identity{ID: 2, Caste: "t"}, Trail: Trail{{Frame: 0, Box: boxA}}})
	analysis, err := NewEncounterAnalyzer(DefaultEncounterThreshold).Analyze([]*Track{normalized, raw})
	if !errors.Is(err, ErrNotNormalized) {
		t.Errorf("Expected ErrNotNormalized, got %v", err)
	}
	if analysis != nil {
		t.Error("No analysis expected for raw tracks")
	}
	if _, err := NewEncounterAnalyzer(0).Analyze([]*Track{normalized}); err == nil {
		t.Error("Expected error for non-positive threshold")
	}
}

func TestAnalyzeSingleSharedFrame(t *testing.T) {
	cases := []struct {
		threshold float64
		expected  Interaction
	}{
		{10, Encountering},
		{4, NoInteraction},
		// Strictly less than threshold
		{5, NoInteraction},
	}
	for _, c := range cases {
		a := makeTrack(t, 1, position{1, 0, 0})
		b := makeTrack(t, 2, position{1, 3, 4})
		analysis, err := NewEncounterAnalyzer(c.threshold).Analyze([]*Track{a, b})
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		ab := column(t, analysis, 0, "t2")
		ba := column(t, analysis, 1, "t1")
		if math.Abs(ab.Distance[0]-5) > eps || math.Abs(ba.Distance[0]-5) > eps {
			t.Errorf("Expected distance 5, got %v and %v", ab.Distance[0], ba.Distance[0])
		}
		if ab.Interaction[0] != c.expected || ba.Interaction[0] != c.expected {
			t.Errorf("Threshold %v: expected %s both ways, got %s and %s", c.threshold, c.expected, ab.Interaction[0], ba.Interaction[0])
		}
	}
}

func TestAnalyzeSymmetry(t *testing.T) {
	tracks := []*Track{
		makeTrack(t, 1, position{0, 0, 0}, position{1, 2, 0}, position{2, 4, 0}, position{3, 6, 0}),
		makeTrack(t, 2, position{0, 30, 0}, position{1, 20, 0}, position{2, 10, 0}, position{3, 0, 0}),
		makeTrack(t, 3, position{1, 0, 3}, position{3, 0, 40}),
	}
	analysis, err := NewEncounterAnalyzer(DefaultEncounterThreshold, WithWorkers(2)).Analyze(tracks)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	for i, track := range tracks {
		for j, other := range tracks {
			if i == j {
				continue
			}
			forward := column(t, analysis, i, other.Label())
			backward := column(t, analysis, j, track.Label())
			for k, record := range track.Records {
				m := other.Records.Index(record.Frame)
				if m < 0 {
					if !math.IsNaN(forward.Distance[k]) || forward.Interaction[k] != NoInteraction {
						t.Errorf("%s->%s frame %d: expected gap, got %v %s", track.Label(), other.Label(), record.Frame, forward.Distance[k], forward.Interaction[k])
					}
					continue
				}
				if math.Abs(forward.Distance[k]-backward.Distance[m]) > eps {
					t.Errorf("%s<->%s frame %d: distances differ %v != %v", track.Label(), other.Label(), record.Frame, forward.Distance[k], backward.Distance[m])
				}
				if forward.Interaction[k] != backward.Interaction[m] {
					t.Errorf("%s<->%s frame %d: interactions differ %s != %s", track.Label(), other.Label(), record.Frame, forward.Interaction[k], backward.Interaction[m])
				}
			}
		}
	}
	// t1 and t2 meet on frames 2 (distance 6) and 3 (distance 6)
	expected := []Interaction{NoInteraction, NoInteraction, Encountering, Encountering}
	if diff := cmp.Diff(expected, column(t, analysis, 0, "t2").Interaction); diff != "" {
		t.Errorf("Interactions mismatch (-want +got):\n%s", diff)
	}
	// t3 is close to t1 only on frame 1
	if diff := cmp.Diff([]Interaction{Encountering, NoInteraction}, column(t, analysis, 2, "t1").Interaction); diff != "" {
		t.Errorf("Interactions mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeGapsAreNaN(t *testing.T) {
	a := makeTrack(t, 1, position{0, 0, 0}, position{1, 0, 0}, position{2, 0, 0})
	b := makeTrack(t, 2, position{0, 1, 0}, position{2, 1, 0})
	analysis, err := NewEncounterAnalyzer(DefaultEncounterThreshold).Analyze([]*Track{a, b})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	ab := column(t, analysis, 0, "t2")
	expected := []float64{1, math.NaN(), 1}
	if diff := cmp.Diff(expected, ab.Distance, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("Distances mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Interaction{Encountering, NoInteraction, Encountering}, ab.Interaction); diff != "" {
		t.Errorf("Interactions mismatch (-want +got):\n%s", diff)
	}
	if len(column(t, analysis, 1, "t1").Distance) != 2 {
		t.Error("Columns must stay aligned with the subject's own records")
	}
}

func TestAnalyzeFirstScannedFrame(t *testing.T) {
	a := makeTrack(t, 1, position{0, 0, 0}, position{1, 0, 0})
	b := makeTrack(t, 2, position{0, 1, 0}, position{1, 1, 0})
	analysis, err := NewEncounterAnalyzer(DefaultEncounterThreshold, WithFirstScannedFrame(1)).Analyze([]*Track{a, b})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	ab := column(t, analysis, 0, "t2")
	if diff := cmp.Diff([]float64{1, 1}, ab.Distance); diff != "" {
		t.Errorf("Distances should be computed for every shared frame (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Interaction{NoInteraction, Encountering}, ab.Interaction); diff != "" {
		t.Errorf("Interactions mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeMalformedPair(t *testing.T) {
	a := makeTrack(t, 1, position{0, 0, 0}, position{1, 0, 0})
	b := makeTrack(t, 2, position{5, 0, 0}, position{6, 0, 0})
	c := makeTrack(t, 3, position{0, 1, 0}, position{6, 1, 0})
	analysis, err := NewEncounterAnalyzer(DefaultEncounterThreshold).Analyze([]*Track{a, b, c})
	if !errors.Is(err, ErrMalformedTrail) {
		t.Fatalf("Expected ErrMalformedTrail, got %v", err)
	}
	if analysis == nil {
		t.Fatal("Analysis of valid pairs should be returned")
	}
	var pairErr PairError
	if !errors.As(err, &pairErr) {
		t.Fatalf("Expected PairError, got %T", err)
	}
	if !((pairErr.Subject == "t1" && pairErr.Other == "t2") || (pairErr.Subject == "t2" && pairErr.Other == "t1")) {
		t.Errorf("Unexpected failed pair %s -> %s", pairErr.Subject, pairErr.Other)
	}
	ab := column(t, analysis, 0, "t2")
	if diff := cmp.Diff([]float64{math.NaN(), math.NaN()}, ab.Distance, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("Failed pair should keep NaN distances (-want +got):\n%s", diff)
	}
	// Other pairs are not affected
	if diff := cmp.Diff([]Interaction{Encountering, NoInteraction}, column(t, analysis, 0, "t3").Interaction); diff != "" {
		t.Errorf("Interactions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Interaction{NoInteraction, Encountering}, column(t, analysis, 1, "t3").Interaction); diff != "" {
		t.Errorf("Interactions mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeInvalidTrail(t *testing.T) {
	a := makeTrack(t, 1, position{0, 0, 0}, position{1, 0, 0})
	b := makeTrack(t, 2, position{1, 0, 0}, position{0, 0, 0})
	_, err := NewEncounterAnalyzer(DefaultEncounterThreshold).Analyze([]*Track{a, b})
	if !errors.Is(err, ErrMalformedTrail) {
		t.Errorf("Expected ErrMalformedTrail, got %v", err)
	}
	dup := makeTrack(t, 1, position{0, 0, 0})
	if _, err := NewEncounterAnalyzer(DefaultEncounterThreshold).Analyze([]*Track{a, dup}); !errors.Is(err, ErrMalformedTrail) {
		t.Errorf("Expected ErrMalformedTrail for duplicate labels, got %v", err)
	}
}

func TestAnalyzeWorkersGiveSameResult(t *testing.T) {
	build := func() []*Track {
		tracks := make([]*Track, 0, 5)
		for id := 1; id <= 5; id++ {
			positions := make([]position, 0, 30)
			for frame := 0; frame < 30; frame++ {
				if (frame+id)%7 == 0 {
					continue
				}
				positions = append(positions, position{frame, id * frame % 40, (id + frame) % 25})
			}
			tracks = append(tracks, makeTrack(t, id, positions...))
		}
		return tracks
	}
	sequential, err := NewEncounterAnalyzer(12, WithWorkers(1)).Analyze(build())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	parallel, err := NewEncounterAnalyzer(12, WithWorkers(8)).Analyze(build())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	for i := range sequential.Trails {
		if diff := cmp.Diff(sequential.Trails[i].Columns, parallel.Trails[i].Columns, cmpopts.EquateNaNs()); diff != "" {
			t.Errorf("Subject %d columns mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestAnalysisEpisodesAndSummary(t *testing.T) {
	offsets := []int{20, 5, 5, 20, 5, 20}
	positionsA := make([]position, len(offsets))
	positionsB := make([]position, len(offsets))
	for frame, offset := range offsets {
		positionsA[frame] = position{frame, 0, 0}
		positionsB[frame] = position{frame, offset, 0}
	}
	tracks := []*Track{makeTrack(t, 1, positionsA...), makeTrack(t, 2, positionsB...)}
	analysis, err := NewEncounterAnalyzer(DefaultEncounterThreshold).Analyze(tracks)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	expectedEpisodes := []Episode{
		{Subject: "t1", Other: "t2", StartFrame: 1, EndFrame: 2, Frames: 2, MinDistance: 5},
		{Subject: "t1", Other: "t2", StartFrame: 4, EndFrame: 4, Frames: 1, MinDistance: 5},
	}
	if diff := cmp.Diff(expectedEpisodes, analysis.Episodes()); diff != "" {
		t.Errorf("Episodes mismatch (-want +got):\n%s", diff)
	}

	summary := analysis.Summary()
	if len(summary) != 1 {
		t.Fatalf("Expected 1 pair, got %d", len(summary))
	}
	s := summary[0]
	if s.SharedFrames != 6 || s.EncounterFrames != 3 || s.Episodes != 2 {
		t.Errorf("Unexpected counts: %+v", s)
	}
	if math.Abs(s.MeanDistance-12.5) > eps || math.Abs(s.MinDistance-5) > eps {
		t.Errorf("Unexpected distances: mean %v, min %v", s.MeanDistance, s.MinDistance)
	}
}

func TestAnalysisSummaryWithoutSharedFrames(t *testing.T) {
	a := makeTrack(t, 1, position{0, 0, 0})
	b := makeTrack(t, 2, position{3, 0, 0})
	analysis, _ := NewEncounterAnalyzer(DefaultEncounterThreshold).Analyze([]*Track{a, b})
	summary := analysis.Summary()
	if len(summary) != 1 {
		t.Fatalf("Expected 1 pair, got %d", len(summary))
	}
	if summary[0].SharedFrames != 0 || !math.IsNaN(summary[0].MeanDistance) || !math.IsNaN(summary[0].MinDistance) {
		t.Errorf("Expected no shared frames and NaN distances, got %+v", summary[0])
	}
	if len(analysis.Episodes()) != 0 {
		t.Error("No episodes expected")
	}
}

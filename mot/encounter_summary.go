package mot

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Episode is a run of consecutive frames where two subjects are encountering
type Episode struct {
	Subject     string
	Other       string
	StartFrame  int
	EndFrame    int
	Frames      int
	MinDistance float64
}

// PairSummary aggregates encounter statistics for an unordered pair of subjects
type PairSummary struct {
	Subject         string
	Other           string
	SharedFrames    int
	EncounterFrames int
	Episodes        int
	MeanDistance    float64
	MinDistance     float64
}

// Episodes merges consecutive encountering frames of every unordered pair.
// Pairs are visited in subjects order, episodes of a pair in frame order.
func (analysis *Analysis) Episodes() []Episode {
	episodes := make([]Episode, 0)
	for i := range analysis.Trails {
		for j := i + 1; j < len(analysis.Trails); j++ {
			episodes = append(episodes, analysis.pairEpisodes(i, j)...)
		}
	}
	return episodes
}

func (analysis *Analysis) pairEpisodes(i, j int) []Episode {
	trail := analysis.Trails[i]
	column := trail.Columns[columnIndex(i, j)]
	episodes := make([]Episode, 0)
	var current *Episode
	for k, record := range trail.Track.Records {
		if column.Interaction[k] != Encountering {
			current = nil
			continue
		}
		if current != nil && record.Frame == current.EndFrame+1 {
			current.EndFrame = record.Frame
			current.Frames++
			current.MinDistance = math.Min(current.MinDistance, column.Distance[k])
			continue
		}
		episodes = append(episodes, Episode{
			Subject:     trail.Track.Label(),
			Other:       column.Other.Label(),
			StartFrame:  record.Frame,
			EndFrame:    record.Frame,
			Frames:      1,
			MinDistance: column.Distance[k],
		})
		current = &episodes[len(episodes)-1]
	}
	return episodes
}

// Summary returns statistics for every unordered pair in subjects order.
// Distances are NaN for pairs without shared frames.
func (analysis *Analysis) Summary() []PairSummary {
	summaries := make([]PairSummary, 0)
	for i, trail := range analysis.Trails {
		for j := i + 1; j < len(analysis.Trails); j++ {
			column := trail.Columns[columnIndex(i, j)]
			summary := PairSummary{
				Subject:      trail.Track.Label(),
				Other:        column.Other.Label(),
				Episodes:     len(analysis.pairEpisodes(i, j)),
				MeanDistance: math.NaN(),
				MinDistance:  math.NaN(),
			}
			distances := make([]float64, 0, len(column.Distance))
			for k, distance := range column.Distance {
				if math.IsNaN(distance) {
					continue
				}
				distances = append(distances, distance)
				if column.Interaction[k] == Encountering {
					summary.EncounterFrames++
				}
			}
			summary.SharedFrames = len(distances)
			if len(distances) > 0 {
				summary.MeanDistance = stat.Mean(distances, nil)
				summary.MinDistance = floats.Min(distances)
			}
			summaries = append(summaries, summary)
		}
	}
	return summaries
}

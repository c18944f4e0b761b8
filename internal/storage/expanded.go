package storage

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/LdDl/termites-go/mot"
)

const (
	// ExpandedDir is the folder (inside a trail folder) with analyzed trails
	ExpandedDir = "expanded"
	// EncountersFile lists encounter episodes of an analysis
	EncountersFile = "encounters.csv"
)

// EncountersHeader is the header of the encounters file
var EncountersHeader = []string{"subject", "other", "start_frame", "end_frame", "frames", "min_distance"}

// WriteExpanded writes analyzed trails and encounter episodes into <dir>/expanded
func WriteExpanded(dir string, analysis *mot.Analysis) error {
	out := filepath.Join(dir, ExpandedDir)
	if err := os.MkdirAll(out, 0o755); err != nil {
		return errors.Wrapf(err, "Can't create folder %s", out)
	}
	for _, trail := range analysis.Trails {
		path := filepath.Join(out, TrailFileName(trail.Track.Label()))
		err := writeFileAtomic(path, func(w io.Writer) error {
			return WriteExpandedCSV(w, trail)
		})
		if err != nil {
			return err
		}
	}
	path := filepath.Join(out, EncountersFile)
	return writeFileAtomic(path, func(w io.Writer) error {
		return WriteEncountersCSV(w, analysis.Episodes())
	})
}

// WriteExpandedCSV writes raw columns followed by distance_to_<label> and interaction_with_<label>
// for every other subject. Gaps give an empty distance.
func WriteExpandedCSV(w io.Writer, trail mot.AnalyzedTrail) error {
	writer := csv.NewWriter(w)
	header := append([]string(nil), TrailHeader...)
	for _, column := range trail.Columns {
		header = append(header, "distance_to_"+column.Other.Label(), "interaction_with_"+column.Other.Label())
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for k, record := range trail.Track.Records {
		row := recordRow(record)
		for _, column := range trail.Columns {
			row = append(row, formatDistance(column.Distance[k]), column.Interaction[k].String())
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteEncountersCSV writes one row per encounter episode
func WriteEncountersCSV(w io.Writer, episodes []mot.Episode) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(EncountersHeader); err != nil {
		return err
	}
	for _, episode := range episodes {
		row := []string{
			episode.Subject,
			episode.Other,
			strconv.Itoa(episode.StartFrame),
			strconv.Itoa(episode.EndFrame),
			strconv.Itoa(episode.Frames),
			formatDistance(episode.MinDistance),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatDistance(distance float64) string {
	if math.IsNaN(distance) {
		return ""
	}
	return strconv.FormatFloat(distance, 'f', 1, 64)
}

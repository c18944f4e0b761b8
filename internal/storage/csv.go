// Package storage persists trails: CSV trail folders, experiment metadata and the SQLite experiment store.
package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/LdDl/termites-go/mot"
)

// TrailHeader is the header of raw trail files
var TrailHeader = []string{"frame", "time", "x", "y", "width", "height"}

// FormatTime formats offset from the video start as HH:MM:SS.mmm
func FormatTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, (ms/60000)%60, (ms/1000)%60, ms%1000)
}

// ParseTime parses HH:MM:SS.mmm (milliseconds are optional)
func ParseTime(value string) (time.Duration, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, errors.Errorf("bad time %q, expected HH:MM:SS.mmm", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 {
		return 0, errors.Errorf("bad hours in time %q", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, errors.Errorf("bad minutes in time %q", value)
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || seconds < 0 || seconds >= 60 {
		return 0, errors.Errorf("bad seconds in time %q", value)
	}
	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	return d + (time.Duration(seconds*1000+0.5) * time.Millisecond), nil
}

func recordRow(record mot.TrailRecord) []string {
	return []string{
		strconv.Itoa(record.Frame),
		FormatTime(record.Time),
		strconv.Itoa(record.Box.X),
		strconv.Itoa(record.Box.Y),
		strconv.Itoa(record.Box.Width),
		strconv.Itoa(record.Box.Height),
	}
}

// WriteTrailCSV writes raw trail records. Coordinates are the top-left corner as recorded
func WriteTrailCSV(w io.Writer, trail mot.Trail) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(TrailHeader); err != nil {
		return err
	}
	for _, record := range trail {
		if err := writer.Write(recordRow(record)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadTrailCSV reads a trail written by WriteTrailCSV. Extra columns (e.g. expanded files) are ignored.
// Parse failures wrap mot.ErrMalformedTrail and name the source and line.
func ReadTrailCSV(r io.Reader, source string) (mot.Trail, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrapf(mot.ErrMalformedTrail, "%s: empty file", source)
	}
	if err != nil {
		return nil, errors.Wrapf(mot.ErrMalformedTrail, "%s: %v", source, err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	for _, name := range TrailHeader {
		if _, ok := columns[name]; !ok {
			return nil, errors.Wrapf(mot.ErrMalformedTrail, "%s: missing column %q", source, name)
		}
	}
	trail := make(mot.Trail, 0, 256)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(mot.ErrMalformedTrail, "%s:%d: %v", source, line, err)
		}
		record, err := parseRecord(row, columns)
		if err != nil {
			return nil, errors.Wrapf(mot.ErrMalformedTrail, "%s:%d: %v", source, line, err)
		}
		trail = append(trail, record)
	}
	if err := trail.Validate(); err != nil {
		return nil, errors.Wrap(err, source)
	}
	return trail, nil
}

func parseRecord(row []string, columns map[string]int) (mot.TrailRecord, error) {
	field := func(name string) (string, error) {
		i := columns[name]
		if i >= len(row) {
			return "", errors.Errorf("missing value for %q", name)
		}
		return strings.TrimSpace(row[i]), nil
	}
	ints := make(map[string]int, 5)
	for _, name := range []string{"frame", "x", "y", "width", "height"} {
		value, err := field(name)
		if err != nil {
			return mot.TrailRecord{}, err
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return mot.TrailRecord{}, errors.Errorf("bad %s %q", name, value)
		}
		ints[name] = n
	}
	value, err := field("time")
	if err != nil {
		return mot.TrailRecord{}, err
	}
	t, err := ParseTime(value)
	if err != nil {
		return mot.TrailRecord{}, err
	}
	return mot.TrailRecord{
		Frame: ints["frame"],
		Time:  t,
		Box:   mot.NewBBox(ints["x"], ints["y"], ints["width"], ints["height"]),
	}, nil
}

package storage

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/LdDl/termites-go/mot"
)

const trailSuffix = "-trail.csv"

// TrailFileName returns file name of the subject's trail
func TrailFileName(label string) string {
	return label + trailSuffix
}

// TrailDir writes raw trail files and experiment metadata into a folder.
type TrailDir struct {
	Dir  string
	Meta Meta
}

// NewTrailDir creates writer for dir. Meta subjects are rewritten from persisted trails
func NewTrailDir(dir string, meta Meta) *TrailDir {
	return &TrailDir{Dir: dir, Meta: meta}
}

// WriteTrails writes <label>-trail.csv for every subject and then meta.json
func (d *TrailDir) WriteTrails(trails []mot.SubjectTrail) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "Can't create trail folder %s", d.Dir)
	}
	for _, trail := range trails {
		path := filepath.Join(d.Dir, TrailFileName(trail.Label()))
		err := writeFileAtomic(path, func(w io.Writer) error {
			return WriteTrailCSV(w, trail.Trail)
		})
		if err != nil {
			return err
		}
	}
	meta := d.Meta
	identities := make([]mot.Identity, len(trails))
	for i := range trails {
		identities[i] = trails[i].Identity
	}
	meta.NSubjects = len(identities)
	meta.Subjects = subjectsMeta(identities)
	return WriteMeta(d.Dir, meta)
}

// writeFileAtomic writes through a temporary file renamed over path
func writeFileAtomic(path string, write func(w io.Writer) error) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".trail-*.csv")
	if err != nil {
		return errors.Wrapf(err, "Can't create temporary file for %s", path)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()
	writer := bufio.NewWriter(tmpFile)
	if err := write(writer); err != nil {
		return errors.Wrapf(err, "Can't write %s", path)
	}
	if err := writer.Flush(); err != nil {
		return errors.Wrapf(err, "Can't flush %s", path)
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrapf(err, "Can't close %s", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(err, "Can't write %s", path)
	}
	return nil
}

// LoadTrailDir reads raw trails of a folder in subject order.
// Order comes from meta.json; without it every *-trail.csv file is loaded sorted by subject.
func LoadTrailDir(dir string) ([]mot.SubjectTrail, Meta, error) {
	meta, err := ReadMeta(dir)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		meta, err = scanTrailDir(dir)
		if err != nil {
			return nil, Meta{}, err
		}
	default:
		return nil, Meta{}, err
	}
	identities, err := meta.Identities()
	if err != nil {
		return nil, Meta{}, errors.Wrapf(err, "Can't read subjects of %s", dir)
	}
	trails := make([]mot.SubjectTrail, len(identities))
	for i, identity := range identities {
		path := filepath.Join(dir, TrailFileName(identity.Label()))
		trail, err := readTrailFile(path)
		if err != nil {
			return nil, Meta{}, err
		}
		trails[i] = mot.SubjectTrail{Identity: identity, Trail: trail}
	}
	return trails, meta, nil
}

func readTrailFile(path string) (mot.Trail, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open trail %s", path)
	}
	defer file.Close()
	return ReadTrailCSV(bufio.NewReader(file), path)
}

// scanTrailDir builds metadata from trail file names
func scanTrailDir(dir string) (Meta, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+trailSuffix))
	if err != nil {
		return Meta{}, errors.Wrapf(err, "Can't list trails in %s", dir)
	}
	if len(paths) == 0 {
		return Meta{}, errors.Wrapf(mot.ErrMalformedTrail, "no trail files in %s", dir)
	}
	identities := make([]mot.Identity, 0, len(paths))
	for _, path := range paths {
		label := strings.TrimSuffix(filepath.Base(path), trailSuffix)
		identity, err := parseLabel(label)
		if err != nil {
			return Meta{}, errors.Wrapf(mot.ErrMalformedTrail, "%s: %v", path, err)
		}
		identities = append(identities, identity)
	}
	sort.Slice(identities, func(i, j int) bool {
		if identities[i].Caste != identities[j].Caste {
			return identities[i].Caste < identities[j].Caste
		}
		return identities[i].ID < identities[j].ID
	})
	colors := mot.Palette(len(identities), 1)
	for i := range identities {
		identities[i].Color = colors[i]
	}
	return Meta{
		Experiment: filepath.Base(dir),
		NSubjects:  len(identities),
		Subjects:   subjectsMeta(identities),
	}, nil
}

// parseLabel splits label into caste prefix and numeric ID
func parseLabel(label string) (mot.Identity, error) {
	cut := len(label)
	for cut > 0 && unicode.IsDigit(rune(label[cut-1])) {
		cut--
	}
	if cut == len(label) {
		return mot.Identity{}, errors.Errorf("label %q has no numeric id", label)
	}
	id, err := strconv.Atoi(label[cut:])
	if err != nil {
		return mot.Identity{}, errors.Wrapf(err, "label %q", label)
	}
	return mot.Identity{ID: id, Caste: label[:cut]}, nil
}

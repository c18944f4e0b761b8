package storage

import (
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/LdDl/termites-go/mot"
)

// MetaFile is the experiment metadata file name inside a trail folder
const MetaFile = "meta.json"

// SubjectMeta describes a subject in experiment metadata
type SubjectMeta struct {
	ID    int    `json:"id"`
	Caste string `json:"caste"`
	Label string `json:"label"`
	// Display color as #rrggbb
	Color string `json:"color"`
}

// Meta describes a tracking experiment
type Meta struct {
	RunID          string        `json:"run_id"`
	Experiment     string        `json:"experiment"`
	VideoPath      string        `json:"video_path"`
	NSubjects      int           `json:"n_subjects"`
	StartingFrame  int           `json:"starting_frame"`
	ResizeRatio    float64       `json:"resize_ratio"`
	TrackingMethod string        `json:"tracking_method"`
	CreatedAt      time.Time     `json:"created_at"`
	Subjects       []SubjectMeta `json:"subjects"`
}

// NewMeta creates metadata for a new run with a fresh run ID
func NewMeta(experiment, videoPath string, startingFrame int, resizeRatio float64, method mot.TrackingMethod, identities []mot.Identity) Meta {
	return Meta{
		RunID:          uuid.New().String(),
		Experiment:     experiment,
		VideoPath:      videoPath,
		NSubjects:      len(identities),
		StartingFrame:  startingFrame,
		ResizeRatio:    resizeRatio,
		TrackingMethod: method.String(),
		CreatedAt:      time.Now().UTC(),
		Subjects:       subjectsMeta(identities),
	}
}

func subjectsMeta(identities []mot.Identity) []SubjectMeta {
	subjects := make([]SubjectMeta, len(identities))
	for i, identity := range identities {
		subjects[i] = SubjectMeta{
			ID:    identity.ID,
			Caste: identity.Caste,
			Label: identity.Label(),
			Color: formatColor(identity.Color),
		}
	}
	return subjects
}

// Identities restores subject identities in metadata order
func (meta Meta) Identities() ([]mot.Identity, error) {
	identities := make([]mot.Identity, len(meta.Subjects))
	for i, subject := range meta.Subjects {
		c, err := parseColor(subject.Color)
		if err != nil {
			return nil, errors.Wrapf(err, "subject %s", subject.Label)
		}
		identities[i] = mot.Identity{ID: subject.ID, Caste: subject.Caste, Color: c}
		if identities[i].Label() != subject.Label {
			return nil, errors.Errorf("subject label %q doesn't match caste %q and id %d", subject.Label, subject.Caste, subject.ID)
		}
	}
	return identities, nil
}

// WriteMeta writes meta.json into dir
func WriteMeta(dir string, meta Meta) error {
	path := filepath.Join(dir, MetaFile)
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "Can't encode %s", path)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "Can't write %s", path)
	}
	return nil
}

// ReadMeta reads meta.json from dir. Returns error wrapping os.ErrNotExist when there is no such file
func ReadMeta(dir string) (Meta, error) {
	path := filepath.Join(dir, MetaFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, errors.Wrapf(err, "Can't read %s", path)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, errors.Wrapf(err, "Can't decode %s", path)
	}
	if meta.NSubjects != len(meta.Subjects) {
		return Meta{}, errors.Errorf("%s: n_subjects is %d but %d subjects are listed", path, meta.NSubjects, len(meta.Subjects))
	}
	return meta, nil
}

func formatColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func parseColor(value string) (color.RGBA, error) {
	c := color.RGBA{A: 255}
	if value == "" {
		return c, nil
	}
	if _, err := fmt.Sscanf(value, "#%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return color.RGBA{}, errors.Errorf("bad color %q, expected #rrggbb", value)
	}
	return c, nil
}

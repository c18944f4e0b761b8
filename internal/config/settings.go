package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/LdDl/termites-go/mot"
)

const (
	defaultResizeRatio     = 1.0
	defaultSubjects        = 2
	defaultMethod          = "kcf"
	defaultDelayStepMs     = 5
	defaultRewindSteps     = 10
	defaultColorSeed       = 1
	defaultOutputPath      = "data"
	defaultExperiment      = "experiment"
	maxResizeRatio         = 4.0
	defaultFirstScanned    = 0
	defaultAnalysisWorkers = 0
)

// Settings is the resolved configuration: defaults, then file values, then CLI flags.
type Settings struct {
	VideoPath   string
	ResizeRatio float64

	Subjects        int
	Castes          []string
	Method          string
	StartingFrame   int
	PlaybackDelayMs int
	DelayStepMs     int
	RewindSteps     int
	ColorSeed       int64

	OutputPath string
	Experiment string
	Database   string

	Threshold         float64
	FirstScannedFrame int
	Workers           int
}

// Defaults returns settings used when neither file nor flags set a value
func Defaults() Settings {
	return Settings{
		ResizeRatio:       defaultResizeRatio,
		Subjects:          defaultSubjects,
		Castes:            []string{mot.DefaultCaste},
		Method:            defaultMethod,
		PlaybackDelayMs:   mot.DefaultPlaybackDelayMs,
		DelayStepMs:       defaultDelayStepMs,
		RewindSteps:       defaultRewindSteps,
		ColorSeed:         defaultColorSeed,
		OutputPath:        defaultOutputPath,
		Experiment:        defaultExperiment,
		Threshold:         mot.DefaultEncounterThreshold,
		FirstScannedFrame: defaultFirstScanned,
		Workers:           defaultAnalysisWorkers,
	}
}

// Flag names file values are bound to. A file value is skipped when its flag was set explicitly
const (
	FlagVideo      = "video"
	FlagResize     = "resize"
	FlagSubjects   = "subjects"
	FlagCastes     = "castes"
	FlagMethod     = "method"
	FlagStart      = "start"
	FlagDelay      = "delay"
	FlagDelayStep  = "delay-step"
	FlagRewind     = "rewind"
	FlagColorSeed  = "color-seed"
	FlagOutput     = "output"
	FlagExperiment = "experiment"
	FlagDB         = "db"
	FlagThreshold  = "threshold"
	FlagFirstFrame = "first-frame"
	FlagWorkers    = "workers"
)

// Merge copies file values into settings, except for flags reported as changed
func (fc FileConfig) Merge(settings *Settings, changed func(flag string) bool) {
	if changed == nil {
		changed = func(string) bool { return false }
	}
	setString(changed, FlagVideo, &settings.VideoPath, fc.Video.Path)
	setFloat(changed, FlagResize, &settings.ResizeRatio, fc.Video.ResizeRatio)

	setInt(changed, FlagSubjects, &settings.Subjects, fc.Tracking.Subjects)
	if fc.Tracking.Castes != nil && !changed(FlagCastes) {
		settings.Castes = append([]string(nil), fc.Tracking.Castes...)
	}
	setString(changed, FlagMethod, &settings.Method, fc.Tracking.Method)
	setInt(changed, FlagStart, &settings.StartingFrame, fc.Tracking.StartingFrame)
	setInt(changed, FlagDelay, &settings.PlaybackDelayMs, fc.Tracking.PlaybackDelayMs)
	setInt(changed, FlagDelayStep, &settings.DelayStepMs, fc.Tracking.DelayStepMs)
	setInt(changed, FlagRewind, &settings.RewindSteps, fc.Tracking.RewindSteps)
	if fc.Tracking.ColorSeed != nil && !changed(FlagColorSeed) {
		settings.ColorSeed = *fc.Tracking.ColorSeed
	}

	setString(changed, FlagOutput, &settings.OutputPath, fc.Output.Path)
	setString(changed, FlagExperiment, &settings.Experiment, fc.Output.Experiment)
	setString(changed, FlagDB, &settings.Database, fc.Output.Database)

	setFloat(changed, FlagThreshold, &settings.Threshold, fc.Analysis.Threshold)
	setInt(changed, FlagFirstFrame, &settings.FirstScannedFrame, fc.Analysis.FirstScannedFrame)
	setInt(changed, FlagWorkers, &settings.Workers, fc.Analysis.Workers)
}

func setString(changed func(string) bool, flag string, target, value *string) {
	if value == nil || changed(flag) {
		return
	}
	*target = *value
}

func setInt(changed func(string) bool, flag string, target, value *int) {
	if value == nil || changed(flag) {
		return
	}
	*target = *value
}

func setFloat(changed func(string) bool, flag string, target, value *float64) {
	if value == nil || changed(flag) {
		return
	}
	*target = *value
}

// TrackingMethod parses configured tracker backend
func (s Settings) TrackingMethod() (mot.TrackingMethod, error) {
	return mot.ParseTrackingMethod(s.Method)
}

// ExperimentDir is the folder where trails of the experiment are written
func (s Settings) ExperimentDir() string {
	return filepath.Join(s.OutputPath, s.Experiment)
}

// ValidateTracking checks settings used by a tracking session
func (s Settings) ValidateTracking() error {
	if strings.TrimSpace(s.VideoPath) == "" {
		return errors.New("video.path (--video) is required")
	}
	if s.ResizeRatio <= 0 || s.ResizeRatio > maxResizeRatio {
		return errors.Errorf("video.resize_ratio (--resize) must be in (0, %.0f], got %v", maxResizeRatio, s.ResizeRatio)
	}
	if s.Subjects < 1 {
		return errors.Errorf("tracking.subjects (--subjects) must be >= 1, got %d", s.Subjects)
	}
	for _, caste := range s.Castes {
		if strings.TrimSpace(caste) == "" {
			return errors.New("tracking.castes (--castes) must not contain empty labels")
		}
	}
	if _, err := s.TrackingMethod(); err != nil {
		return errors.Wrap(err, "tracking.method (--method)")
	}
	if s.StartingFrame < 0 {
		return errors.Errorf("tracking.starting_frame (--start) must be >= 0, got %d", s.StartingFrame)
	}
	if s.PlaybackDelayMs < 1 {
		return errors.Errorf("tracking.playback_delay_ms (--delay) must be >= 1, got %d", s.PlaybackDelayMs)
	}
	if s.DelayStepMs < 1 {
		return errors.Errorf("tracking.delay_step_ms (--delay-step) must be >= 1, got %d", s.DelayStepMs)
	}
	if s.RewindSteps < 0 {
		return errors.Errorf("tracking.rewind_steps (--rewind) must be >= 0, got %d", s.RewindSteps)
	}
	return s.validateOutput()
}

// ValidateAnalysis checks settings used by encounter analysis
func (s Settings) ValidateAnalysis() error {
	if !(s.Threshold > 0) {
		return errors.Errorf("analysis.threshold (--threshold) must be > 0, got %v", s.Threshold)
	}
	if s.FirstScannedFrame < 0 {
		return errors.Errorf("analysis.first_scanned_frame (--first-frame) must be >= 0, got %d", s.FirstScannedFrame)
	}
	if s.Workers < 0 {
		return errors.Errorf("analysis.workers (--workers) must be >= 0, got %d", s.Workers)
	}
	return nil
}

func (s Settings) validateOutput() error {
	if strings.TrimSpace(s.OutputPath) == "" {
		return errors.New("output.path (--output) must not be empty")
	}
	if strings.TrimSpace(s.Experiment) == "" || strings.ContainsAny(s.Experiment, `/\`) {
		return errors.Errorf("output.experiment (--experiment) must be a plain folder name, got %q", s.Experiment)
	}
	return nil
}

// DefaultTemplate returns the commented config file written by `termites config`
func DefaultTemplate() string {
	d := Defaults()
	return fmt.Sprintf(`# termites configuration
# Uncomment a value to enable it. CLI flags override config values.

[video]
# path = "footage/colony.mp4"   # Footage to track (required by "track")
# resize_ratio = %.1f            # Frame scale factor, (0, %.0f]

[tracking]
# subjects = %d                  # Number of tracked subjects
# castes = [%q]                 # Caste label per subject, the last one repeats
# method = %q                 # Tracker backend: mil, kcf or csrt
# starting_frame = %d            # Frame (0-based) where subjects are selected
# playback_delay_ms = %d         # Delay between displayed frames
# delay_step_ms = %d             # Delay change for faster/slower keys
# rewind_steps = %d             # Frames dropped by the rewind key
# color_seed = %d                # Seed of subject display colors

[output]
# path = %q                 # Root output directory
# experiment = %q     # Experiment folder under path
# database = ""                 # Optional SQLite experiment store

[analysis]
# threshold = %.1f              # Encounter distance between centers (pixels)
# first_scanned_frame = %d       # Frames below are not scanned for encounters
# workers = %d                   # Parallel pair computations, 0 = all CPUs
`,
		d.ResizeRatio, maxResizeRatio,
		d.Subjects,
		mot.DefaultCaste,
		d.Method,
		d.StartingFrame,
		d.PlaybackDelayMs,
		d.DelayStepMs,
		d.RewindSteps,
		d.ColorSeed,
		d.OutputPath,
		d.Experiment,
		d.Threshold,
		d.FirstScannedFrame,
		d.Workers,
	)
}

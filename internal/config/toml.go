// Package config provides experiment configuration, TOML parsing and XDG paths.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// FileConfig represents the TOML configuration file.
// Every value is a pointer: nil means "not set in file".
type FileConfig struct {
	Video    VideoConfig    `toml:"video"`
	Tracking TrackingConfig `toml:"tracking"`
	Output   OutputConfig   `toml:"output"`
	Analysis AnalysisConfig `toml:"analysis"`
}

// VideoConfig maps footage settings.
type VideoConfig struct {
	Path        *string  `toml:"path"`
	ResizeRatio *float64 `toml:"resize_ratio"`
}

// TrackingConfig maps tracking session settings.
type TrackingConfig struct {
	Subjects        *int     `toml:"subjects"`
	Castes          []string `toml:"castes"`
	Method          *string  `toml:"method"`
	StartingFrame   *int     `toml:"starting_frame"`
	PlaybackDelayMs *int     `toml:"playback_delay_ms"`
	DelayStepMs     *int     `toml:"delay_step_ms"`
	RewindSteps     *int     `toml:"rewind_steps"`
	ColorSeed       *int64   `toml:"color_seed"`
}

// OutputConfig maps output locations.
type OutputConfig struct {
	Path       *string `toml:"path"`
	Experiment *string `toml:"experiment"`
	Database   *string `toml:"database"`
}

// AnalysisConfig maps encounter analysis settings.
type AnalysisConfig struct {
	Threshold         *float64 `toml:"threshold"`
	FirstScannedFrame *int     `toml:"first_scanned_frame"`
	Workers           *int     `toml:"workers"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, errors.New("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, errors.Wrap(err, "failed to stat config")
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, errors.Wrapf(err, "failed to decode config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, errors.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
	}
	return cfg, nil
}

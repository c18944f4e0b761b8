package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/LdDl/termites-go/internal/config"
	"github.com/LdDl/termites-go/internal/storage"
	"github.com/LdDl/termites-go/internal/video"
	"github.com/LdDl/termites-go/mot"
)

func newTrackCmd() *cobra.Command {
	settings := config.Defaults()
	var configPath string
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Track subjects on a video interactively and write their trails",
		Long: `Track subjects on a video interactively and write their trails.

Keys: Esc/q quit, p/space pause, r rewind, +/- faster/slower, 1..9 restart subject N.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadSettings(cmd, &settings, configPath); err != nil {
				return err
			}
			return runTrack(cmd.Context(), settings)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", config.DefaultConfigPath(), "config file")
	flags.StringVar(&settings.VideoPath, config.FlagVideo, settings.VideoPath, "video file to track")
	flags.Float64Var(&settings.ResizeRatio, config.FlagResize, settings.ResizeRatio, "resize ratio applied to every frame")
	flags.IntVar(&settings.Subjects, config.FlagSubjects, settings.Subjects, "number of subjects")
	flags.StringSliceVar(&settings.Castes, config.FlagCastes, settings.Castes, "caste label per subject (last one repeats)")
	flags.StringVar(&settings.Method, config.FlagMethod, settings.Method, "tracker backend: mil, kcf or csrt")
	flags.IntVar(&settings.StartingFrame, config.FlagStart, settings.StartingFrame, "frame to select subjects on")
	flags.IntVar(&settings.PlaybackDelayMs, config.FlagDelay, settings.PlaybackDelayMs, "playback delay between frames (ms)")
	flags.IntVar(&settings.DelayStepMs, config.FlagDelayStep, settings.DelayStepMs, "delay change of faster/slower keys (ms)")
	flags.IntVar(&settings.RewindSteps, config.FlagRewind, settings.RewindSteps, "frames dropped by the rewind key")
	flags.Int64Var(&settings.ColorSeed, config.FlagColorSeed, settings.ColorSeed, "seed of subject colors")
	flags.StringVar(&settings.OutputPath, config.FlagOutput, settings.OutputPath, "output folder")
	flags.StringVar(&settings.Experiment, config.FlagExperiment, settings.Experiment, "experiment name (trail folder inside output)")
	flags.StringVar(&settings.Database, config.FlagDB, settings.Database, "also store trails in this SQLite database")
	return cmd
}

func runTrack(ctx context.Context, settings config.Settings) error {
	if err := settings.ValidateTracking(); err != nil {
		return err
	}
	method, err := settings.TrackingMethod()
	if err != nil {
		return err
	}
	source, err := video.Open(settings.VideoPath, settings.ResizeRatio)
	if err != nil {
		return err
	}

	identities := mot.NewIdentities(settings.Subjects, settings.Castes, settings.ColorSeed)
	meta := storage.NewMeta(settings.Experiment, settings.VideoPath, settings.StartingFrame, settings.ResizeRatio, method, identities)
	writers := []mot.TrailWriter{storage.NewTrailDir(settings.ExperimentDir(), meta)}
	if settings.Database != "" {
		store, err := storage.OpenStore(settings.Database)
		if err != nil {
			_ = source.Close()
			return err
		}
		defer store.Close()
		// Trails are persisted after an interrupt too
		writers = append(writers, store.Writer(context.WithoutCancel(ctx), meta))
	}

	annotator := video.NewAnnotator()
	defer annotator.Close()
	session, err := mot.NewSession[gocv.Mat](
		source,
		video.NewTracker,
		storage.MultiWriter(writers...),
		identities,
		mot.WithStartingFrame[gocv.Mat](settings.StartingFrame),
		mot.WithPlaybackDelay[gocv.Mat](settings.PlaybackDelayMs),
		mot.WithTrackingMethod[gocv.Mat](method),
		mot.WithAnnotator[gocv.Mat](annotator),
	)
	if err != nil {
		_ = source.Close()
		return err
	}
	defer session.Close()

	window := video.NewWindow("termites: "+settings.Experiment, mot.DefaultKeymap())
	defer window.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	mot.Opsf("tracking %d subjects on %s with %s, run %s", len(identities), settings.VideoPath, method, meta.RunID)
	err = session.Run(ctx, window, mot.RunOptions{
		RewindSteps: settings.RewindSteps,
		DelayStepMs: settings.DelayStepMs,
	})
	switch {
	case errors.Is(err, mot.ErrSelectionCancelled):
		return fmt.Errorf("subject selection cancelled, nothing written: %w", err)
	case errors.Is(err, context.Canceled):
		fmt.Printf("interrupted, trails written to %s\n", settings.ExperimentDir())
		return nil
	case err != nil:
		return err
	}
	fmt.Printf("trails written to %s\n", settings.ExperimentDir())
	return nil
}

package main

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/LdDl/termites-go/internal/config"
	"github.com/LdDl/termites-go/internal/storage"
	"github.com/LdDl/termites-go/mot"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4A4A4A"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
)

func newAnalyzeCmd() *cobra.Command {
	settings := config.Defaults()
	var configPath string
	cmd := &cobra.Command{
		Use:   "analyze <trail-folder>",
		Short: "Compute pairwise distances and encounters of a trail folder",
		Long: `Compute pairwise distances and encounters of a trail folder.

Expanded trails and encounters.csv are written into <trail-folder>/expanded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadSettings(cmd, &settings, configPath); err != nil {
				return err
			}
			return runAnalyze(cmd, args[0], settings)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", config.DefaultConfigPath(), "config file")
	flags.Float64Var(&settings.Threshold, config.FlagThreshold, settings.Threshold, "encounter distance threshold (pixels)")
	flags.IntVar(&settings.FirstScannedFrame, config.FlagFirstFrame, settings.FirstScannedFrame, "frames before this one are never labeled as encounters")
	flags.IntVar(&settings.Workers, config.FlagWorkers, settings.Workers, "parallel pair computations (0 means one per pair)")
	flags.StringVar(&settings.Database, config.FlagDB, settings.Database, "also store encounter episodes of the run in this SQLite database")
	return cmd
}

func runAnalyze(cmd *cobra.Command, dir string, settings config.Settings) error {
	if err := settings.ValidateAnalysis(); err != nil {
		return err
	}
	trails, meta, err := storage.LoadTrailDir(dir)
	if err != nil {
		return err
	}
	tracks := mot.NewTracks(trails)
	if err := mot.NormalizeAll(tracks); err != nil {
		return err
	}
	analyzer := mot.NewEncounterAnalyzer(
		settings.Threshold,
		mot.WithFirstScannedFrame(settings.FirstScannedFrame),
		mot.WithWorkers(settings.Workers),
	)
	// Failed pairs are reported after the partial results are written
	analysis, analyzeErr := analyzer.Analyze(tracks)
	if analysis == nil {
		return analyzeErr
	}
	if err := storage.WriteExpanded(dir, analysis); err != nil {
		return err
	}
	episodes := analysis.Episodes()
	out := cmd.OutOrStdout()
	printSummary(out, analysis.Summary())
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d encounter episodes at threshold %g, written to %s",
		len(episodes), analysis.Threshold, filepath.Join(dir, storage.ExpandedDir))))

	if settings.Database != "" {
		if meta.RunID == "" {
			mot.Opsf("%s has no %s, episodes are not stored", dir, storage.MetaFile)
			return analyzeErr
		}
		store, err := storage.OpenStore(settings.Database)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SaveEpisodes(cmd.Context(), meta.RunID, analysis.Threshold, episodes); err != nil {
			return err
		}
		mot.Opsf("%d episodes of run %s stored in %s", len(episodes), meta.RunID, settings.Database)
	}
	return analyzeErr
}

func printSummary(out io.Writer, summaries []mot.PairSummary) {
	rows := make([][]string, 0, len(summaries))
	for _, summary := range summaries {
		rows = append(rows, []string{
			summary.Subject,
			summary.Other,
			strconv.Itoa(summary.SharedFrames),
			strconv.Itoa(summary.EncounterFrames),
			strconv.Itoa(summary.Episodes),
			formatPixels(summary.MeanDistance),
			formatPixels(summary.MinDistance),
		})
	}
	fmt.Fprintln(out, newTable("subject", "other", "shared", "encountering", "episodes", "mean dist", "min dist").Rows(rows...).Render())
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func formatPixels(value float64) string {
	if math.IsNaN(value) {
		return "-"
	}
	return strconv.FormatFloat(value, 'f', 1, 64)
}

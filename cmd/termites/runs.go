package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/LdDl/termites-go/internal/config"
	"github.com/LdDl/termites-go/internal/storage"
)

func newRunsCmd() *cobra.Command {
	settings := config.Defaults()
	settings.Database = config.DefaultDBPath()
	var configPath string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List experiments stored in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadSettings(cmd, &settings, configPath); err != nil {
				return err
			}
			store, err := storage.OpenStore(settings.Database)
			if err != nil {
				return err
			}
			defer store.Close()
			experiments, err := store.ListExperiments(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(experiments) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("no experiments in "+settings.Database))
				return nil
			}
			rows := make([][]string, 0, len(experiments))
			for _, experiment := range experiments {
				rows = append(rows, []string{
					experiment.RunID,
					experiment.Experiment,
					experiment.CreatedAt.Local().Format("2006-01-02 15:04"),
					experiment.TrackingMethod,
					strconv.Itoa(experiment.NSubjects),
					strconv.Itoa(experiment.Records),
					strconv.Itoa(experiment.Encounters),
					experiment.VideoPath,
				})
			}
			fmt.Fprintln(out, newTable("run", "experiment", "created", "method", "subjects", "records", "encounters", "video").Rows(rows...).Render())
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultConfigPath(), "config file")
	cmd.Flags().StringVar(&settings.Database, config.FlagDB, settings.Database, "SQLite database")
	return cmd
}

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/ad/go-workshop-progress/internal/models"
	"github.com/ad/go-workshop-progress/internal/services"
	"github.com/spf13/cobra"
)

func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var track string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-step completion counts and the leaderboard of a track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			stats, err := services.NewStatisticsService(e.progressRepo, e.userRepo, e.logger).
				CalculateStats(cmd.Context(), models.TrackType(track))
			if err != nil {
				return err
			}

			return writeResult(cmd.OutOrStdout(), rootOpts.Format, stats, func(w io.Writer) error {
				return writeStatsText(w, stats)
			})
		},
	}

	cmd.Flags().StringVar(&track, "track", string(models.TrackIA), "track type (ia|ast)")
	return cmd
}

func writeStatsText(w io.Writer, stats *services.TrackStatistics) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Track %s: %d user(s), %d finished", stats.Track, stats.Users, stats.Finished)
	if stats.Invalid > 0 {
		fmt.Fprintf(&sb, ", %d invalid document(s)", stats.Invalid)
	}
	sb.WriteString("\n\n")

	for _, step := range stats.Steps {
		fmt.Fprintf(&sb, "  %-8s completed %-4d here now %d\n", step.StepID, step.Completed, step.Current)
	}

	if len(stats.Leaders) > 0 {
		sb.WriteString("\nLeaders:\n")
		for i, leader := range stats.Leaders {
			fmt.Fprintf(&sb, "%d. %s - %d step(s)\n", i+1, leader.Name, leader.Completed)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ad/go-workshop-progress/internal/models"
	"github.com/ad/go-workshop-progress/internal/services"
	"github.com/spf13/cobra"
)

func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		userID int64
		track  string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a user's progress on a track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return errors.New("--user is required")
			}

			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			details, err := e.userManager().GetUserProgressDetails(cmd.Context(), userID, models.TrackType(track))
			if err != nil {
				return err
			}

			return writeResult(cmd.OutOrStdout(), rootOpts.Format, details, func(w io.Writer) error {
				return writeDetailsText(w, details)
			})
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.Flags().StringVar(&track, "track", string(models.TrackIA), "track type (ia|ast)")
	return cmd
}

func writeDetailsText(w io.Writer, d *services.UserProgressDetails) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "User %d, track %s\n", d.UserID, d.Track)
	if !d.Stored {
		sb.WriteString("No stored progress\n")
	}
	if d.ParseProblem != "" {
		fmt.Fprintf(&sb, "Stored document is invalid: %s\n", d.ParseProblem)
	}
	fmt.Fprintf(&sb, "Current step: %s\n", d.Progress.CurrentStepID)

	for _, step := range d.Steps {
		marker := ""
		if step.IsAssessment {
			marker = " (assessment)"
		}
		line := fmt.Sprintf("  %-8s %s%s", step.StepID, step.State, marker)
		if vp, ok := d.Progress.VideoProgress[step.StepID]; ok {
			line += fmt.Sprintf("  video %.1f/%.1f", vp.Current, vp.Farthest)
		}
		sb.WriteString(line + "\n")
	}

	if len(d.Assessments) == 0 {
		sb.WriteString("Assessments: none\n")
	} else {
		fmt.Fprintf(&sb, "Assessments: %s\n", strings.Join(d.Assessments, ", "))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

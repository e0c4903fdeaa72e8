package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all progress and assessments of a user",
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

			result, err := e.userManager().ResetUserProgress(cmd.Context(), userID)
			if err != nil {
				return err
			}

			return writeResult(cmd.OutOrStdout(), rootOpts.Format, result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "user %d: removed %d progress document(s) and %d assessment(s)\n",
					result.UserID, result.ProgressDeleted, result.AssessmentsDeleted)
				return err
			})
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	return cmd
}

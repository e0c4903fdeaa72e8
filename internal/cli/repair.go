package cli

import (
	"fmt"
	"io"

	"github.com/ad/go-workshop-progress/internal/services"
	"github.com/spf13/cobra"
)

func NewRepairCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Normalize every stored progress document",
		Long: `Re-validates every stored progress document. Documents with stale
derived fields are rewritten; documents that cannot be parsed are reset to
the start of their track.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			report, err := services.NewProgressRepairer(e.progressRepo, nil, e.logger).RepairAll(cmd.Context())
			if err != nil {
				return err
			}

			return writeResult(cmd.OutOrStdout(), rootOpts.Format, report, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "scanned %d, repaired %d, reset %d, skipped %d\n",
					report.Scanned, report.Repaired, report.Reset, report.Skipped)
				return err
			})
		},
	}
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/scigo-workbench/linear"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

type resultsModel interface {
	Results() (*linear.Results, error)
}

func newSummaryCommand(opts *globalOptions) *cobra.Command {
	var (
		src    modelSource
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the regression summary of a saved model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			m, err := src.load(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			if !asJSON {
				s, err := m.Summary()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), s)
				return nil
			}

			rm, ok := m.(resultsModel)
			if !ok {
				return errors.NewValidationError("json", "model has no structured results", m.Name())
			}
			res, err := rm.Results()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	src.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the fit statistics as JSON")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"accountant/internal/dataset"
	"accountant/internal/format"
)

func newGoldenCmd(_ *globalOptions) *cobra.Command {
	var path, mode string
	cmd := &cobra.Command{
		Use:   "golden",
		Short: "List the cases of a golden set and their contracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := format.ParseMode(mode)
			if err != nil {
				return err
			}
			cases, err := dataset.LoadGoldenSet(path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), format.GoldenTable(cases, m))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "golden", "golden/golden_set.json", "Golden set JSON")
	cmd.Flags().StringVar(&mode, "format", "ascii", "Table format (ascii, markdown)")
	return cmd
}

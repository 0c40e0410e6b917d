package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"accountant/internal/evaluate"
	"accountant/internal/format"
	"accountant/internal/scorestore"
)

type runsOptions struct {
	dbPath string
	runID  string
	format string
}

func newRunsCmd(_ *globalOptions) *cobra.Command {
	o := &runsOptions{}
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded audit runs, or the scorecards of one grading run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := format.ParseMode(o.format)
			if err != nil {
				return err
			}
			st, err := scorestore.Open(o.dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			w := cmd.OutOrStdout()
			if o.runID != "" {
				cards, err := st.ListByRun(cmd.Context(), o.runID)
				if err != nil {
					return err
				}
				if len(cards) == 0 {
					return fmt.Errorf("no scorecards for run %s", o.runID)
				}
				counts, err := st.LabelCounts(cmd.Context(), o.runID)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, format.ScorecardTable(cards, mode))
				fmt.Fprintf(w, "\n%s: %d, %s: %d\n", evaluate.Pass, counts[evaluate.Pass], evaluate.Review, counts[evaluate.Review])
				return nil
			}

			runs, err := st.ListAuditRuns(cmd.Context())
			if err != nil {
				return err
			}
			tb := format.NewTable(mode)
			tb.Header("Run", "Concern", "Processed", "Verified", "Violations", "Coverage", "When")
			for _, r := range runs {
				tb.Row(r.RunID, r.ConcernID, r.TotalProcessed, r.ValidCases, r.Violations,
					format.Score(r.CoverageRatio), r.CreatedAt.Format(time.RFC3339))
			}
			fmt.Fprintln(w, tb.String())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.dbPath, "db", "accountant.db", "Score store path")
	f.StringVar(&o.runID, "run-id", "", "Show scorecards of this grading run")
	f.StringVar(&o.format, "format", "ascii", "Table format (ascii, markdown)")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"accountant/internal/audit"
	"accountant/internal/dataset"
	"accountant/internal/format"
	"accountant/internal/metrics"
	"accountant/internal/scorestore"
	"accountant/internal/wiring"
)

type pipelineOptions struct {
	registry    string
	aliases     string
	outputs     string
	out         string
	concern     string
	runID       string
	workers     int
	lenient     bool
	dbPath      string
	metricsFile string
	format      string
}

func newPipelineCmd(g *globalOptions) *cobra.Command {
	o := &pipelineOptions{}
	cmd := &cobra.Command{
		Use:   "pipeline FILES...",
		Short: "Audit generated cases, then grade candidate outputs against the fresh golden set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := format.ParseMode(o.format)
			if err != nil {
				return err
			}
			if o.outputs == "" {
				return fmt.Errorf("--outputs is required")
			}
			reg, res, err := loadRegistry(o.registry, o.aliases)
			if err != nil {
				return err
			}
			cases, err := dataset.LoadRawCases(args...)
			if err != nil {
				return err
			}
			cands, err := dataset.LoadCandidates(o.outputs)
			if err != nil {
				return err
			}
			concern := o.concern
			if concern == "" {
				concern = reg.Metric()
			}
			flow := wiring.Flow{
				Registry:   reg,
				Resolver:   res,
				Policy:     g.policy,
				Cases:      cases,
				Candidates: cands,
				ConcernID:  concern,
				OutDir:     o.out,
				RunID:      o.runID,
				Workers:    o.workers,
				Lenient:    o.lenient,
			}
			if o.dbPath != "" {
				st, err := scorestore.Open(o.dbPath)
				if err != nil {
					return err
				}
				defer st.Close()
				flow.Store = st
			}
			if o.metricsFile != "" {
				flow.Metrics = metrics.New()
			}

			outcome, err := wiring.Run(cmd.Context(), flow)
			if err != nil {
				return err
			}
			if flow.Metrics != nil {
				if err := flow.Metrics.WriteTextfile(o.metricsFile); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, format.AuditSummary(audit.BuildReport(outcome.Audit), mode))
			fmt.Fprintln(w)
			fmt.Fprintln(w, format.ScorecardTable(outcome.Scorecards, mode))
			if len(outcome.Scorecards) > 0 {
				fmt.Fprintf(w, "\nRun %s\n", outcome.Scorecards[0].RunID)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.registry, "registry", "", "Signal registry file (YAML or JSON)")
	f.StringVar(&o.aliases, "aliases", "", "Alias table YAML (optional)")
	f.StringVar(&o.outputs, "outputs", "", "Candidate outputs JSON array")
	f.StringVar(&o.out, "out", "golden", "Output directory for artifacts")
	f.StringVar(&o.concern, "concern", "", "Concern id stamped on verified cases (default: registry metric)")
	f.StringVar(&o.runID, "run-id", "", "Run id (default: new UUID)")
	f.IntVar(&o.workers, "workers", 4, "Parallel workers for both stages")
	f.BoolVar(&o.lenient, "lenient", false, "Keep cases whose violations only dropped items or were advisory")
	f.StringVar(&o.dbPath, "db", "", "Persist the run to this score store")
	f.StringVar(&o.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to path")
	f.StringVar(&o.format, "format", "ascii", "Table format (ascii, markdown)")
	return cmd
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"accountant/internal/dataset"
	"accountant/internal/evaluate"
	"accountant/internal/format"
	"accountant/internal/grade"
	"accountant/internal/logging"
	"accountant/internal/metrics"
	"accountant/internal/scorestore"
)

type gradeOptions struct {
	golden      string
	registry    string
	aliases     string
	outputs     string
	runID       string
	dbPath      string
	workers     int
	out         string
	metricsFile string
	format      string
}

func newGradeCmd(g *globalOptions) *cobra.Command {
	o := &gradeOptions{}
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Score candidate model outputs against the golden set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGrade(cmd, g, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.golden, "golden", "golden/golden_set.json", "Golden set JSON")
	f.StringVar(&o.registry, "registry", "", "Signal registry file (YAML or JSON)")
	f.StringVar(&o.aliases, "aliases", "", "Alias table YAML (optional)")
	f.StringVar(&o.outputs, "outputs", "", "Candidate outputs JSON array")
	f.StringVar(&o.runID, "run-id", "", "Run id for the scorecards (default: new UUID)")
	f.StringVar(&o.dbPath, "db", "", "Persist scorecards to this score store")
	f.IntVar(&o.workers, "workers", 4, "Parallel graders")
	f.StringVar(&o.out, "out", "", "Write scorecards as JSON to path")
	f.StringVar(&o.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to path")
	f.StringVar(&o.format, "format", "ascii", "Table format (ascii, markdown)")
	return cmd
}

func runGrade(cmd *cobra.Command, g *globalOptions, o *gradeOptions) error {
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
	golden, err := dataset.LoadGoldenSet(o.golden)
	if err != nil {
		return err
	}
	recs, err := dataset.LoadCandidates(o.outputs)
	if err != nil {
		return err
	}

	log := logging.New("cli")
	byID := make(map[string]dataset.GoldenCase, len(golden))
	for _, gc := range golden {
		byID[gc.TestID] = gc
	}

	runID := o.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	jobs := make([]evaluate.Job, 0, len(recs))
	for _, r := range recs {
		job := evaluate.Job{Output: r.Output, TaskID: r.TaskID, MetricID: r.MetricID, Archetype: r.Archetype, RunID: runID}
		if gc, ok := byID[r.TestID]; ok {
			job.Case = gc.EvalCase()
			if job.Archetype == "" {
				job.Archetype = gc.Archetype
			}
		} else {
			log.Warn("candidate has no golden case, grading without expectations", "test_id", r.TestID)
			job.Case = &evaluate.Case{TestID: r.TestID}
		}
		jobs = append(jobs, job)
	}

	ev := evaluate.New(
		grade.NewContractGrader(reg, res, g.policy.Thresholds),
		grade.NewSummaryGrader(g.policy.Thresholds.Legacy),
		g.policy,
		evaluate.WithLogger(logging.New("evaluate")),
	)
	cards, err := ev.EvaluateBatch(cmd.Context(), jobs, o.workers)
	if err != nil {
		return err
	}

	if o.dbPath != "" {
		st, err := scorestore.Open(o.dbPath)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.SaveScorecards(cmd.Context(), cards); err != nil {
			return err
		}
	}
	if o.out != "" {
		data, err := json.MarshalIndent(cards, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal scorecards: %w", err)
		}
		if err := os.WriteFile(o.out, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write scorecards: %w", err)
		}
	}
	if o.metricsFile != "" {
		m := metrics.New()
		m.ObserveScorecards(cards)
		if err := m.WriteTextfile(o.metricsFile); err != nil {
			return err
		}
	}

	pass := 0
	for _, sc := range cards {
		if sc.OverallLabel == evaluate.Pass {
			pass++
		}
	}
	log.Info("grading complete", "run_id", runID, "scorecards", len(cards), "pass", pass)

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, format.ScorecardTable(cards, mode))
	fmt.Fprintf(w, "\nRun %s\n", runID)
	return nil
}

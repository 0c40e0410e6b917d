package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"accountant/internal/audit"
	"accountant/internal/dataset"
	"accountant/internal/format"
	"accountant/internal/logging"
	"accountant/internal/metrics"
	"accountant/internal/scorestore"
)

type auditOptions struct {
	registry     string
	aliases      string
	out          string
	minValid     int
	concern      string
	lenient      bool
	workers      int
	capException string
	metricsFile  string
	dbPath       string
	format       string
}

func newAuditCmd(g *globalOptions) *cobra.Command {
	o := &auditOptions{}
	cmd := &cobra.Command{
		Use:   "audit FILES...",
		Short: "Validate generated cases and write the golden set",
		Long: `Audit checks every generated evidence trace against the signal registry and
the case's own notes, repairs drifting offsets, rejects duplicates and writes
golden_set.json, coverage_map.json and accountant_report.json to --out.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, g, o, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.registry, "registry", "", "Signal registry file (YAML or JSON)")
	f.StringVar(&o.aliases, "aliases", "", "Alias table YAML (optional)")
	f.StringVar(&o.out, "out", "golden", "Output directory for artifacts")
	f.IntVar(&o.minValid, "min-valid", 0, "Fail when fewer cases verify (0 = no minimum)")
	f.StringVar(&o.concern, "concern", "", "Concern id stamped on verified cases (default: registry metric)")
	f.BoolVar(&o.lenient, "lenient", false, "Keep cases whose violations only dropped items or were advisory")
	f.IntVar(&o.workers, "workers", 4, "Parallel case checks")
	f.StringVar(&o.capException, "scenario-cap-exception", "", "Note recorded in golden set metadata when a scenario cap is waived")
	f.StringVar(&o.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to path")
	f.StringVar(&o.dbPath, "db", "", "Record the run summary in this score store")
	f.StringVar(&o.format, "format", "ascii", "Table format (ascii, markdown)")
	return cmd
}

func runAudit(cmd *cobra.Command, g *globalOptions, o *auditOptions, files []string) error {
	mode, err := format.ParseMode(o.format)
	if err != nil {
		return err
	}
	reg, res, err := loadRegistry(o.registry, o.aliases)
	if err != nil {
		return err
	}
	cases, err := dataset.LoadRawCases(files...)
	if err != nil {
		return err
	}

	log := logging.New("cli")
	concern := o.concern
	if concern == "" {
		concern = reg.Metric()
	}
	start := time.Now()
	a := audit.New(reg, res, audit.Options{
		ConcernID: concern,
		Lenient:   o.lenient,
		Policy:    &g.policy,
		Logger:    logging.New("audit"),
	})
	result, err := a.AuditParallel(cmd.Context(), cases, o.workers)
	if err != nil {
		return err
	}
	log.Info("audit complete",
		"processed", result.TotalProcessed,
		"verified", len(result.Verified),
		"violations", len(result.Violations),
		"repaired_offsets", result.RepairedOffsets,
		"elapsed", format.FmtDuration(time.Since(start)))

	if err := dataset.WriteArtifacts(o.out, result, dataset.ArtifactOptions{
		ConcernID:            concern,
		ScenarioCapException: o.capException,
	}); err != nil {
		return err
	}

	if o.metricsFile != "" {
		m := metrics.New()
		m.ObserveAudit(result)
		if err := m.WriteTextfile(o.metricsFile); err != nil {
			return err
		}
	}

	rep := audit.BuildReport(result)
	if o.dbPath != "" {
		st, err := scorestore.Open(o.dbPath)
		if err != nil {
			return err
		}
		defer st.Close()
		run := scorestore.AuditRun{
			RunID:          uuid.NewString(),
			ConcernID:      concern,
			TotalProcessed: rep.TotalCasesProcessed,
			ValidCases:     rep.ValidCases,
			Violations:     len(rep.Violations),
			Dropped:        rep.DroppedUnresolved,
			CoverageRatio:  rep.CoverageSummary.CoverageRatio,
			CreatedAt:      time.Now().UTC(),
		}
		if err := st.SaveAuditRun(cmd.Context(), run); err != nil {
			return err
		}
		log.Info("audit run recorded", "run_id", run.RunID, "db", o.dbPath)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, format.AuditSummary(rep, mode))
	fmt.Fprintln(w)
	fmt.Fprintln(w, format.CoverageTable(result.Coverage, mode))
	if len(result.Violations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, format.ViolationTable(result.Violations, mode))
	}
	fmt.Fprintf(w, "\nArtifacts written to %s\n", o.out)

	if o.minValid > 0 && !result.MeetsMinimum(o.minValid) {
		return fmt.Errorf("audit: %d verified cases, need at least %d", len(result.Verified), o.minValid)
	}
	return nil
}

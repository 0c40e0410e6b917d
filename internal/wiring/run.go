// Package wiring connects the audit and grading stages end to end:
// audit a batch, persist the golden set, reload it and grade candidate
// outputs against it.
package wiring

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"accountant/internal/audit"
	"accountant/internal/config"
	"accountant/internal/dataset"
	"accountant/internal/evaluate"
	"accountant/internal/grade"
	"accountant/internal/identity"
	"accountant/internal/logging"
	"accountant/internal/metrics"
	"accountant/internal/registry"
	"accountant/internal/scorestore"
)

// Flow is everything one end-to-end run needs. Store and Metrics are
// optional.
type Flow struct {
	Registry   *registry.Registry
	Resolver   *identity.Resolver
	Policy     config.Policy
	Cases      []audit.RawCase
	Candidates []dataset.CandidateRecord

	ConcernID            string
	ScenarioCapException string
	OutDir               string
	RunID                string
	Workers              int
	Lenient              bool

	Store   *scorestore.Store
	Metrics *metrics.Metrics
}

// Outcome is what Run produced.
type Outcome struct {
	Audit      *audit.Result
	Golden     []dataset.GoldenCase
	Scorecards []evaluate.Scorecard
}

// Run audits f.Cases, writes the artifacts to f.OutDir, reloads the golden
// set from disk and grades f.Candidates against it. Grading reads the
// written file, not the in-memory result, so the artifact format is part
// of what a run exercises.
func Run(ctx context.Context, f Flow) (*Outcome, error) {
	log := logging.New("wiring")
	if f.RunID == "" {
		f.RunID = uuid.NewString()
	}
	auditor := audit.New(f.Registry, f.Resolver, audit.Options{
		ConcernID: f.ConcernID,
		Lenient:   f.Lenient,
		Policy:    &f.Policy,
		Logger:    logging.New("audit"),
	})
	res, err := auditor.AuditParallel(ctx, f.Cases, f.Workers)
	if err != nil {
		return nil, fmt.Errorf("wiring: audit: %w", err)
	}
	if err := dataset.WriteArtifacts(f.OutDir, res, dataset.ArtifactOptions{
		ConcernID:            f.ConcernID,
		ScenarioCapException: f.ScenarioCapException,
	}); err != nil {
		return nil, fmt.Errorf("wiring: %w", err)
	}
	golden, err := dataset.LoadGoldenSet(filepath.Join(f.OutDir, dataset.GoldenSetFile))
	if err != nil {
		return nil, fmt.Errorf("wiring: %w", err)
	}
	log.Info("golden set written", "dir", f.OutDir, "cases", len(golden))

	byID := make(map[string]dataset.GoldenCase, len(golden))
	for _, g := range golden {
		byID[g.TestID] = g
	}
	jobs := make([]evaluate.Job, 0, len(f.Candidates))
	for _, c := range f.Candidates {
		job := evaluate.Job{Output: c.Output, TaskID: c.TaskID, MetricID: c.MetricID, Archetype: c.Archetype, RunID: f.RunID}
		if g, ok := byID[c.TestID]; ok {
			job.Case = g.EvalCase()
		} else {
			job.Case = &evaluate.Case{TestID: c.TestID}
		}
		jobs = append(jobs, job)
	}

	ev := evaluate.New(
		grade.NewContractGrader(f.Registry, f.Resolver, f.Policy.Thresholds),
		grade.NewSummaryGrader(f.Policy.Thresholds.Legacy),
		f.Policy,
		evaluate.WithLogger(logging.New("evaluate")),
	)
	cards, err := ev.EvaluateBatch(ctx, jobs, f.Workers)
	if err != nil {
		return nil, fmt.Errorf("wiring: grade: %w", err)
	}

	if f.Store != nil {
		rep := audit.BuildReport(res)
		if err := f.Store.SaveAuditRun(ctx, scorestore.AuditRun{
			RunID:          f.RunID,
			ConcernID:      f.ConcernID,
			TotalProcessed: rep.TotalCasesProcessed,
			ValidCases:     rep.ValidCases,
			Violations:     len(rep.Violations),
			Dropped:        rep.DroppedUnresolved,
			CoverageRatio:  rep.CoverageSummary.CoverageRatio,
			CreatedAt:      time.Now().UTC(),
		}); err != nil {
			return nil, fmt.Errorf("wiring: %w", err)
		}
		if err := f.Store.SaveScorecards(ctx, cards); err != nil {
			return nil, fmt.Errorf("wiring: %w", err)
		}
	}
	if f.Metrics != nil {
		f.Metrics.ObserveAudit(res)
		f.Metrics.ObserveScorecards(cards)
	}
	return &Outcome{Audit: res, Golden: golden, Scorecards: cards}, nil
}

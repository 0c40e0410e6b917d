// Package evaluate runs the graders a task calls for and folds their
// results into a labeled scorecard.
package evaluate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"accountant/internal/audit"
	"accountant/internal/config"
	"accountant/internal/contract"
	"accountant/internal/grade"
	"accountant/internal/logging"
)

// Label is the overall verdict of a scorecard.
type Label string

const (
	Pass   Label = "Pass"
	Review Label = "Review"
	// Fail is reserved for manual review tiers. Evaluate never assigns it.
	Fail Label = "Fail"
)

// Case is the expectation side of one evaluation.
type Case struct {
	TestID             string
	PatientPayload     string
	Contract           *contract.CaseContract
	MustFindSignals    []string
	SummaryMustMention []string
}

// hasOracle reports whether c carries any expectation a grader can measure.
func (c *Case) hasOracle() bool {
	if c == nil {
		return false
	}
	if c.Contract != nil && len(c.Contract.ExpectedSignals) > 0 {
		return true
	}
	return len(c.MustFindSignals) > 0 || len(c.SummaryMustMention) > 0
}

// CaseFromVerified builds an evaluation case from an audited golden case.
func CaseFromVerified(vc audit.VerifiedCase) *Case {
	ct := vc.Contract.Clone()
	return &Case{TestID: vc.TestID, PatientPayload: vc.PatientPayload, Contract: &ct}
}

// Scorecard is one graded output.
type Scorecard struct {
	RunID        string                  `json:"run_id"`
	TestID       string                  `json:"test_id,omitempty"`
	TaskID       string                  `json:"task_id"`
	MetricID     string                  `json:"metric_id,omitempty"`
	Archetype    string                  `json:"archetype,omitempty"`
	Scores       map[string]grade.Result `json:"scores"`
	OverallLabel Label                   `json:"overall_label"`
	CreatedAt    time.Time               `json:"created_at"`
}

// Criteria returns the score keys in sorted order.
func (s Scorecard) Criteria() []string {
	out := make([]string, 0, len(s.Scores))
	for k := range s.Scores {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Evaluator dispatches to graders by task id.
type Evaluator struct {
	contract *grade.ContractGrader
	summary  *grade.SummaryGrader
	tasks    map[string]config.Task
	pass     float64
	now      func() time.Time
	newID    func() string
	log      *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the scorecard timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(f func() string) Option {
	return func(e *Evaluator) { e.newID = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.log = l }
}

// New builds an Evaluator from the graders and the policy's task table.
func New(cg *grade.ContractGrader, sg *grade.SummaryGrader, policy config.Policy, opts ...Option) *Evaluator {
	e := &Evaluator{
		contract: cg,
		summary:  sg,
		tasks:    policy.Tasks,
		pass:     policy.Thresholds.PassLabel,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		log:      logging.New("evaluate"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate grades one output. When c is nil or carries no expectations
// the graders are skipped and the scorecard stays at Review: an empty
// oracle would otherwise score every output 1.0.
func (e *Evaluator) Evaluate(out grade.CandidateOutput, taskID, metricID, archetype, runID string, c *Case) Scorecard {
	if runID == "" {
		runID = e.newID()
	}
	exp := grade.Expectations{}
	sc := Scorecard{
		RunID:        runID,
		TaskID:       taskID,
		MetricID:     metricID,
		Archetype:    archetype,
		Scores:       make(map[string]grade.Result),
		OverallLabel: Review,
		CreatedAt:    e.now(),
	}
	if c != nil {
		sc.TestID = c.TestID
		exp = grade.Expectations{
			Contract:           c.Contract,
			MustFindSignals:    c.MustFindSignals,
			SummaryMustMention: c.SummaryMustMention,
		}
		if out.RawInput == "" {
			out.RawInput = c.PatientPayload
		}
	}

	task, ok := e.tasks[taskID]
	if !ok {
		e.log.Warn("unknown task, no graders run", "task_id", taskID)
		return sc
	}
	if !c.hasOracle() {
		e.log.Warn("no expectations for case, routed to review", "test_id", sc.TestID, "task_id", taskID)
		return sc
	}
	for _, name := range task.Graders {
		switch name {
		case config.CriterionConceptRecall:
			sc.Scores[name] = e.contract.Grade(exp, out)
		case config.CriterionSummary:
			sc.Scores[name] = e.summary.Grade(exp.SummaryMustMention, out)
		default:
			e.log.Warn("unknown grader in task table", "task_id", taskID, "grader", name)
		}
	}
	if dom, ok := sc.Scores[task.Dominant]; ok && dom.Score >= e.pass {
		sc.OverallLabel = Pass
	}
	return sc
}

// Job is one unit of batch evaluation.
type Job struct {
	Output    grade.CandidateOutput
	TaskID    string
	MetricID  string
	Archetype string
	RunID     string
	Case      *Case
}

// EvaluateBatch grades jobs on a bounded worker pool. Results keep job
// order. workers < 1 means one worker.
func (e *Evaluator) EvaluateBatch(ctx context.Context, jobs []Job, workers int) ([]Scorecard, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]Scorecard, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range jobs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			j := jobs[i]
			out[i] = e.Evaluate(j.Output, j.TaskID, j.MetricID, j.Archetype, j.RunID, j.Case)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluate: batch: %w", err)
	}
	return out, nil
}

package evaluate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"accountant/internal/audit"
	"accountant/internal/config"
	"accountant/internal/contract"
	"accountant/internal/grade"
	"accountant/internal/identity"
	"accountant/internal/registry"
)

var fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newEvaluator(t *testing.T, opts ...Option) *Evaluator {
	t.Helper()
	reg, err := registry.New([]registry.Entry{{ID: "fever"}, {ID: "purulence"}})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	p := config.Default()
	cg := grade.NewContractGrader(reg, identity.New(identity.AliasTable{}), p.Thresholds)
	sg := grade.NewSummaryGrader(p.Thresholds.Legacy)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow }), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(cg, sg, p, opts...)
}

func feverCase() *Case {
	return &Case{
		TestID:             "T1",
		PatientPayload:     "Tmax 38.9C overnight.",
		Contract:           &contract.CaseContract{ExpectedSignals: []contract.ExpectedSignal{{SignalID: "fever", Polarity: contract.Affirm, RequiredProvenance: []string{"38.9"}}}},
		SummaryMustMention: []string{"fever", "antibiotics"},
	}
}

func TestEvaluate_Labels(t *testing.T) {
	good := grade.CandidateOutput{
		SignalObjects: []grade.CandidateSignal{{SignalID: "fever", Provenance: "Tmax 38.9C"}},
		Summary:       "New fever, no antibiotics yet.",
	}
	weakSummary := good
	weakSummary.Summary = "Stable."

	tests := []struct {
		name     string
		task     string
		out      grade.CandidateOutput
		want     Label
		criteria []string
	}{
		{"enrichment pass", "signal_enrichment", good, Pass, []string{"CR"}},
		{"enrichment review", "signal_enrichment", grade.CandidateOutput{}, Review, []string{"CR"}},
		{"summary pass", "event_summary", good, Pass, []string{"AC"}},
		{"summary review", "event_summary", weakSummary, Review, []string{"AC"}},
		{"reasoning dominated by CR", "clinical_reasoning", weakSummary, Pass, []string{"AC", "CR"}},
		{"unknown task", "freeform", good, Review, []string{}},
	}
	e := newEvaluator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := e.Evaluate(tt.out, tt.task, "SSI-01", "USNWR", "run-1", feverCase())
			if sc.OverallLabel != tt.want {
				t.Errorf("label = %s, want %s (scores %+v)", sc.OverallLabel, tt.want, sc.Scores)
			}
			if diff := cmp.Diff(tt.criteria, sc.Criteria()); diff != "" {
				t.Errorf("criteria mismatch (-want +got):\n%s", diff)
			}
			if sc.OverallLabel == Fail {
				t.Error("evaluator must never emit Fail")
			}
		})
	}
}

func TestEvaluate_FillsRawInputFromCase(t *testing.T) {
	e := newEvaluator(t)
	out := grade.CandidateOutput{SignalObjects: []grade.CandidateSignal{{SignalID: "fever", Provenance: "38.9C"}}}
	sc := e.Evaluate(out, "signal_enrichment", "", "", "run-1", feverCase())
	if got := sc.Scores["CR"].Components[grade.EvidenceIntegrity]; got != 1.0 {
		t.Errorf("AH = %v, want 1 with raw input taken from the payload", got)
	}
	if out.RawInput != "" {
		t.Error("caller's output was modified")
	}
}

func TestEvaluate_Metadata(t *testing.T) {
	e := newEvaluator(t, WithIDGenerator(func() string { return "generated" }))
	sc := e.Evaluate(grade.CandidateOutput{}, "signal_enrichment", "SSI-01", "USNWR", "", feverCase())
	want := Scorecard{
		RunID:        "generated",
		TestID:       "T1",
		TaskID:       "signal_enrichment",
		MetricID:     "SSI-01",
		Archetype:    "USNWR",
		OverallLabel: Review,
		CreatedAt:    fixedNow,
	}
	if _, ok := sc.Scores["CR"]; !ok {
		t.Fatalf("scores = %v, want CR entry", sc.Scores)
	}
	sc.Scores = nil
	if diff := cmp.Diff(want, sc); diff != "" {
		t.Errorf("scorecard mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_NoOracleRoutesToReview(t *testing.T) {
	tests := []struct {
		name string
		c    *Case
	}{
		{"nil case", nil},
		{"unknown test id", &Case{TestID: "unknown"}},
		{"empty contract", &Case{TestID: "T9", Contract: &contract.CaseContract{ExpectedSignals: []contract.ExpectedSignal{}}}},
	}
	e := newEvaluator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, task := range []string{"signal_enrichment", "event_summary", "clinical_reasoning"} {
				sc := e.Evaluate(grade.CandidateOutput{}, task, "", "", "run-1", tt.c)
				if sc.OverallLabel != Review {
					t.Errorf("%s: label = %s, want Review", task, sc.OverallLabel)
				}
				if len(sc.Scores) != 0 {
					t.Errorf("%s: graders ran without an oracle: %v", task, sc.Scores)
				}
			}
		})
	}
}

func TestEvaluate_DefaultRunIDIsUUID(t *testing.T) {
	sc := newEvaluator(t).Evaluate(grade.CandidateOutput{}, "event_summary", "", "", "", nil)
	if _, err := uuid.Parse(sc.RunID); err != nil {
		t.Errorf("RunID %q is not a uuid: %v", sc.RunID, err)
	}
}

func TestCaseFromVerified(t *testing.T) {
	vc := audit.VerifiedCase{
		TestID:         "T9",
		PatientPayload: "payload",
		Contract: contract.CaseContract{
			Intents:         []string{"NEGATION"},
			ExpectedSignals: []contract.ExpectedSignal{{SignalID: "purulence", Polarity: contract.Deny}},
		},
	}
	c := CaseFromVerified(vc)
	c.Contract.ExpectedSignals[0].SignalID = "mutated"
	if vc.Contract.ExpectedSignals[0].SignalID != "purulence" {
		t.Error("CaseFromVerified aliases the verified contract")
	}
	if c.TestID != "T9" || c.PatientPayload != "payload" {
		t.Errorf("case = %+v", c)
	}
}

func TestEvaluateBatch_KeepsOrder(t *testing.T) {
	e := newEvaluator(t)
	var jobs []Job
	for i := 0; i < 20; i++ {
		out := grade.CandidateOutput{}
		if i%2 == 0 {
			out.SignalObjects = []grade.CandidateSignal{{SignalID: "fever", Provenance: "38.9"}}
		}
		jobs = append(jobs, Job{Output: out, TaskID: "signal_enrichment", RunID: "run-1", Case: &Case{
			TestID:         fmt.Sprintf("T%02d", i),
			PatientPayload: "Tmax 38.9C",
			Contract:       feverCase().Contract,
		}})
	}
	got, err := e.EvaluateBatch(context.Background(), jobs, 4)
	if err != nil {
		t.Fatalf("EvaluateBatch: %v", err)
	}
	for i, sc := range got {
		if sc.TestID != fmt.Sprintf("T%02d", i) {
			t.Fatalf("result %d is %s", i, sc.TestID)
		}
		want := Review
		if i%2 == 0 {
			want = Pass
		}
		if sc.OverallLabel != want {
			t.Errorf("%s label = %s, want %s", sc.TestID, sc.OverallLabel, want)
		}
	}
}

func TestEvaluateBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newEvaluator(t).EvaluateBatch(ctx, []Job{{TaskID: "signal_enrichment"}}, 2)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

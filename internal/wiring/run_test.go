package wiring

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"accountant/internal/audit"
	"accountant/internal/config"
	"accountant/internal/dataset"
	"accountant/internal/evaluate"
	"accountant/internal/grade"
	"accountant/internal/identity"
	"accountant/internal/registry"
)

func loadFixtureFlow(t *testing.T) Flow {
	t.Helper()
	reg, err := registry.LoadFromPath(filepath.Join("testdata", "registry.yaml"))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	aliases, err := identity.LoadAliases(filepath.Join("testdata", "aliases.yaml"))
	if err != nil {
		t.Fatalf("aliases: %v", err)
	}
	policy, err := config.Load(filepath.Join("testdata", "policy.yaml"))
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	cases, err := dataset.LoadRawCases(filepath.Join("testdata", "batch.json"))
	if err != nil {
		t.Fatalf("cases: %v", err)
	}
	return Flow{
		Registry:  reg,
		Resolver:  identity.New(aliases),
		Policy:    policy,
		Cases:     cases,
		ConcernID: reg.Metric(),
		OutDir:    t.TempDir(),
		Workers:   2,
	}
}

// BDD: Given the fixture batch and no store, When the flow runs, Then all three artifacts exist and a run id is assigned.
func TestRun_WritesArtifactsWithoutStore(t *testing.T) {
	f := loadFixtureFlow(t)
	f.Candidates = []dataset.CandidateRecord{{
		TestID: "SSI-001",
		TaskID: "event_summary",
		Output: grade.CandidateOutput{Summary: "scant serous fluid"},
	}}

	out, err := Run(context.Background(), f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, name := range []string{dataset.GoldenSetFile, dataset.CoverageMapFile, dataset.ReportFile} {
		if _, err := os.Stat(filepath.Join(f.OutDir, name)); err != nil {
			t.Errorf("artifact %s: %v", name, err)
		}
	}
	if len(out.Scorecards) != 1 || out.Scorecards[0].RunID == "" {
		t.Fatalf("scorecards = %+v, want one with a generated run id", out.Scorecards)
	}
	if out.Audit.RepairedOffsets == 0 {
		t.Error("expected at least one repaired offset in the fixture batch")
	}
}

// BDD: Given a candidate for a case that was not verified, When graded, Then it is routed to review with no scores.
func TestRun_CandidateWithoutGoldenCase(t *testing.T) {
	f := loadFixtureFlow(t)
	f.Candidates = []dataset.CandidateRecord{{
		TestID: "SSI-003",
		TaskID: "signal_enrichment",
		Output: grade.CandidateOutput{Signals: []string{"purulence"}},
	}}

	out, err := Run(context.Background(), f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sc := out.Scorecards[0]
	if sc.TestID != "SSI-003" {
		t.Errorf("TestID = %q", sc.TestID)
	}
	if sc.OverallLabel != evaluate.Review {
		t.Errorf("label = %s, want Review for a candidate without an oracle", sc.OverallLabel)
	}
	if len(sc.Scores) != 0 {
		t.Errorf("graders ran without a golden case: %v", sc.Scores)
	}
}

// BDD: Given a cancelled context, When the flow runs, Then the audit stage reports the cancellation.
func TestRun_Cancelled(t *testing.T) {
	f := loadFixtureFlow(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, f); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestRun_EmptyRegistry(t *testing.T) {
	f := loadFixtureFlow(t)
	empty, err := registry.New(nil)
	if err != nil {
		t.Fatalf("registry.New(nil): %v", err)
	}
	f.Registry = empty
	_, err = Run(context.Background(), f)
	if !errors.Is(err, audit.ErrEmptyRegistry) {
		t.Errorf("err = %v, want ErrEmptyRegistry", err)
	}
}

// BDD: Given lenient mode, When a case carries a case-fatal marker violation, Then it is still rejected.
func TestRun_LenientKeepsMarkerRules(t *testing.T) {
	f := loadFixtureFlow(t)
	f.Lenient = true
	out, err := Run(context.Background(), f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, v := range out.Audit.Verified {
		if v.TestID == "SSI-005" {
			t.Error("SSI-005 lacks new_failure_mode and must not be verified")
		}
	}
	if len(out.Audit.Verified) != 2 {
		t.Errorf("Verified = %d, want 2", len(out.Audit.Verified))
	}
}

package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"accountant/internal/audit"
	"accountant/internal/contract"
	"accountant/internal/evaluate"
)

// Artifact file names written by WriteArtifacts.
const (
	GoldenSetFile   = "golden_set.json"
	CoverageMapFile = "coverage_map.json"
	ReportFile      = "accountant_report.json"
)

// GoldenMetadata heads a golden set file.
type GoldenMetadata struct {
	ConcernID            string `json:"concern_id,omitempty"`
	CaseCount            int    `json:"case_count"`
	ScenarioCapException string `json:"scenario_cap_exception,omitempty"`
}

// GoldenSet is the golden_set.json document as written.
type GoldenSet struct {
	Metadata  GoldenMetadata       `json:"metadata"`
	TestCases []audit.VerifiedCase `json:"test_cases"`
}

// GoldenCase is a golden set entry as read back. Older hand-written sets
// carry no contract, only must-find phrases.
type GoldenCase struct {
	TestID             string                 `json:"test_id"`
	ConcernID          string                 `json:"concern_id,omitempty"`
	Archetype          string                 `json:"archetype,omitempty"`
	PatientPayload     string                 `json:"patient_payload"`
	Contract           *contract.CaseContract `json:"contract,omitempty"`
	MustFindSignals    []string               `json:"must_find_signals,omitempty"`
	SummaryMustMention []string               `json:"summary_must_mention,omitempty"`
}

// EvalCase converts g into the evaluator's expectation type.
func (g GoldenCase) EvalCase() *evaluate.Case {
	c := &evaluate.Case{
		TestID:             g.TestID,
		PatientPayload:     g.PatientPayload,
		MustFindSignals:    g.MustFindSignals,
		SummaryMustMention: g.SummaryMustMention,
	}
	if g.Contract != nil {
		ct := g.Contract.Clone()
		c.Contract = &ct
	}
	return c
}

// ArtifactOptions decorate the written golden set.
type ArtifactOptions struct {
	ConcernID            string
	ScenarioCapException string
}

// WriteArtifacts writes the golden set, coverage map and audit report for
// res into dir, creating it if needed.
func WriteArtifacts(dir string, res *audit.Result, opts ArtifactOptions) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("dataset: create output dir: %w", err)
	}
	cases := res.Verified
	if cases == nil {
		cases = []audit.VerifiedCase{}
	}
	golden := GoldenSet{
		Metadata: GoldenMetadata{
			ConcernID:            opts.ConcernID,
			CaseCount:            len(cases),
			ScenarioCapException: opts.ScenarioCapException,
		},
		TestCases: cases,
	}
	if err := writeJSON(filepath.Join(dir, GoldenSetFile), golden); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, CoverageMapFile), res.Coverage); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, ReportFile), audit.BuildReport(res))
}

// LoadGoldenSet reads a golden set written by WriteArtifacts or by hand.
func LoadGoldenSet(path string) ([]GoldenCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read %q: %w", path, err)
	}
	var doc struct {
		TestCases []GoldenCase `json:"test_cases"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("dataset: parse golden set %q: %w", path, err)
	}
	return doc.TestCases, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("dataset: marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("dataset: write %s: %w", filepath.Base(path), err)
	}
	return nil
}

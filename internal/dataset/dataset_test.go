package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"accountant/internal/audit"
	"accountant/internal/contract"
	"accountant/internal/offsets"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadRawCases_FormatsConcatenate(t *testing.T) {
	dir := t.TempDir()
	wrapped := writeFile(t, dir, "a.json", `{"test_cases":[{"test_id":"A1","notes":[{"id":"n1","text":"POD 5"}],
		"trace":{"items":[{"note_id":"n1","signal_id":"fever","polarity":"AFFIRM","substring":"POD 5","offsets":[0,5]}]}}]}`)
	bare := writeFile(t, dir, "b.json", `[{"test_id":"B1"},{"test_id":"B2"}]`)
	yml := writeFile(t, dir, "c.yaml", `
test_cases:
  - test_id: C1
    metadata:
      confounder_tag: tag
    trace:
      items:
        - note_id: n1
          substring: scant serous fluid
          offsets: [18, 36]
`)

	cases, err := LoadRawCases(wrapped, bare, yml)
	if err != nil {
		t.Fatalf("LoadRawCases: %v", err)
	}
	var ids []string
	for _, c := range cases {
		ids = append(ids, c.TestID)
	}
	if diff := cmp.Diff([]string{"A1", "B1", "B2", "C1"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if got := cases[0].Trace.Items[0].Offsets; got != (offsets.Span{0, 5}) {
		t.Errorf("json offsets = %v", got)
	}
	if got := cases[3].Trace.Items[0].Offsets; got != (offsets.Span{18, 36}) {
		t.Errorf("yaml offsets = %v", got)
	}
	if cases[3].Metadata == nil || cases[3].Metadata.ConfounderTag != "tag" {
		t.Errorf("yaml metadata = %+v", cases[3].Metadata)
	}
}

func TestParseRawCases_YAMLList(t *testing.T) {
	cases, err := ParseRawCases([]byte("- test_id: Y1\n- test_id: Y2\n"), ".yml")
	if err != nil {
		t.Fatalf("ParseRawCases: %v", err)
	}
	if len(cases) != 2 {
		t.Errorf("len = %d, want 2", len(cases))
	}
}

func TestLoadRawCases_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadRawCases(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := writeFile(t, dir, "bad.json", `{"test_cases": [`)
	if _, err := LoadRawCases(bad); err == nil {
		t.Error("expected error for truncated json")
	}
}

func TestLoadCandidates(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "out.json", `[{"test_id":"T1","task_id":"signal_enrichment",
		"output":{"signal_objects":[{"signal_id":"fever","provenance":"38.9"}],"raw_input":"Tmax 38.9"}}]`)
	recs, err := LoadCandidates(p)
	if err != nil {
		t.Fatalf("LoadCandidates: %v", err)
	}
	if len(recs) != 1 || recs[0].Output.SignalObjects[0].SignalID != "fever" {
		t.Errorf("recs = %+v", recs)
	}

	missingTask := writeFile(t, dir, "bad.json", `[{"test_id":"T1"}]`)
	if _, err := LoadCandidates(missingTask); err == nil {
		t.Error("expected validation error for record without task_id")
	}
}

func TestWriteArtifacts_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	res := &audit.Result{
		Verified: []audit.VerifiedCase{{
			TestID:         "T1",
			PatientPayload: "Incision site has scant serous fluid on POD 5.",
			Contract: contract.CaseContract{
				Intents:               []string{"SIGNAL_DETECTION"},
				ExpectedSignals:       []contract.ExpectedSignal{{SignalID: "wound_drainage_erythema", Polarity: contract.Affirm, RequiredProvenance: []string{"scant serous fluid"}}},
				ExpectedBehaviorFlags: []string{},
			},
		}},
		Coverage:       audit.CoverageMap{"wound_drainage_erythema": 1, "fever": 0},
		TotalProcessed: 2,
		Violations:     []audit.Violation{{TestID: "T2", Type: audit.DuplicateCase, Message: "dup"}},
	}
	if err := WriteArtifacts(dir, res, ArtifactOptions{ConcernID: "SSI-01", ScenarioCapException: "rare archetype"}); err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}

	golden, err := LoadGoldenSet(filepath.Join(dir, GoldenSetFile))
	if err != nil {
		t.Fatalf("LoadGoldenSet: %v", err)
	}
	if len(golden) != 1 || golden[0].Contract == nil {
		t.Fatalf("golden = %+v", golden)
	}
	if diff := cmp.Diff(res.Verified[0].Contract, *golden[0].Contract); diff != "" {
		t.Errorf("contract mismatch (-want +got):\n%s", diff)
	}

	var head struct {
		Metadata GoldenMetadata `json:"metadata"`
	}
	readJSON(t, filepath.Join(dir, GoldenSetFile), &head)
	want := GoldenMetadata{ConcernID: "SSI-01", CaseCount: 1, ScenarioCapException: "rare archetype"}
	if diff := cmp.Diff(want, head.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	var cov map[string]int
	readJSON(t, filepath.Join(dir, CoverageMapFile), &cov)
	if cov["wound_drainage_erythema"] != 1 || cov["fever"] != 0 || len(cov) != 2 {
		t.Errorf("coverage = %v", cov)
	}

	var rep audit.Report
	readJSON(t, filepath.Join(dir, ReportFile), &rep)
	if rep.TotalCasesProcessed != 2 || rep.ValidCases != 1 || len(rep.Violations) != 1 {
		t.Errorf("report = %+v", rep)
	}
}

func TestWriteArtifacts_EmptyGoldenSetIsArray(t *testing.T) {
	dir := t.TempDir()
	if err := WriteArtifacts(dir, &audit.Result{Coverage: audit.CoverageMap{}}, ArtifactOptions{}); err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}
	var doc map[string]any
	readJSON(t, filepath.Join(dir, GoldenSetFile), &doc)
	if _, ok := doc["test_cases"].([]any); !ok {
		t.Errorf("test_cases = %v, want []", doc["test_cases"])
	}
	meta := doc["metadata"].(map[string]any)
	if _, ok := meta["scenario_cap_exception"]; ok {
		t.Error("scenario_cap_exception should be omitted when unset")
	}
}

func TestGoldenCase_EvalCase(t *testing.T) {
	legacy := GoldenCase{TestID: "L1", MustFindSignals: []string{"fever"}}
	if c := legacy.EvalCase(); c.Contract != nil || c.MustFindSignals[0] != "fever" {
		t.Errorf("legacy case = %+v", c)
	}

	ct := &contract.CaseContract{ExpectedSignals: []contract.ExpectedSignal{{SignalID: "fever", Polarity: contract.Affirm}}}
	g := GoldenCase{TestID: "C1", Contract: ct}
	c := g.EvalCase()
	c.Contract.ExpectedSignals[0].SignalID = "changed"
	if ct.ExpectedSignals[0].SignalID != "fever" {
		t.Error("EvalCase aliases the golden contract")
	}
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", path, err)
	}
}

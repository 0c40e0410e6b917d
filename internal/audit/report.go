package audit

// CoverageSummary condenses the coverage map for the report.
type CoverageSummary struct {
	TotalSignals     int      `json:"total_signals"`
	CoveredSignals   int      `json:"covered_signals"`
	UncoveredSignals []string `json:"uncovered_signals"`
	CoverageRatio    float64  `json:"coverage_ratio"`
}

// Report is the accountant_report.json document.
type Report struct {
	TotalCasesProcessed  int                   `json:"total_cases_processed"`
	ValidCases           int                   `json:"valid_cases"`
	DroppedUnresolved    int                   `json:"dropped_unresolved_offsets"`
	Violations           []Violation           `json:"violations"`
	CoverageSummary      CoverageSummary       `json:"coverage_summary"`
	DenyMismatchExamples []DenyMismatch        `json:"deny_mismatch_examples"`
	ViolationCounts      map[ViolationType]int `json:"violation_counts"`
}

// BuildReport summarises an audit result.
func BuildReport(r *Result) Report {
	covered := r.Coverage.Covered()
	rep := Report{
		TotalCasesProcessed:  r.TotalProcessed,
		ValidCases:           len(r.Verified),
		DroppedUnresolved:    len(r.DroppedUnresolved),
		Violations:           r.Violations,
		DenyMismatchExamples: r.DenyMismatches,
		ViolationCounts:      r.ViolationCounts(),
		CoverageSummary: CoverageSummary{
			TotalSignals:     len(r.Coverage),
			CoveredSignals:   len(covered),
			UncoveredSignals: r.Coverage.Uncovered(),
		},
	}
	if rep.Violations == nil {
		rep.Violations = []Violation{}
	}
	if rep.DenyMismatchExamples == nil {
		rep.DenyMismatchExamples = []DenyMismatch{}
	}
	if rep.CoverageSummary.UncoveredSignals == nil {
		rep.CoverageSummary.UncoveredSignals = []string{}
	}
	if n := len(r.Coverage); n > 0 {
		rep.CoverageSummary.CoverageRatio = float64(len(covered)) / float64(n)
	}
	return rep
}

package format

import (
	"sort"
	"strings"

	"accountant/internal/audit"
	"accountant/internal/dataset"
	"accountant/internal/display"
	"accountant/internal/evaluate"
)

// AuditSummary renders the headline numbers of an audit report.
func AuditSummary(rep audit.Report, m Mode) string {
	tb := NewTable(m)
	tb.Header("Measure", "Value")
	tb.Row("Cases processed", rep.TotalCasesProcessed)
	tb.Row("Verified", Ratio(rep.ValidCases, rep.TotalCasesProcessed))
	tb.Row("Dropped (unresolved offsets)", rep.DroppedUnresolved)
	tb.Row("Violations", len(rep.Violations))
	tb.Row("Signal coverage", Ratio(rep.CoverageSummary.CoveredSignals, rep.CoverageSummary.TotalSignals))
	tb.Columns(Column{Index: 2, Right: true})
	return tb.String()
}

// CoverageTable lists every registry signal with its affirmation count,
// uncovered signals first.
func CoverageTable(cov audit.CoverageMap, m Mode) string {
	ids := make([]string, 0, len(cov))
	for id := range cov {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if cov[ids[i]] != cov[ids[j]] {
			return cov[ids[i]] < cov[ids[j]]
		}
		return ids[i] < ids[j]
	})

	tb := NewTable(m)
	tb.Header("Signal", "Cases", "Covered")
	covered := 0
	for _, id := range ids {
		n := cov[id]
		if n > 0 {
			covered++
		}
		tb.Row(id, n, BoolMark(n > 0))
	}
	tb.Footer("TOTAL", Ratio(covered, len(ids)), "")
	tb.Columns(Column{Index: 2, Right: true})
	return tb.String()
}

// ViolationTable groups violations by type with counts and example cases.
func ViolationTable(vs []audit.Violation, m Mode) string {
	type group struct {
		n   int
		ids []string
	}
	groups := make(map[audit.ViolationType]*group)
	for _, v := range vs {
		g, ok := groups[v.Type]
		if !ok {
			g = &group{}
			groups[v.Type] = g
		}
		g.n++
		if len(g.ids) < 3 {
			g.ids = append(g.ids, v.TestID)
		}
	}
	types := make([]audit.ViolationType, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if groups[types[i]].n != groups[types[j]].n {
			return groups[types[i]].n > groups[types[j]].n
		}
		return types[i] < types[j]
	})

	tb := NewTable(m)
	tb.Header("Violation", "Count", "Examples")
	for _, t := range types {
		g := groups[t]
		tb.Row(display.ViolationWithCode(string(t)), g.n, strings.Join(g.ids, ", "))
	}
	tb.Footer("TOTAL", len(vs), "")
	tb.Columns(
		Column{Index: 2, Right: true},
		Column{Index: 3, Wrap: 40},
	)
	return tb.String()
}

// ScorecardTable renders one row per scorecard with a column per criterion
// seen across the batch.
func ScorecardTable(cards []evaluate.Scorecard, m Mode) string {
	seen := make(map[string]bool)
	for _, sc := range cards {
		for c := range sc.Scores {
			seen[c] = true
		}
	}
	crits := make([]string, 0, len(seen))
	for c := range seen {
		crits = append(crits, c)
	}
	sort.Strings(crits)

	tb := NewTable(m)
	header := []string{"Case", "Task"}
	for _, c := range crits {
		header = append(header, display.Criterion(c))
	}
	header = append(header, "Flagged", "Label")
	tb.Header(header...)

	pass := 0
	for _, sc := range cards {
		row := []any{sc.TestID, sc.TaskID}
		flagged := false
		for _, c := range crits {
			r, ok := sc.Scores[c]
			if !ok {
				row = append(row, "-")
				continue
			}
			row = append(row, Score(r.Score))
			flagged = flagged || r.Flagged
		}
		if sc.OverallLabel == evaluate.Pass {
			pass++
		}
		row = append(row, BoolMark(flagged), string(sc.OverallLabel))
		tb.Row(row...)
	}
	footer := make([]any, len(header))
	footer[0] = "PASS"
	footer[len(footer)-1] = Ratio(pass, len(cards))
	tb.Footer(footer...)
	return tb.String()
}

// GoldenTable lists golden cases with their intents, expected signals and
// behavior flags. Cases without a contract show their must-find phrases.
func GoldenTable(cases []dataset.GoldenCase, m Mode) string {
	tb := NewTable(m)
	tb.Header("Case", "Intent", "Expected", "Flags")
	contracts := 0
	for _, c := range cases {
		if c.Contract == nil {
			tb.Row(c.TestID, "-", strings.Join(c.MustFindSignals, ", "), "")
			continue
		}
		contracts++
		intents := make([]string, 0, len(c.Contract.Intents))
		for _, in := range c.Contract.Intents {
			intents = append(intents, display.Intent(in))
		}
		sigs := make([]string, 0, len(c.Contract.ExpectedSignals))
		for _, s := range c.Contract.ExpectedSignals {
			sigs = append(sigs, s.SignalID+" "+display.Polarity(string(s.Polarity)))
		}
		tb.Row(c.TestID, strings.Join(intents, ", "), strings.Join(sigs, "; "),
			strings.Join(c.Contract.ExpectedBehaviorFlags, ", "))
	}
	tb.Footer("CONTRACTS", Ratio(contracts, len(cases)), "", "")
	tb.Columns(Column{Index: 3, Wrap: 60})
	return tb.String()
}

package grade

// SummaryGrader checks that a narrative summary mentions required phrases.
type SummaryGrader struct {
	threshold float64
}

// NewSummaryGrader flags results scoring below threshold.
func NewSummaryGrader(threshold float64) *SummaryGrader {
	return &SummaryGrader{threshold: threshold}
}

// Grade scores out.Summary alone. No phrases means nothing to miss.
func (g *SummaryGrader) Grade(phrases []string, out CandidateOutput) Result {
	return containment(Summary, phrases, normalize(out.Summary), g.threshold)
}

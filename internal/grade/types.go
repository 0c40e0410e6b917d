// Package grade scores candidate model output against verified case
// contracts. Grading is total: malformed output yields a low, flagged
// result and never an error.
package grade

import (
	"accountant/internal/contract"
)

// Criterion codes.
const (
	ConceptRecall     = "CR"
	EvidenceIntegrity = "AH"
	BehaviorFlags     = "DR"
	Summary           = "AC"
)

// CandidateSignal is one structured signal claimed by a model.
type CandidateSignal struct {
	SignalID   string   `json:"signal_id"`
	Polarity   string   `json:"polarity,omitempty"`
	Provenance string   `json:"provenance,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// CandidateOutput is the normalized shape of a model response. Any field
// may be missing.
type CandidateOutput struct {
	Signals       []string          `json:"signals,omitempty"`
	SignalObjects []CandidateSignal `json:"signal_objects,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	RawInput      string            `json:"raw_input"`
}

// Expectations is what a case expects from the model. When Contract is nil
// the legacy phrase-containment path applies.
type Expectations struct {
	Contract           *contract.CaseContract
	MustFindSignals    []string
	SummaryMustMention []string
}

// Failure is one itemised miss.
type Failure struct {
	Criterion string `json:"criterion"`
	SignalID  string `json:"signal_id,omitempty"`
	Detail    string `json:"detail"`
}

// Result is the outcome of one grader on one output.
type Result struct {
	Criterion  string             `json:"criterion"`
	Score      float64            `json:"score"`
	Flagged    bool               `json:"flagged"`
	Reasoning  string             `json:"reasoning"`
	Components map[string]float64 `json:"components,omitempty"`
	Failures   []Failure          `json:"failures,omitempty"`
}

// FailureCount returns the number of failures recorded for criterion.
func (r Result) FailureCount(criterion string) int {
	n := 0
	for _, f := range r.Failures {
		if f.Criterion == criterion {
			n++
		}
	}
	return n
}

func safeDiv(num, denom int) float64 {
	if denom == 0 {
		return 1.0
	}
	return float64(num) / float64(denom)
}

func mean(vals ...float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

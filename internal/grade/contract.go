package grade

import (
	"fmt"
	"strings"

	"accountant/internal/config"
	"accountant/internal/contract"
	"accountant/internal/identity"
	"accountant/internal/registry"
)

// ContractGrader scores concept recall and evidence integrity against a
// CaseContract, falling back to phrase containment for legacy cases.
type ContractGrader struct {
	reg *registry.Registry
	res *identity.Resolver
	th  config.Thresholds
}

// NewContractGrader binds the grader to a registry snapshot and resolver.
func NewContractGrader(reg *registry.Registry, res *identity.Resolver, th config.Thresholds) *ContractGrader {
	return &ContractGrader{reg: reg, res: res, th: th}
}

// candidate is a canonicalized candidate signal.
type candidate struct {
	id         string
	polarity   contract.Polarity
	provenance string
}

// Grade scores out against exp.
func (g *ContractGrader) Grade(exp Expectations, out CandidateOutput) Result {
	if exp.Contract == nil {
		return g.gradeLegacy(exp.MustFindSignals, out)
	}
	return g.gradeContract(*exp.Contract, out)
}

func (g *ContractGrader) candidates(out CandidateOutput) ([]candidate, map[string]bool) {
	var cands []candidate
	tags := make(map[string]bool)
	for _, s := range out.SignalObjects {
		p, ok := contract.ParsePolarity(s.Polarity)
		if !ok {
			continue
		}
		cands = append(cands, candidate{
			id:         g.res.Canonical(s.SignalID, g.reg),
			polarity:   p,
			provenance: s.Provenance,
		})
		for _, t := range s.Tags {
			if t = strings.TrimSpace(t); t != "" {
				tags[t] = true
			}
		}
	}
	// Bare signal names count as affirmations without provenance.
	for _, s := range out.Signals {
		if strings.TrimSpace(s) == "" {
			continue
		}
		cands = append(cands, candidate{id: g.res.Canonical(s, g.reg), polarity: contract.Affirm})
	}
	return cands, tags
}

func (g *ContractGrader) gradeContract(ct contract.CaseContract, out CandidateOutput) Result {
	n := len(ct.ExpectedSignals)
	if n == 0 {
		return Result{
			Criterion:  ConceptRecall,
			Score:      1.0,
			Reasoning:  "no expected signals",
			Components: map[string]float64{ConceptRecall: 1.0, EvidenceIntegrity: 1.0},
		}
	}

	cands, tags := g.candidates(out)
	rawLower := strings.ToLower(out.RawInput)
	var failures []Failure
	matches, evidencePass := 0, 0

	for _, es := range ct.ExpectedSignals {
		want := g.res.Canonical(es.SignalID, g.reg)
		pol := es.Polarity
		if pol == "" {
			pol = contract.Affirm
		}

		var matched *candidate
		var missing []string
		for i := range cands {
			c := &cands[i]
			if c.id != want || c.polarity != pol {
				continue
			}
			miss := missingProvenance(es.RequiredProvenance, rawLower, c.provenance)
			if matched == nil || (len(missing) > 0 && len(miss) == 0) {
				matched, missing = c, miss
			}
			if len(miss) == 0 {
				break
			}
		}

		if matched == nil {
			failures = append(failures, Failure{
				Criterion: ConceptRecall,
				SignalID:  want,
				Detail:    fmt.Sprintf("no %s candidate for %s", pol, want),
			})
			continue
		}
		matches++
		if len(missing) > 0 {
			failures = append(failures, Failure{
				Criterion: EvidenceIntegrity,
				SignalID:  want,
				Detail:    fmt.Sprintf("provenance missing %q", missing),
			})
			continue
		}
		evidencePass++
	}

	drMisses := 0
	for _, f := range ct.ExpectedBehaviorFlags {
		if !tags[f] {
			drMisses++
			failures = append(failures, Failure{
				Criterion: BehaviorFlags,
				Detail:    fmt.Sprintf("behavior flag %s not tagged", f),
			})
		}
	}

	cr := safeDiv(matches, n)
	ah := safeDiv(evidencePass, n)
	return Result{
		Criterion: ConceptRecall,
		Score:     mean(cr, ah),
		Flagged:   cr < g.th.ConceptRecall || ah < g.th.EvidenceIntegrity || drMisses > 0,
		Reasoning: fmt.Sprintf("CR %d/%d, AH %d/%d, DR misses %d", matches, n, evidencePass, n, drMisses),
		Components: map[string]float64{
			ConceptRecall:     cr,
			EvidenceIntegrity: ah,
		},
		Failures: failures,
	}
}

// missingProvenance returns the required substrings absent from either the
// raw input or the candidate's own provenance, case-insensitively.
func missingProvenance(required []string, rawLower, provenance string) []string {
	provLower := strings.ToLower(provenance)
	var miss []string
	for _, r := range required {
		r = strings.ToLower(r)
		if !strings.Contains(rawLower, r) || !strings.Contains(provLower, r) {
			miss = append(miss, r)
		}
	}
	return miss
}

func (g *ContractGrader) gradeLegacy(phrases []string, out CandidateOutput) Result {
	corpus := normalize(strings.Join(append(append([]string(nil), out.Signals...), out.Summary), " "))
	r := containment(ConceptRecall, phrases, corpus, g.th.Legacy)
	r.Reasoning = "legacy: " + r.Reasoning
	return r
}

// normalize lower-cases s and collapses whitespace runs to one space.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func containment(criterion string, phrases []string, corpus string, threshold float64) Result {
	var failures []Failure
	found, total := 0, 0
	for _, p := range phrases {
		np := normalize(p)
		if np == "" {
			continue
		}
		total++
		if strings.Contains(corpus, np) {
			found++
			continue
		}
		failures = append(failures, Failure{Criterion: criterion, Detail: fmt.Sprintf("%q not mentioned", p)})
	}
	score := safeDiv(found, total)
	return Result{
		Criterion: criterion,
		Score:     score,
		Flagged:   score < threshold,
		Reasoning: fmt.Sprintf("%d/%d phrases found", found, total),
		Failures:  failures,
	}
}

// Package config holds the engine policy file: grading thresholds, audit
// limits, the allowed intent enum and the task→grader table. Default()
// carries the production values; Load overlays a YAML file on top of them.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Thresholds are the score cut-offs used by graders and the evaluator.
type Thresholds struct {
	ConceptRecall     float64 `yaml:"concept_recall"`
	EvidenceIntegrity float64 `yaml:"evidence_integrity"`
	Legacy            float64 `yaml:"legacy"`
	PassLabel         float64 `yaml:"pass_label"`
}

// Task binds a task id to the graders that run for it.
type Task struct {
	Graders  []string `yaml:"graders"`
	Dominant string   `yaml:"dominant"`
}

// Policy is the full engine configuration.
type Policy struct {
	Thresholds           Thresholds      `yaml:"thresholds"`
	MaxProvenanceLen     int             `yaml:"max_provenance_len"`
	AllowedIntents       []string        `yaml:"allowed_intents"`
	GenericDenyLexicon   []string        `yaml:"generic_deny_lexicon"`
	DenyMismatchExamples int             `yaml:"deny_mismatch_examples"`
	DefaultReviewStatus  string          `yaml:"default_review_status"`
	Tasks                map[string]Task `yaml:"tasks"`
}

// Criterion codes used in scorecards.
const (
	CriterionConceptRecall = "CR"
	CriterionSummary       = "AC"
)

// Default returns the built-in policy.
func Default() Policy {
	return Policy{
		Thresholds: Thresholds{
			ConceptRecall:     0.8,
			EvidenceIntegrity: 1.0,
			Legacy:            0.8,
			PassLabel:         0.8,
		},
		MaxProvenanceLen: 300,
		AllowedIntents: []string{
			"SIGNAL_DETECTION",
			"NEGATION",
			"EXCLUSION",
			"TEMPORALITY",
			"AMBIGUITY",
		},
		GenericDenyLexicon: []string{
			"denies",
			"no evidence of",
			"without",
			"not present",
			"negative for",
		},
		DenyMismatchExamples: 10,
		DefaultReviewStatus:  "auto_generated",
		Tasks: map[string]Task{
			"signal_enrichment":  {Graders: []string{CriterionConceptRecall}, Dominant: CriterionConceptRecall},
			"event_summary":      {Graders: []string{CriterionSummary}, Dominant: CriterionSummary},
			"clinical_reasoning": {Graders: []string{CriterionConceptRecall, CriterionSummary}, Dominant: CriterionConceptRecall},
		},
	}
}

// Load reads a policy file and overlays it on Default(). Fields absent
// from the file keep their default values; a tasks map in the file is
// merged key by key.
func Load(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse overlays policy YAML bytes on Default().
func Parse(data []byte) (Policy, error) {
	p := Default()
	tasks := p.Tasks
	p.Tasks = nil
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("config: parse policy: %w", err)
	}
	for id, t := range p.Tasks {
		tasks[id] = t
	}
	p.Tasks = tasks
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks internal consistency of the policy.
func (p Policy) Validate() error {
	for name, v := range map[string]float64{
		"concept_recall":     p.Thresholds.ConceptRecall,
		"evidence_integrity": p.Thresholds.EvidenceIntegrity,
		"legacy":             p.Thresholds.Legacy,
		"pass_label":         p.Thresholds.PassLabel,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: threshold %s=%.2f outside [0,1]", name, v)
		}
	}
	if p.MaxProvenanceLen <= 0 {
		return fmt.Errorf("config: max_provenance_len must be positive, got %d", p.MaxProvenanceLen)
	}
	if len(p.AllowedIntents) == 0 {
		return fmt.Errorf("config: allowed_intents is empty")
	}
	for id, t := range p.Tasks {
		if len(t.Graders) == 0 {
			return fmt.Errorf("config: task %q has no graders", id)
		}
		found := false
		for _, g := range t.Graders {
			if g == t.Dominant {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("config: task %q dominant %q is not one of its graders", id, t.Dominant)
		}
	}
	return nil
}

// IntentAllowed reports whether intent is in the allowed enum.
func (p Policy) IntentAllowed(intent string) bool {
	intent = strings.ToUpper(strings.TrimSpace(intent))
	for _, a := range p.AllowedIntents {
		if strings.EqualFold(a, intent) {
			return true
		}
	}
	return false
}

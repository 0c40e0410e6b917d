// Package dataset reads generated case batches and candidate outputs and
// writes the golden set artifacts produced by an audit run.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"accountant/internal/audit"
	"accountant/internal/grade"
)

var validate = validator.New()

type batchFile struct {
	TestCases []audit.RawCase `json:"test_cases" yaml:"test_cases"`
}

// LoadRawCases reads one or more batch files and concatenates their cases
// in argument order. Each file holds {test_cases: [...]} or a bare array,
// as JSON or YAML.
func LoadRawCases(paths ...string) ([]audit.RawCase, error) {
	var all []audit.RawCase
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("dataset: read %q: %w", p, err)
		}
		cases, err := ParseRawCases(data, filepath.Ext(p))
		if err != nil {
			return nil, fmt.Errorf("dataset: %s: %w", p, err)
		}
		all = append(all, cases...)
	}
	return all, nil
}

// ParseRawCases decodes one batch. ext is a format hint; empty means
// detect from content.
func ParseRawCases(data []byte, ext string) ([]audit.RawCase, error) {
	trimmed := strings.TrimSpace(string(data))
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if strings.HasPrefix(trimmed, "-") {
			var cases []audit.RawCase
			if err := yaml.Unmarshal(data, &cases); err != nil {
				return nil, fmt.Errorf("parse batch yaml: %w", err)
			}
			return cases, nil
		}
		var b batchFile
		if err := yaml.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("parse batch yaml: %w", err)
		}
		return b.TestCases, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var cases []audit.RawCase
		if err := json.Unmarshal(data, &cases); err != nil {
			return nil, fmt.Errorf("parse batch json: %w", err)
		}
		return cases, nil
	}
	var b batchFile
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse batch json: %w", err)
	}
	return b.TestCases, nil
}

// CandidateRecord is one model response to grade.
type CandidateRecord struct {
	TestID    string                `json:"test_id" validate:"required"`
	TaskID    string                `json:"task_id" validate:"required"`
	MetricID  string                `json:"metric_id,omitempty"`
	Archetype string                `json:"archetype,omitempty"`
	Output    grade.CandidateOutput `json:"output"`
}

// LoadCandidates reads a JSON array of candidate records.
func LoadCandidates(path string) ([]CandidateRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read %q: %w", path, err)
	}
	var recs []CandidateRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("dataset: parse candidates %q: %w", path, err)
	}
	for i := range recs {
		if err := validate.Struct(recs[i]); err != nil {
			return nil, fmt.Errorf("dataset: candidate %d: %w", i, err)
		}
	}
	return recs, nil
}

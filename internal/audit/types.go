// Package audit implements the Accountant: it validates generated evidence
// traces against the signal registry and the source notes, assembles a
// CaseContract per case, deduplicates across the batch and reports
// coverage and violations.
//
// Audit is a pure function of its inputs. Dedup keys and coverage counters
// live inside a single Audit call; concurrent audits never share state.
package audit

import (
	"sort"
	"time"

	"accountant/internal/contract"
	"accountant/internal/offsets"
)

// MultiIntent labels a case whose items do not agree on one intent.
const MultiIntent = "MULTI_INTENT"

// Note is one clinical note in a generated case.
type Note struct {
	ID        string `json:"id" yaml:"id" validate:"required"`
	Author    string `json:"author,omitempty" yaml:"author,omitempty"`
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Text      string `json:"text" yaml:"text"`
}

// RawTraceItem is one claimed piece of evidence. Offsets are code-point
// positions into the referenced note's text.
type RawTraceItem struct {
	NoteID    string       `json:"note_id" yaml:"note_id"`
	SignalID  string       `json:"signal_id" yaml:"signal_id"`
	Intent    string       `json:"intent,omitempty" yaml:"intent,omitempty"`
	Polarity  string       `json:"polarity" yaml:"polarity"`
	Substring string       `json:"substring" yaml:"substring"`
	Offsets   offsets.Span `json:"offsets" yaml:"offsets"`
	Flags     []string     `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// Trace wraps the claimed evidence items of a case.
type Trace struct {
	Items []RawTraceItem `json:"items" yaml:"items"`
}

// RawMetadata is optional generator metadata.
type RawMetadata struct {
	Intent           string `json:"intent,omitempty" yaml:"intent,omitempty"`
	ConfounderTag    string `json:"confounder_tag,omitempty" yaml:"confounder_tag,omitempty"`
	NewFailureMode   string `json:"new_failure_mode,omitempty" yaml:"new_failure_mode,omitempty"`
	ReviewStatus     string `json:"review_status,omitempty" yaml:"review_status,omitempty"`
	ConflictType     string `json:"conflict_type,omitempty" yaml:"conflict_type,omitempty"`
	ResolutionPolicy string `json:"resolution_policy,omitempty" yaml:"resolution_policy,omitempty"`
}

// RawCase is one generated test case as emitted upstream. The auditor
// never mutates it.
type RawCase struct {
	TestID      string       `json:"test_id" yaml:"test_id" validate:"required"`
	Description string       `json:"description" yaml:"description"`
	Archetype   string       `json:"archetype,omitempty" yaml:"archetype,omitempty"`
	Notes       []Note       `json:"notes" yaml:"notes" validate:"dive"`
	Trace       Trace        `json:"trace" yaml:"trace"`
	Metadata    *RawMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// CaseMetadata is the enriched metadata written on verified cases.
type CaseMetadata struct {
	Intent         string    `json:"intent"`
	ConfounderTag  string    `json:"confounder_tag"`
	NewFailureMode string    `json:"new_failure_mode"`
	ReviewStatus   string    `json:"review_status"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// VerifiedCase is a case accepted into the golden set. Immutable once built.
type VerifiedCase struct {
	TestID             string                `json:"test_id"`
	ConcernID          string                `json:"concern_id"`
	Description        string                `json:"description"`
	Archetype          string                `json:"archetype,omitempty"`
	PatientPayload     string                `json:"patient_payload"`
	Contract           contract.CaseContract `json:"contract"`
	IsAmbiguityCase    bool                  `json:"is_ambiguity_case,omitempty"`
	ConflictType       string                `json:"conflict_type,omitempty"`
	ResolutionPolicy   string                `json:"resolution_policy,omitempty"`
	ConflictingSignals []string              `json:"conflicting_signals,omitempty"`
	Metadata           CaseMetadata          `json:"metadata"`
}

// ViolationType enumerates per-case validation failures.
type ViolationType string

const (
	MalformedCase        ViolationType = "MALFORMED_CASE"
	MissingNote          ViolationType = "MISSING_NOTE"
	MissingProvenance    ViolationType = "MISSING_PROVENANCE"
	ProvenanceTooLong    ViolationType = "PROVENANCE_TOO_LONG"
	InvalidSignalID      ViolationType = "INVALID_SIGNAL_ID"
	InvalidPolarity      ViolationType = "INVALID_POLARITY"
	DenyTemplateMissing  ViolationType = "DENY_TEMPLATE_MISSING"
	DenyTemplateMismatch ViolationType = "DENY_TEMPLATE_MISMATCH"
	IntentMismatch       ViolationType = "INTENT_MISMATCH"
	MissingConfounderTag ViolationType = "MISSING_CONFOUNDER_TAG"
	MissingFailureMode   ViolationType = "MISSING_FAILURE_MODE"
	DuplicateCase        ViolationType = "DUPLICATE_CASE"
)

// caseFatal reports whether a violation excludes the whole case even in
// lenient mode, where item-level violations only drop the item and intent
// mismatches are advisory.
func (t ViolationType) caseFatal() bool {
	switch t {
	case MalformedCase, MissingConfounderTag, MissingFailureMode, DuplicateCase:
		return true
	default:
		return false
	}
}

// Violation is one append-only validation record.
type Violation struct {
	TestID  string        `json:"test_id"`
	Type    ViolationType `json:"type"`
	Message string        `json:"message"`
}

// DenyMismatch captures a DENY item whose substring matched no template.
type DenyMismatch struct {
	TestID        string   `json:"test_id"`
	SignalID      string   `json:"signal_id"`
	Substring     string   `json:"substring"`
	DenyTemplates []string `json:"deny_templates"`
}

// CoverageMap counts validated AFFIRM occurrences per canonical signal.
type CoverageMap map[string]int

// Covered returns the sorted ids with a non-zero count.
func (m CoverageMap) Covered() []string {
	var out []string
	for id, n := range m {
		if n > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Uncovered returns the sorted ids with a zero count.
func (m CoverageMap) Uncovered() []string {
	var out []string
	for id, n := range m {
		if n == 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Result is the output of one audit run.
type Result struct {
	Verified          []VerifiedCase `json:"verified"`
	Coverage          CoverageMap    `json:"coverage"`
	Violations        []Violation    `json:"violations"`
	TotalProcessed    int            `json:"total_processed"`
	DroppedUnresolved []string       `json:"dropped_unresolved,omitempty"`
	RepairedOffsets   int            `json:"repaired_offsets"`
	DenyMismatches    []DenyMismatch `json:"deny_mismatches,omitempty"`
}

// MeetsMinimum applies the caller's acceptance policy: at least n cases
// verified. The engine itself never decides batch success.
func (r *Result) MeetsMinimum(n int) bool {
	return len(r.Verified) >= n
}

// ViolationCounts tallies violations by type.
func (r *Result) ViolationCounts() map[ViolationType]int {
	out := make(map[ViolationType]int)
	for _, v := range r.Violations {
		out[v.Type]++
	}
	return out
}

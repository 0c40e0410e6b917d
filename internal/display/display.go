// Package display provides human-readable names for machine codes.
//
// Rule: code is for machines, words are for humans.
// Use these functions in CLI output and markdown reports.
// Keep raw codes for JSON fields, map keys, and equality comparisons.
package display

import "strings"

// --- Violation Types ---

var violations = map[string]string{
	"MALFORMED_CASE":         "Malformed Case",
	"MISSING_NOTE":           "Missing Note",
	"MISSING_PROVENANCE":     "Missing Provenance",
	"PROVENANCE_TOO_LONG":    "Provenance Too Long",
	"INVALID_SIGNAL_ID":      "Unknown Signal",
	"INVALID_POLARITY":       "Invalid Polarity",
	"DENY_TEMPLATE_MISSING":  "No Deny Template",
	"DENY_TEMPLATE_MISMATCH": "Deny Phrase Mismatch",
	"INTENT_MISMATCH":        "Intent Mismatch",
	"MISSING_CONFOUNDER_TAG": "Missing Confounder Tag",
	"MISSING_FAILURE_MODE":   "Missing Failure Mode",
	"DUPLICATE_CASE":         "Duplicate Case",
}

// Violation returns the human-readable name for a violation code.
// Unknown codes are returned as-is.
func Violation(code string) string {
	if name, ok := violations[code]; ok {
		return name
	}
	return code
}

// ViolationWithCode returns "Unknown Signal (INVALID_SIGNAL_ID)" format.
func ViolationWithCode(code string) string {
	if name := Violation(code); name != code {
		return name + " (" + code + ")"
	}
	return code
}

// --- Grading Criteria ---

var criteria = map[string]string{
	"CR": "Concept Recall",
	"AH": "Evidence Integrity",
	"DR": "Behavior Flags",
	"AC": "Summary Coverage",
}

// Criterion returns the human-readable name for a criterion code.
func Criterion(code string) string {
	if name, ok := criteria[code]; ok {
		return name
	}
	return code
}

// --- Intents and polarity ---

// Intent turns an UPPER_SNAKE intent code into title words:
// "SIGNAL_DETECTION" → "Signal Detection".
func Intent(code string) string {
	if code == "" {
		return ""
	}
	parts := strings.Split(strings.ToLower(code), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// Polarity returns "affirmed" or "denied" for AFFIRM/DENY.
func Polarity(code string) string {
	switch strings.ToUpper(code) {
	case "AFFIRM", "":
		return "affirmed"
	case "DENY":
		return "denied"
	default:
		return code
	}
}

// Package contract defines the oracle types shared by the auditor, which
// produces them, and the graders, which consume them at evaluation time.
package contract

import (
	"sort"
	"strings"
)

// Polarity states whether a signal is asserted present or explicitly negated.
type Polarity string

const (
	Affirm Polarity = "AFFIRM"
	Deny   Polarity = "DENY"
)

// ParsePolarity normalises a raw polarity string. Empty input yields
// Affirm; unknown values return false.
func ParsePolarity(s string) (Polarity, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(Affirm):
		return Affirm, true
	case string(Deny):
		return Deny, true
	default:
		return "", false
	}
}

// ExpectedSignal is the verified, minimal evidentiary requirement for one
// signal assertion. SignalID is always a canonical registry id.
type ExpectedSignal struct {
	SignalID           string   `json:"signal_id"`
	Polarity           Polarity `json:"polarity"`
	RequiredProvenance []string `json:"required_provenance"`
}

// Key returns the "signal_id:polarity" form used in dedup keys.
func (e ExpectedSignal) Key() string {
	return e.SignalID + ":" + string(e.Polarity)
}

// CaseContract is the oracle attached to a verified case.
type CaseContract struct {
	Intents               []string         `json:"intents"`
	ExpectedSignals       []ExpectedSignal `json:"expected_signals"`
	ExpectedBehaviorFlags []string         `json:"expected_behavior_flags"`
}

// ConflictingSignals returns the sorted canonical ids that are both
// affirmed and denied by the contract.
func (c CaseContract) ConflictingSignals() []string {
	affirmed := make(map[string]bool)
	denied := make(map[string]bool)
	for _, s := range c.ExpectedSignals {
		switch s.Polarity {
		case Affirm:
			affirmed[s.SignalID] = true
		case Deny:
			denied[s.SignalID] = true
		}
	}
	var out []string
	for id := range affirmed {
		if denied[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// DedupKey builds the batch dedup key: sorted signal:polarity pairs joined
// by "|" (or "NONE"), then "|" and the confounder tag.
func (c CaseContract) DedupKey(confounderTag string) string {
	keys := make([]string, 0, len(c.ExpectedSignals))
	for _, s := range c.ExpectedSignals {
		keys = append(keys, s.Key())
	}
	sort.Strings(keys)
	sig := "NONE"
	if len(keys) > 0 {
		sig = strings.Join(keys, "|")
	}
	return sig + "|" + confounderTag
}

// Clone returns a deep copy so verified cases never share backing arrays.
func (c CaseContract) Clone() CaseContract {
	out := CaseContract{
		Intents:               append([]string(nil), c.Intents...),
		ExpectedBehaviorFlags: append([]string(nil), c.ExpectedBehaviorFlags...),
	}
	if c.ExpectedSignals != nil {
		out.ExpectedSignals = make([]ExpectedSignal, len(c.ExpectedSignals))
		for i, s := range c.ExpectedSignals {
			s.RequiredProvenance = append([]string(nil), s.RequiredProvenance...)
			out.ExpectedSignals[i] = s
		}
	}
	return out
}

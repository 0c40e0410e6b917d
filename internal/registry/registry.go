// Package registry holds the canonical signal table for one domain/metric
// scope. A Registry is built once by the caller and is read-only after
// construction, so it can be shared freely between concurrent audits and
// graders.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRegistry is returned when entries fail boundary validation.
var ErrInvalidRegistry = errors.New("registry: invalid registry")

// Entry is one canonical signal.
type Entry struct {
	ID            string   `json:"id" yaml:"id" validate:"required"`
	LegacyID      string   `json:"legacy_id,omitempty" yaml:"legacy_id,omitempty"`
	DenyTemplates []string `json:"deny_templates,omitempty" yaml:"deny_templates,omitempty" validate:"dive,required"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// File is the on-disk registry layout.
type File struct {
	Domain  string  `json:"domain,omitempty" yaml:"domain,omitempty"`
	Metric  string  `json:"metric,omitempty" yaml:"metric,omitempty"`
	Signals []Entry `json:"signals" yaml:"signals" validate:"required,min=1,dive"`
}

// Registry is an immutable, indexed view over a list of entries.
type Registry struct {
	domain   string
	metric   string
	entries  []Entry
	byID     map[string]int
	byLegacy map[string]int
	byLower  map[string]int
}

var validate = validator.New()

// New validates entries and builds the lookup indexes. Ids must be
// unique; a legacy id may not shadow another entry's canonical id.
func New(entries []Entry) (*Registry, error) {
	return newScoped("", "", entries)
}

// FromFile builds a Registry from a parsed registry file.
func FromFile(f File) (*Registry, error) {
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}
	return newScoped(f.Domain, f.Metric, f.Signals)
}

func newScoped(domain, metric string, entries []Entry) (*Registry, error) {
	r := &Registry{
		domain:   domain,
		metric:   metric,
		entries:  make([]Entry, 0, len(entries)),
		byID:     make(map[string]int, len(entries)),
		byLegacy: make(map[string]int),
		byLower:  make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		e.LegacyID = strings.TrimSpace(e.LegacyID)
		if err := validate.Struct(e); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrInvalidRegistry, e.ID, err)
		}
		if _, dup := r.byID[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidRegistry, e.ID)
		}
		e.DenyTemplates = append([]string(nil), e.DenyTemplates...)
		idx := len(r.entries)
		r.entries = append(r.entries, e)
		r.byID[e.ID] = idx
	}
	// Second pass so legacy ids can be checked against every canonical id.
	for idx, e := range r.entries {
		if e.LegacyID != "" {
			if _, clash := r.byID[e.LegacyID]; clash && e.LegacyID != e.ID {
				return nil, fmt.Errorf("%w: legacy id %q of %q is another signal's id", ErrInvalidRegistry, e.LegacyID, e.ID)
			}
			r.byLegacy[e.LegacyID] = idx
		}
	}
	// Case-insensitive index: canonical ids win over legacy ids.
	for idx, e := range r.entries {
		if e.LegacyID != "" {
			r.byLower[strings.ToLower(e.LegacyID)] = idx
		}
	}
	for idx, e := range r.entries {
		r.byLower[strings.ToLower(e.ID)] = idx
	}
	return r, nil
}

// Domain returns the domain scope, if the registry was loaded from a file.
func (r *Registry) Domain() string { return r.domain }

// Metric returns the metric scope, if the registry was loaded from a file.
func (r *Registry) Metric() string { return r.metric }

// Len returns the number of canonical signals.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Entries returns a copy of the entries in load order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// IDs returns the canonical ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		ids = append(ids, e.ID)
	}
	sort.Strings(ids)
	return ids
}

// Get returns the entry with the exact canonical id.
func (r *Registry) Get(id string) (Entry, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return Entry{}, false
	}
	return r.entries[idx], true
}

// Has reports whether id is a canonical id.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// ByLegacy returns the current entry for an exact legacy id.
func (r *Registry) ByLegacy(legacy string) (Entry, bool) {
	idx, ok := r.byLegacy[legacy]
	if !ok {
		return Entry{}, false
	}
	return r.entries[idx], true
}

// ByFold returns the entry whose id or legacy id equals s case-insensitively.
func (r *Registry) ByFold(s string) (Entry, bool) {
	idx, ok := r.byLower[strings.ToLower(s)]
	if !ok {
		return Entry{}, false
	}
	return r.entries[idx], true
}

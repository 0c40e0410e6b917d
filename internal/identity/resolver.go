// Package identity resolves raw signal labels to canonical registry ids.
//
// Resolution order, first match wins, all input trimmed:
//
//  1. alias table (raw, then lower-cased raw); the alias target must
//     itself resolve against the registry
//  2. exact canonical id
//  3. exact legacy id, returning the current id
//  4. case-insensitive id or legacy id
//
// The alias table absorbs known historical renames and typos. It is not
// a fuzzy matcher.
package identity

import (
	"strings"

	"accountant/internal/registry"
)

// Resolver canonicalizes signal ids. The zero value has an empty alias
// table and is ready to use.
type Resolver struct {
	aliases map[string]string
	version int
}

// New returns a Resolver backed by the given alias table.
func New(table AliasTable) *Resolver {
	aliases := make(map[string]string, len(table.Aliases))
	for k, v := range table.Aliases {
		aliases[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return &Resolver{aliases: aliases, version: table.Version}
}

// AliasVersion returns the version of the injected alias table.
func (r *Resolver) AliasVersion() int {
	if r == nil {
		return 0
	}
	return r.version
}

// Resolve returns the canonical id for raw, or false when nothing matches.
// Unresolved ids must be treated as validation failures by callers.
func (r *Resolver) Resolve(raw string, reg *registry.Registry) (string, bool) {
	if reg == nil {
		return "", false
	}
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", false
	}

	if r != nil && len(r.aliases) > 0 {
		for _, key := range []string{id, strings.ToLower(id)} {
			target, ok := r.aliases[key]
			if !ok {
				continue
			}
			if canonical, ok := resolveRegistry(target, reg); ok {
				return canonical, true
			}
		}
	}
	return resolveRegistry(id, reg)
}

func resolveRegistry(id string, reg *registry.Registry) (string, bool) {
	if reg.Has(id) {
		return id, true
	}
	if e, ok := reg.ByLegacy(id); ok {
		return e.ID, true
	}
	if e, ok := reg.ByFold(id); ok {
		return e.ID, true
	}
	return "", false
}

// Canonical resolves raw, falling back to the trimmed input when it does
// not resolve. Only for comparison on the grading side; never use the
// fallback value inside an accepted contract.
func (r *Resolver) Canonical(raw string, reg *registry.Registry) string {
	if id, ok := r.Resolve(raw, reg); ok {
		return id
	}
	return strings.TrimSpace(raw)
}

package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"accountant/internal/config"
	"accountant/internal/contract"
	"accountant/internal/identity"
	"accountant/internal/logging"
	"accountant/internal/offsets"
	"accountant/internal/registry"
)

var (
	// ErrEmptyRegistry is returned when the auditor has no signals to validate against.
	ErrEmptyRegistry = errors.New("audit: signal registry is empty")

	// ErrNoCases is returned when the batch contains no cases.
	ErrNoCases = errors.New("audit: no input cases")
)

// Options configure one Auditor.
type Options struct {
	// ConcernID is stamped on every verified case.
	ConcernID string
	// Lenient keeps a case whose violations only dropped items or were
	// advisory. A lenient case still needs at least one surviving
	// expected signal when any of its items were dropped. By default a
	// case with any violation is rejected.
	Lenient bool
	// Policy supplies limits, the intent enum and the deny lexicon.
	// Zero value means config.Default().
	Policy *config.Policy
	// Now stamps generated_at. Defaults to time.Now().UTC().
	Now func() time.Time
	// Logger defaults to the "audit" component logger.
	Logger *slog.Logger
}

// Auditor validates raw generated cases against one registry snapshot.
type Auditor struct {
	reg    *registry.Registry
	res    *identity.Resolver
	policy config.Policy
	opts   Options
	now    func() time.Time
	log    *slog.Logger
}

var validate = validator.New()

// New returns an Auditor bound to reg and res.
func New(reg *registry.Registry, res *identity.Resolver, opts Options) *Auditor {
	a := &Auditor{reg: reg, res: res, opts: opts, policy: config.Default()}
	if opts.Policy != nil {
		a.policy = *opts.Policy
	}
	a.now = opts.Now
	if a.now == nil {
		a.now = func() time.Time { return time.Now().UTC() }
	}
	a.log = opts.Logger
	if a.log == nil {
		a.log = logging.New("audit")
	}
	return a
}

// Audit processes the batch sequentially.
func (a *Auditor) Audit(cases []RawCase) (*Result, error) {
	if err := a.precheck(cases); err != nil {
		return nil, err
	}
	outcomes := make([]outcome, len(cases))
	for i := range cases {
		outcomes[i] = a.check(cases[i])
	}
	return a.fold(outcomes), nil
}

// AuditParallel runs the per-case checks on a bounded worker pool and then
// folds dedup and coverage in input order, so the result is identical to
// Audit. workers < 1 means one worker.
func (a *Auditor) AuditParallel(ctx context.Context, cases []RawCase, workers int) (*Result, error) {
	if err := a.precheck(cases); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	outcomes := make([]outcome, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range cases {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = a.check(cases[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("audit: parallel check: %w", err)
	}
	return a.fold(outcomes), nil
}

func (a *Auditor) precheck(cases []RawCase) error {
	if a.reg.Len() == 0 {
		return ErrEmptyRegistry
	}
	if len(cases) == 0 {
		return ErrNoCases
	}
	return nil
}

// outcome is the pure per-case result before batch-level dedup.
type outcome struct {
	testID     string
	candidate  *VerifiedCase
	violations []Violation
	coverage   map[string]int
	denyMiss   []DenyMismatch
	repaired   int
	unresolved bool
	rejected   bool
	dedupKey   string
}

func (o *outcome) violate(t ViolationType, format string, args ...any) {
	o.violations = append(o.violations, Violation{
		TestID:  o.testID,
		Type:    t,
		Message: fmt.Sprintf(format, args...),
	})
	if t.caseFatal() {
		o.rejected = true
	}
}

// check validates one case. It reads c and never writes to it.
func (a *Auditor) check(c RawCase) outcome {
	o := outcome{testID: c.TestID, coverage: make(map[string]int)}

	if err := validate.Struct(c); err != nil {
		o.violate(MalformedCase, "case failed boundary validation: %v", err)
		return o
	}

	var meta RawMetadata
	if c.Metadata != nil {
		meta = *c.Metadata
	}

	intent, intents := a.deriveIntent(c, meta, &o)

	confounder := strings.TrimSpace(meta.ConfounderTag)
	failureMode := strings.TrimSpace(meta.NewFailureMode)
	if confounder == "" {
		o.violate(MissingConfounderTag, "metadata.confounder_tag is required")
	}
	if failureMode == "" {
		o.violate(MissingFailureMode, "metadata.new_failure_mode is required")
	}

	notes := make(map[string]string, len(c.Notes))
	for _, n := range c.Notes {
		notes[n.ID] = n.Text
	}

	ct := contract.CaseContract{Intents: intents, ExpectedSignals: []contract.ExpectedSignal{}}
	flags := make(map[string]bool)

	for i, item := range c.Trace.Items {
		text, ok := notes[item.NoteID]
		if !ok {
			o.violate(MissingNote, "item %d references unknown note %q", i, item.NoteID)
			continue
		}
		if strings.TrimSpace(item.Substring) == "" {
			o.violate(MissingProvenance, "item %d (%s) has no substring", i, item.SignalID)
			continue
		}
		if n := offsets.RuneLen(item.Substring); n > a.policy.MaxProvenanceLen {
			o.violate(ProvenanceTooLong, "item %d (%s) substring is %d chars, max %d", i, item.SignalID, n, a.policy.MaxProvenanceLen)
			continue
		}

		span, ok := offsets.Locate(text, item.Substring, item.Offsets)
		if !ok {
			// Evidence that cannot be anchored means the generator made it up.
			o.unresolved = true
			return o
		}
		if span != item.Offsets {
			o.repaired++
		}

		canonical, ok := a.res.Resolve(item.SignalID, a.reg)
		if !ok {
			o.violate(InvalidSignalID, "item %d signal %q not in registry", i, item.SignalID)
			continue
		}
		polarity, ok := contract.ParsePolarity(item.Polarity)
		if !ok {
			o.violate(InvalidPolarity, "item %d (%s) polarity %q", i, canonical, item.Polarity)
			continue
		}

		if polarity == contract.Deny {
			entry, _ := a.reg.Get(canonical)
			if len(entry.DenyTemplates) == 0 {
				o.violate(DenyTemplateMissing, "item %d: signal %s has no deny templates", i, canonical)
				continue
			}
			if !a.denyMatches(item.Substring, entry.DenyTemplates) {
				o.violate(DenyTemplateMismatch, "item %d: %q matches no deny template of %s or generic negation", i, item.Substring, canonical)
				o.denyMiss = append(o.denyMiss, DenyMismatch{
					TestID:        c.TestID,
					SignalID:      canonical,
					Substring:     item.Substring,
					DenyTemplates: append([]string(nil), entry.DenyTemplates...),
				})
				continue
			}
		}

		ct.ExpectedSignals = append(ct.ExpectedSignals, contract.ExpectedSignal{
			SignalID:           canonical,
			Polarity:           polarity,
			RequiredProvenance: []string{item.Substring},
		})
		for _, f := range item.Flags {
			if f = strings.TrimSpace(f); f != "" {
				flags[f] = true
			}
		}
		if polarity == contract.Affirm {
			o.coverage[canonical]++
		}
	}

	ct.ExpectedBehaviorFlags = sortedKeys(flags)

	vc := &VerifiedCase{
		TestID:           c.TestID,
		ConcernID:        a.opts.ConcernID,
		Description:      c.Description,
		Archetype:        c.Archetype,
		PatientPayload:   PatientPayload(c.Notes),
		Contract:         ct,
		ConflictType:     strings.TrimSpace(meta.ConflictType),
		ResolutionPolicy: strings.TrimSpace(meta.ResolutionPolicy),
		Metadata: CaseMetadata{
			Intent:         intent,
			ConfounderTag:  confounder,
			NewFailureMode: failureMode,
			ReviewStatus:   strings.TrimSpace(meta.ReviewStatus),
			GeneratedAt:    a.now(),
		},
	}
	if vc.Metadata.ReviewStatus == "" {
		vc.Metadata.ReviewStatus = a.policy.DefaultReviewStatus
	}

	if conflicts := ct.ConflictingSignals(); len(conflicts) > 0 {
		vc.IsAmbiguityCase = true
		vc.ConflictingSignals = conflicts
		if vc.ConflictType == "" {
			vc.ConflictType = "affirm_vs_deny"
		}
		if vc.ResolutionPolicy == "" {
			vc.ResolutionPolicy = "none"
		}
	}

	dropped := len(c.Trace.Items) - len(ct.ExpectedSignals)
	switch {
	case !a.opts.Lenient && len(o.violations) > 0:
		o.rejected = true
	case dropped > 0 && len(ct.ExpectedSignals) == 0:
		o.rejected = true
	}
	o.dedupKey = ct.DedupKey(confounder)
	o.candidate = vc
	return o
}

// deriveIntent picks the case intent and the contract intents list.
func (a *Auditor) deriveIntent(c RawCase, meta RawMetadata, o *outcome) (string, []string) {
	derived := MultiIntent
	seen := make(map[string]bool)
	for _, item := range c.Trace.Items {
		seen[normIntent(item.Intent)] = true
	}
	if len(seen) == 1 {
		for in := range seen {
			if in != "" {
				derived = in
			}
		}
	}

	claimed := normIntent(meta.Intent)
	intent := derived
	if a.policy.IntentAllowed(claimed) {
		intent = claimed
	}
	if claimed != "" && claimed != MultiIntent && derived != MultiIntent && claimed != derived {
		o.violate(IntentMismatch, "metadata intent %s, trace items say %s", claimed, derived)
	}

	if intent != MultiIntent {
		return intent, []string{intent}
	}
	delete(seen, "")
	intents := sortedKeys(seen)
	if len(intents) == 0 {
		intents = []string{MultiIntent}
	}
	return intent, intents
}

func (a *Auditor) denyMatches(substring string, templates []string) bool {
	lower := strings.ToLower(substring)
	for _, t := range templates {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" && strings.Contains(lower, t) {
			return true
		}
	}
	for _, phrase := range a.policy.GenericDenyLexicon {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// fold applies batch-scoped dedup and coverage in input order.
func (a *Auditor) fold(outcomes []outcome) *Result {
	res := &Result{Coverage: make(CoverageMap, a.reg.Len())}
	for _, id := range a.reg.IDs() {
		res.Coverage[id] = 0
	}
	accepted := make(map[string]string)

	for _, o := range outcomes {
		res.TotalProcessed++
		res.Violations = append(res.Violations, o.violations...)
		res.RepairedOffsets += o.repaired
		for _, dm := range o.denyMiss {
			if len(res.DenyMismatches) < a.policy.DenyMismatchExamples {
				res.DenyMismatches = append(res.DenyMismatches, dm)
			}
		}

		if o.unresolved {
			res.DroppedUnresolved = append(res.DroppedUnresolved, o.testID)
			a.log.Warn("case dropped: evidence offsets unresolvable", "test_id", o.testID)
			continue
		}
		if o.rejected || o.candidate == nil {
			a.log.Debug("case rejected", "test_id", o.testID, "violations", len(o.violations))
			continue
		}
		if first, dup := accepted[o.dedupKey]; dup {
			res.Violations = append(res.Violations, Violation{
				TestID:  o.testID,
				Type:    DuplicateCase,
				Message: fmt.Sprintf("same expected signals and confounder as %s (key %s)", first, o.dedupKey),
			})
			a.log.Debug("case rejected as duplicate", "test_id", o.testID, "first", first)
			continue
		}
		accepted[o.dedupKey] = o.testID

		for id, n := range o.coverage {
			res.Coverage[id] += n
		}
		res.Verified = append(res.Verified, *o.candidate)
	}
	return res
}

// PatientPayload renders the notes of a case as the raw input text a
// model sees. Note texts are included verbatim so every provenance
// substring is present in the payload.
func PatientPayload(notes []Note) string {
	parts := make([]string, 0, len(notes))
	for _, n := range notes {
		var header []string
		if n.ID != "" {
			header = append(header, "["+n.ID+"]")
		}
		if n.Author != "" {
			header = append(header, n.Author)
		}
		if n.Timestamp != "" {
			header = append(header, "@ "+n.Timestamp)
		}
		if len(header) == 0 {
			parts = append(parts, n.Text)
			continue
		}
		parts = append(parts, strings.Join(header, " ")+"\n"+n.Text)
	}
	return strings.Join(parts, "\n\n")
}

func normIntent(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

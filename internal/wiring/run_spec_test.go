package wiring

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"accountant/internal/audit"
	"accountant/internal/config"
	"accountant/internal/contract"
	"accountant/internal/dataset"
	"accountant/internal/evaluate"
	"accountant/internal/grade"
	"accountant/internal/identity"
	"accountant/internal/metrics"
	"accountant/internal/registry"
	"accountant/internal/scorestore"
)

var _ = ginkgo.Describe("Run", func() {
	var (
		flow Flow
		dir  string
		st   *scorestore.Store
	)

	ginkgo.BeforeEach(func() {
		dir = ginkgo.GinkgoT().TempDir()

		reg, err := registry.LoadFromPath(filepath.Join("testdata", "registry.yaml"))
		gomega.Expect(err).To(gomega.Succeed())
		aliases, err := identity.LoadAliases(filepath.Join("testdata", "aliases.yaml"))
		gomega.Expect(err).To(gomega.Succeed())
		policy, err := config.Load(filepath.Join("testdata", "policy.yaml"))
		gomega.Expect(err).To(gomega.Succeed())
		cases, err := dataset.LoadRawCases(filepath.Join("testdata", "batch.json"))
		gomega.Expect(err).To(gomega.Succeed())
		cands, err := dataset.LoadCandidates(filepath.Join("testdata", "outputs.json"))
		gomega.Expect(err).To(gomega.Succeed())

		st, err = scorestore.Open(filepath.Join(dir, "scores.db"))
		gomega.Expect(err).To(gomega.Succeed())
		ginkgo.DeferCleanup(st.Close)

		flow = Flow{
			Registry:   reg,
			Resolver:   identity.New(aliases),
			Policy:     policy,
			Cases:      cases,
			Candidates: cands,
			ConcernID:  reg.Metric(),
			OutDir:     filepath.Join(dir, "golden"),
			RunID:      "wiring-run",
			Workers:    3,
			Store:      st,
			Metrics:    metrics.New(),
		}
	})

	ginkgo.It("keeps only anchored, unique, well-marked cases", func() {
		out, err := Run(context.Background(), flow)
		gomega.Expect(err).To(gomega.Succeed())

		var ids []string
		for _, v := range out.Audit.Verified {
			ids = append(ids, v.TestID)
		}
		gomega.Expect(ids).To(gomega.Equal([]string{"SSI-001", "SSI-002"}))
		gomega.Expect(out.Audit.DroppedUnresolved).To(gomega.Equal([]string{"SSI-003"}))
		gomega.Expect(out.Audit.ViolationCounts()).To(gomega.Equal(map[audit.ViolationType]int{
			audit.DuplicateCase:      1,
			audit.MissingFailureMode: 1,
			audit.InvalidSignalID:    1,
		}))
		gomega.Expect(out.Audit.Coverage).To(gomega.HaveKeyWithValue("wound_drainage_erythema", 2))
		gomega.Expect(out.Audit.Coverage).To(gomega.HaveKeyWithValue("fever", 1))
		gomega.Expect(out.Audit.Coverage).To(gomega.HaveKeyWithValue("positive_wound_culture", 0))
	})

	ginkgo.It("canonicalizes aliases and records the ambiguity case", func() {
		out, err := Run(context.Background(), flow)
		gomega.Expect(err).To(gomega.Succeed())

		first := out.Audit.Verified[0]
		gomega.Expect(first.Contract.ExpectedSignals).To(gomega.ContainElement(contract.ExpectedSignal{
			SignalID: "purulence", Polarity: contract.Deny, RequiredProvenance: []string{"No purulence"},
		}))
		gomega.Expect(first.Contract.ExpectedBehaviorFlags).To(gomega.Equal([]string{"document_negatives"}))

		amb := out.Audit.Verified[1]
		gomega.Expect(amb.IsAmbiguityCase).To(gomega.BeTrue())
		gomega.Expect(amb.ConflictingSignals).To(gomega.Equal([]string{"wound_drainage_erythema"}))
		gomega.Expect(amb.ConflictType).To(gomega.Equal("temporal"))
		gomega.Expect(amb.ResolutionPolicy).To(gomega.Equal("latest_wins"))
		gomega.Expect(amb.Metadata.Intent).To(gomega.Equal("AMBIGUITY"))
	})

	ginkgo.It("writes artifacts that round-trip into grading", func() {
		out, err := Run(context.Background(), flow)
		gomega.Expect(err).To(gomega.Succeed())

		gomega.Expect(out.Golden).To(gomega.HaveLen(2))
		gomega.Expect(*out.Golden[0].Contract).To(gomega.Equal(out.Audit.Verified[0].Contract))

		data, err := os.ReadFile(filepath.Join(flow.OutDir, dataset.ReportFile))
		gomega.Expect(err).To(gomega.Succeed())
		var rep audit.Report
		gomega.Expect(json.Unmarshal(data, &rep)).To(gomega.Succeed())
		gomega.Expect(rep.TotalCasesProcessed).To(gomega.Equal(5))
		gomega.Expect(rep.DroppedUnresolved).To(gomega.Equal(1))
		gomega.Expect(rep.CoverageSummary.UncoveredSignals).To(gomega.ConsistOf("purulence", "wound_dehiscence", "positive_wound_culture"))
	})

	ginkgo.It("grades candidates against the reloaded golden set", func() {
		out, err := Run(context.Background(), flow)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(out.Scorecards).To(gomega.HaveLen(3))

		enrich := out.Scorecards[0]
		gomega.Expect(enrich.OverallLabel).To(gomega.Equal(evaluate.Pass))
		gomega.Expect(enrich.Scores["CR"].Flagged).To(gomega.BeFalse())

		partial := out.Scorecards[1]
		gomega.Expect(partial.OverallLabel).To(gomega.Equal(evaluate.Review))
		gomega.Expect(partial.Scores["CR"].Components[grade.ConceptRecall]).To(gomega.BeNumerically("~", 1.0/3, 1e-9))
		gomega.Expect(partial.Scores["CR"].Flagged).To(gomega.BeTrue())

		for _, sc := range out.Scorecards {
			gomega.Expect(sc.RunID).To(gomega.Equal("wiring-run"))
			gomega.Expect(sc.OverallLabel).NotTo(gomega.Equal(evaluate.Fail))
		}
	})

	ginkgo.It("persists the run and exports metrics", func() {
		_, err := Run(context.Background(), flow)
		gomega.Expect(err).To(gomega.Succeed())

		cards, err := st.ListByRun(context.Background(), "wiring-run")
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(cards).To(gomega.HaveLen(3))

		runs, err := st.ListAuditRuns(context.Background())
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(runs).To(gomega.HaveLen(1))
		gomega.Expect(runs[0].ValidCases).To(gomega.Equal(2))
		gomega.Expect(runs[0].CreatedAt).To(gomega.BeTemporally("~", time.Now(), time.Minute))

		m := flow.Metrics
		gomega.Expect(testutil.ToFloat64(m.Cases.WithLabelValues(metrics.OutcomeVerified))).To(gomega.Equal(2.0))
		gomega.Expect(testutil.ToFloat64(m.Cases.WithLabelValues(metrics.OutcomeDuplicate))).To(gomega.Equal(1.0))
		gomega.Expect(testutil.ToFloat64(m.Scorecards.WithLabelValues("signal_enrichment", "Pass"))).To(gomega.Equal(1.0))
	})

	ginkgo.It("fails fast on an empty batch", func() {
		flow.Cases = nil
		_, err := Run(context.Background(), flow)
		gomega.Expect(err).To(gomega.MatchError(audit.ErrNoCases))
	})
})

package diagnosis

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tonyjoanes/gopher-doctor/internal/observability"
	"github.com/tonyjoanes/gopher-doctor/internal/owners"
	"github.com/tonyjoanes/gopher-doctor/internal/report"
	"github.com/tonyjoanes/gopher-doctor/internal/sizing"
	"github.com/tonyjoanes/gopher-doctor/internal/triage"
)

type fakeSource struct {
	pods   []observability.PodSnapshot
	nodes  []observability.NodeSnapshot
	events []observability.EventSnapshot
	err    error

	mu          sync.Mutex
	logRequests []observability.LogRequest
}

func (f *fakeSource) ListPods(context.Context, string) ([]observability.PodSnapshot, error) {
	return f.pods, f.err
}

func (f *fakeSource) ListNodes(context.Context) ([]observability.NodeSnapshot, error) {
	return f.nodes, f.err
}

func (f *fakeSource) ListEvents(context.Context, string) ([]observability.EventSnapshot, error) {
	return f.events, f.err
}

func (f *fakeSource) ListReplicaSetOwners(context.Context, string) ([]owners.Controller, error) {
	return nil, f.err
}

func (f *fakeSource) ListJobOwners(context.Context, string) ([]owners.Controller, error) {
	return nil, f.err
}

func (f *fakeSource) ReadLogs(_ context.Context, req observability.LogRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logRequests = append(f.logRequests, req)
	return "panic: nil map write", nil
}

func (f *fakeSource) PodMetrics(context.Context, string, string) (sizing.PodUsage, error) {
	return sizing.PodUsage{}, errors.New("no metrics")
}

type fakeAnalyst struct {
	text  string
	err   error
	calls int
}

func (a *fakeAnalyst) GenerateAnalysis(context.Context, string, string) (string, error) {
	a.calls++
	return a.text, a.err
}

func crashingNamespace() *fakeSource {
	return &fakeSource{
		pods: []observability.PodSnapshot{{
			Name:      "crash-pod",
			Namespace: "prod",
			Phase:     "Running",
			Restarts:  10,
			Containers: []observability.ContainerSnapshot{{
				Name:  "app",
				State: "CrashLoopBackOff",
			}},
		}},
		nodes: []observability.NodeSnapshot{{
			Name:       "node-1",
			Conditions: []observability.Condition{{Type: "Ready", Status: "True"}},
		}},
	}
}

var _ = Describe("Engine", func() {
	var (
		ctx   context.Context
		fixed time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		fixed = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	It("investigates and reports a crashing pod", func() {
		src := crashingNamespace()
		analyst := &fakeAnalyst{text: "Root cause: nil map"}
		engine := &Engine{Source: src, Analyst: analyst, Now: func() time.Time { return fixed }}

		st, err := engine.Run(ctx, "prod")
		Expect(err).NotTo(HaveOccurred())

		Expect(st.Visited).To(Equal([]Phase{PhaseTriage, PhaseDeepDive, PhaseAnalysis, PhaseSummary}))
		Expect(st.Triage.Issues).To(HaveLen(1))
		Expect(st.Triage.Issues[0].Severity).To(Equal(triage.SeverityCritical))
		Expect(st.Triage.NeedsDeepDive).To(BeTrue())

		Expect(src.logRequests).To(HaveLen(1))
		Expect(src.logRequests[0].Previous).To(BeTrue())
		Expect(src.logRequests[0].Container).To(Equal("app"))
		Expect(st.Findings).To(HaveLen(1))

		Expect(st.Report.Issues).To(HaveLen(1))
		issue := st.Report.Issues[0]
		Expect(issue.Severity).To(Equal(report.SeverityCritical))
		Expect(issue.SuggestedCommands).To(ContainElement("kubectl logs crash-pod -n prod -c app --previous"))
		Expect(issue.SuggestedCommands).To(ContainElement("kubectl logs crash-pod -n prod -c app --tail=100"))
		Expect(issue.Description).To(ContainSubstring("panic: nil map write"))

		Expect(st.LLMAnalysis).To(Equal("Root cause: nil map"))
		Expect(st.Report.LLMAnalysis).To(Equal("Root cause: nil map"))
		Expect(st.Report.Timestamp).To(Equal(fixed))
		Expect(st.Verdict()).To(Equal(VerdictCritical))
	})

	It("skips the deep dive for a healthy namespace", func() {
		src := crashingNamespace()
		src.pods[0].Restarts = 0
		src.pods[0].Containers[0].State = "Running"
		analyst := &fakeAnalyst{text: "unused"}
		engine := &Engine{Source: src, Analyst: analyst}

		st, err := engine.Run(ctx, "prod")
		Expect(err).NotTo(HaveOccurred())

		Expect(st.Visited).To(Equal([]Phase{PhaseTriage, PhaseSummary}))
		Expect(src.logRequests).To(BeEmpty())
		Expect(analyst.calls).To(BeZero())
		Expect(st.Report.Issues).To(BeEmpty())
		Expect(st.Report.HealthyResources).To(ConsistOf(report.HealthyResource{Kind: "Pod", Name: "crash-pod", Status: "Running"}))
		Expect(st.Verdict()).To(Equal(VerdictHealthy))
	})

	It("reports an unreachable cluster without a deep dive", func() {
		src := &fakeSource{err: errors.New("connection refused")}
		engine := &Engine{Source: src, Analyst: &fakeAnalyst{}}

		st, err := engine.Run(ctx, "prod")
		Expect(err).NotTo(HaveOccurred())

		Expect(st.Visited).To(Equal([]Phase{PhaseTriage, PhaseSummary}))
		Expect(st.Triage.Issues).To(HaveLen(1))
		Expect(st.Triage.Issues[0].Reason).To(Equal(triage.ReasonClusterUnreachable))
		Expect(st.Triage.NodeStatus).To(Equal(triage.NodeCritical))
		Expect(st.Triage.NeedsDeepDive).To(BeFalse())
		Expect(st.Findings).To(BeEmpty())
		Expect(st.Report.Issues[0].SuggestedCommands).To(Equal([]string{"kubectl cluster-info", "kubectl get nodes"}))
		Expect(st.Verdict()).To(Equal(VerdictUnreachable))
	})

	It("keeps going when the analysis fails", func() {
		engine := &Engine{Source: crashingNamespace(), Analyst: &fakeAnalyst{err: errors.New("rate limited")}}

		st, err := engine.Run(ctx, "prod")
		Expect(err).NotTo(HaveOccurred())
		Expect(st.LLMAnalysis).To(BeEmpty())
		Expect(st.Visited).To(ContainElement(PhaseSummary))
		Expect(report.Markdown(st.Report)).NotTo(ContainSubstring("Analysis & Proposed Solutions"))
	})

	It("runs without an analyst", func() {
		st, err := (&Engine{Source: crashingNamespace()}).Run(ctx, "prod")
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Visited).To(Equal([]Phase{PhaseTriage, PhaseDeepDive, PhaseAnalysis, PhaseSummary}))
		Expect(st.LLMAnalysis).To(BeEmpty())
	})

	It("returns an error for a cancelled context", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		st, err := (&Engine{Source: crashingNamespace()}).Run(cctx, "prod")
		Expect(err).To(MatchError(context.Canceled))
		Expect(st.Visited).To(BeEmpty())
	})
})

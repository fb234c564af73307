package triage

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tonyjoanes/gopher-doctor/internal/observability"
	"github.com/tonyjoanes/gopher-doctor/internal/owners"
)

type fakeSource struct {
	pods      []observability.PodSnapshot
	nodes     []observability.NodeSnapshot
	events    []observability.EventSnapshot
	rs        []owners.Controller
	podsErr   error
	nodesErr  error
	eventsErr error
}

func (f *fakeSource) ListPods(context.Context, string) ([]observability.PodSnapshot, error) {
	return f.pods, f.podsErr
}

func (f *fakeSource) ListNodes(context.Context) ([]observability.NodeSnapshot, error) {
	return f.nodes, f.nodesErr
}

func (f *fakeSource) ListEvents(context.Context, string) ([]observability.EventSnapshot, error) {
	return f.events, f.eventsErr
}

func (f *fakeSource) ListReplicaSetOwners(context.Context, string) ([]owners.Controller, error) {
	return f.rs, nil
}

func (f *fakeSource) ListJobOwners(context.Context, string) ([]owners.Controller, error) {
	return nil, errors.New("jobs are forbidden")
}

var _ = Describe("Run", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("classifies fetched snapshots and resolves owners", func() {
		p := pod("api-1", "Running", 10, "CrashLoopBackOff")
		p.OwnerReferences = []owners.Reference{{Kind: "ReplicaSet", Name: "api-rs"}}
		src := &fakeSource{
			pods:  []observability.PodSnapshot{p, pod("ok", "Running", 0)},
			nodes: []observability.NodeSnapshot{readyNode("n1", "True")},
			rs:    []owners.Controller{{Name: "api-rs", Owner: &owners.Reference{Kind: "Deployment", Name: "api"}}},
		}

		out := Run(ctx, src, "prod")
		Expect(out.Warnings).To(BeEmpty())
		Expect(out.Issues).To(HaveLen(1))
		Expect(out.Issues[0].OwnerName).To(Equal("api"))
		Expect(out.HealthyPods).To(Equal([]string{"ok"}))
		Expect(out.NodeStatus).To(Equal(NodeHealthy))
		Expect(out.NeedsDeepDive).To(BeTrue())
	})

	It("tolerates partial failures and reports them as warnings", func() {
		src := &fakeSource{
			pods:      []observability.PodSnapshot{pod("p", "Running", 3)},
			nodesErr:  errors.New("nodes is forbidden"),
			eventsErr: errors.New("deadline exceeded"),
		}

		out := Run(ctx, src, "prod")
		Expect(out.Warnings).To(Equal([]string{"Nodes: nodes is forbidden", "Events: deadline exceeded"}))
		Expect(out.Issues).To(HaveLen(1))
		Expect(out.Issues[0].Reason).To(Equal(ReasonHighRestartCount))
		Expect(out.NodeStatus).To(Equal(NodeHealthy))
	})

	It("reports an unreachable cluster when every fetch fails", func() {
		boom := errors.New("connection refused")
		src := &fakeSource{podsErr: boom, nodesErr: boom, eventsErr: boom}

		out := Run(ctx, src, "prod")
		Expect(out.Issues).To(HaveLen(1))
		issue := out.Issues[0]
		Expect(issue.PodName).To(Equal("N/A"))
		Expect(issue.Reason).To(Equal(ReasonClusterUnreachable))
		Expect(issue.Severity).To(Equal(SeverityCritical))
		Expect(issue.Message).To(HavePrefix("Could not connect to cluster. Errors:\nPods: connection refused"))
		Expect(out.NodeStatus).To(Equal(NodeCritical))
		Expect(out.NeedsDeepDive).To(BeFalse())
		Expect(out.EventsSummary).To(HaveLen(3))
		Expect(out.HealthyPods).To(BeEmpty())
	})
})

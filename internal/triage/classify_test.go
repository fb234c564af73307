package triage

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gstruct"

	"github.com/tonyjoanes/gopher-doctor/internal/observability"
	"github.com/tonyjoanes/gopher-doctor/internal/owners"
)

func pod(name, phase string, restarts int32, states ...string) observability.PodSnapshot {
	p := observability.PodSnapshot{Name: name, Namespace: "prod", Phase: phase, Restarts: restarts}
	for i, s := range states {
		p.Containers = append(p.Containers, observability.ContainerSnapshot{
			Name:         []string{"main", "sidecar", "extra"}[i],
			State:        s,
			StateMessage: s + " message",
		})
	}
	if len(states) == 0 {
		p.Containers = []observability.ContainerSnapshot{{Name: "main", State: "Running"}}
	}
	return p
}

func podEvent(name, reason, typ string) observability.EventSnapshot {
	return observability.EventSnapshot{
		Reason:         reason,
		Message:        reason + " happened",
		Type:           typ,
		InvolvedObject: observability.ObjectRef{Kind: "Pod", Name: name, Namespace: "prod"},
	}
}

func readyNode(name, ready string, extra ...observability.Condition) observability.NodeSnapshot {
	return observability.NodeSnapshot{
		Name:       name,
		Conditions: append([]observability.Condition{{Type: "Ready", Status: ready}}, extra...),
	}
}

var _ = Describe("Classify", func() {
	It("flags a crashing pod as critical and carries restarts and message", func() {
		out := Classify(Input{Pods: []observability.PodSnapshot{pod("crash-pod", "Running", 10, "CrashLoopBackOff")}}, nil)

		Expect(out.Issues).To(HaveLen(1))
		issue := out.Issues[0]
		Expect(issue.Reason).To(Equal(ReasonCrashLoopBackOff))
		Expect(issue.Severity).To(Equal(SeverityCritical))
		Expect(issue.ContainerName).To(Equal("main"))
		Expect(issue.Restarts).To(BeEquivalentTo(10))
		Expect(issue.Message).To(Equal("CrashLoopBackOff message"))
		Expect(out.NeedsDeepDive).To(BeTrue())
	})

	It("keeps same-named pods in different namespaces apart", func() {
		web := pod("web-0", "Running", 0)
		web.OwnerReferences = []owners.Reference{{Kind: "ReplicaSet", Name: "web-7f"}}
		ownerMap := owners.Map{"ReplicaSet/web-7f": {Kind: "Deployment", Name: "web"}}
		ev := podEvent("web-0", "FailedScheduling", "Warning")
		ev.InvolvedObject.Namespace = "staging"

		out := Classify(Input{
			Pods:   []observability.PodSnapshot{web},
			Events: []observability.EventSnapshot{ev},
		}, ownerMap)

		Expect(out.Issues).To(HaveLen(1))
		Expect(out.Issues[0].Namespace).To(Equal("staging"))
		Expect(out.Issues[0].HasOwner()).To(BeFalse())
		Expect(out.HealthyPods).To(ConsistOf("web-0"))
	})

	It("prefers the container state over the restart count", func() {
		out := Classify(Input{Pods: []observability.PodSnapshot{pod("p", "Running", 5, "OOMKilled")}}, nil)
		Expect(out.Issues).To(HaveLen(1))
		Expect(out.Issues[0].Reason).To(Equal(ReasonOOMKilled))
		Expect(out.Issues[0].Severity).To(Equal(SeverityCritical))
	})

	It("uses the first critical container of a multi-container pod", func() {
		out := Classify(Input{Pods: []observability.PodSnapshot{pod("p", "Running", 0, "Running", "ImagePullBackOff", "ErrImagePull")}}, nil)
		Expect(out.Issues).To(HaveLen(1))
		Expect(out.Issues[0].ContainerName).To(Equal("sidecar"))
		Expect(out.Issues[0].Reason).To(Equal(ReasonImagePullBackOff))
	})

	It("applies the pod rules in order", func() {
		pending := pod("pending", "Pending", 0)
		pending.Conditions = []observability.Condition{{Type: "PodScheduled", Status: "False", Message: "0/3 nodes are available"}}

		out := Classify(Input{Pods: []observability.PodSnapshot{
			pod("restarty", "Running", 3),
			pending,
			pod("pending-bare", "Pending", 0),
			pod("failed", "Failed", 0),
			pod("ok", "Running", 2),
		}}, nil)

		Expect(out.Issues).To(HaveLen(4))
		Expect(out.Issues[0]).To(MatchFields(IgnoreExtras, Fields{
			"PodName": Equal("restarty"), "Reason": Equal(ReasonHighRestartCount), "Severity": Equal(SeverityWarning),
		}))
		Expect(out.Issues[1].Message).To(Equal("0/3 nodes are available"))
		Expect(out.Issues[2].Message).To(Equal("Pod is pending"))
		Expect(out.Issues[3].Reason).To(Equal(ReasonFailed))
		Expect(out.Issues[3].Severity).To(Equal(SeverityCritical))
		Expect(out.HealthyPods).To(Equal([]string{"ok"}))
	})

	It("fills gaps from events without overriding pod rules", func() {
		out := Classify(Input{
			Pods: []observability.PodSnapshot{pod("crash", "Running", 10, "CrashLoopBackOff")},
			Events: []observability.EventSnapshot{
				podEvent("crash", "BackOff", "Warning"),
				podEvent("ghost", "FailedScheduling", "Warning"),
				podEvent("ghost", "FailedMount", "Warning"),
				podEvent("mounty", "FailedMount", "Warning"),
				podEvent("quiet", "Pulled", "Normal"),
				{Reason: "FailedCreate", Type: "Warning", InvolvedObject: observability.ObjectRef{Kind: "ReplicaSet", Name: "rs"}},
			},
		}, nil)

		Expect(out.Issues).To(HaveLen(3))
		Expect(out.Issues[0].Reason).To(Equal(ReasonCrashLoopBackOff))
		Expect(out.Issues[1]).To(MatchFields(IgnoreExtras, Fields{
			"PodName": Equal("ghost"), "Reason": Equal(ReasonFailedScheduling), "Severity": Equal(SeverityWarning),
			"Message": Equal("FailedScheduling happened"),
		}))
		Expect(out.Issues[2]).To(MatchFields(IgnoreExtras, Fields{
			"PodName": Equal("mounty"), "Severity": Equal(SeverityCritical),
		}))
		Expect(out.EventsSummary).To(HaveLen(5))
		Expect(out.EventsSummary[0]).To(Equal("BackOff: BackOff happened"))
	})

	It("defaults an event's missing namespace to default", func() {
		ev := podEvent("p", "Unhealthy", "Warning")
		ev.InvolvedObject.Namespace = ""
		out := Classify(Input{Events: []observability.EventSnapshot{ev}}, nil)
		Expect(out.Issues).To(HaveLen(1))
		Expect(out.Issues[0].Namespace).To(Equal("default"))
	})

	It("never reports a pod twice or as both healthy and flagged", func() {
		pods := []observability.PodSnapshot{
			pod("a", "Running", 0, "CrashLoopBackOff", "OOMKilled"),
			pod("b", "Running", 0),
			pod("c", "Running", 4),
		}
		events := []observability.EventSnapshot{
			podEvent("a", "OOMKilled", "Warning"),
			podEvent("b", "Unhealthy", "Warning"),
			podEvent("b", "BackOff", "Warning"),
			podEvent("c", "FailedMount", "Warning"),
		}
		out := Classify(Input{Pods: pods, Events: events}, nil)

		seen := map[string]bool{}
		for _, i := range out.Issues {
			Expect(seen[i.PodName]).To(BeFalse(), "duplicate issue for %s", i.PodName)
			seen[i.PodName] = true
		}
		for _, h := range out.HealthyPods {
			Expect(seen).NotTo(HaveKey(h))
		}
		Expect(out.Issues).To(HaveLen(3))
		Expect(out.HealthyPods).To(BeEmpty())
	})

	It("enriches issues with the resolved owner", func() {
		p := pod("gateway-7d9f-a", "Running", 0, "CrashLoopBackOff")
		p.OwnerReferences = []owners.Reference{{Kind: "ReplicaSet", Name: "gateway-7d9f"}}
		orphan := pod("orphan", "Failed", 0)

		out := Classify(Input{Pods: []observability.PodSnapshot{p, orphan}},
			owners.Map{"ReplicaSet/gateway-7d9f": {Kind: "Deployment", Name: "gateway"}})

		Expect(out.Issues[0].OwnerKind).To(Equal("Deployment"))
		Expect(out.Issues[0].OwnerName).To(Equal("gateway"))
		Expect(out.Issues[0].HasOwner()).To(BeTrue())
		Expect(out.Issues[1].HasOwner()).To(BeFalse())
	})

	It("does not request a deep dive for a clean namespace", func() {
		out := Classify(Input{Pods: []observability.PodSnapshot{pod("ok", "Running", 0)}}, nil)
		Expect(out.Issues).To(BeEmpty())
		Expect(out.NeedsDeepDive).To(BeFalse())
		Expect(out.HealthyPods).To(ConsistOf("ok"))
	})

	It("requests a deep dive for warnings alone", func() {
		out := Classify(Input{Pods: []observability.PodSnapshot{pod("p", "Running", 3)}}, nil)
		Expect(out.NeedsDeepDive).To(BeTrue())
	})
})

var _ = Describe("AggregateNodeStatus", func() {
	It("is healthy with no nodes", func() {
		Expect(AggregateNodeStatus(nil)).To(Equal(NodeHealthy))
	})

	It("is critical when a node is not ready", func() {
		Expect(AggregateNodeStatus([]observability.NodeSnapshot{
			readyNode("a", "True"),
			readyNode("b", "Unknown"),
		})).To(Equal(NodeCritical))
	})

	It("is a warning under pressure", func() {
		Expect(AggregateNodeStatus([]observability.NodeSnapshot{
			readyNode("a", "True", observability.Condition{Type: "DiskPressure", Status: "True"}),
		})).To(Equal(NodeWarning))
	})

	It("lets the first matching node decide", func() {
		Expect(AggregateNodeStatus([]observability.NodeSnapshot{
			readyNode("a", "True", observability.Condition{Type: "PIDPressure", Status: "True"}),
			readyNode("b", "False"),
		})).To(Equal(NodeWarning))
	})

	It("ignores pressure conditions that are False", func() {
		Expect(AggregateNodeStatus([]observability.NodeSnapshot{
			readyNode("a", "True", observability.Condition{Type: "MemoryPressure", Status: "False"}),
		})).To(Equal(NodeHealthy))
	})
})

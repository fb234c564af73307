package triage

import (
	"github.com/tonyjoanes/gopher-doctor/internal/observability"
	"github.com/tonyjoanes/gopher-doctor/internal/owners"
	"github.com/tonyjoanes/gopher-doctor/internal/sizing"
)

// draft is an issue before owner enrichment. It never leaves the package.
type draft struct {
	podName       string
	namespace     string
	containerName string
	reason        string
	severity      Severity
	restarts      int32
	message       string
}

// classifier holds the seen-set shared by the pod and event passes. The pod
// pass must run to completion before the event pass starts.
type classifier struct {
	seen   map[string]bool
	drafts []draft
}

func podKey(namespace, name string) string {
	return namespace + "/" + name
}

func (c *classifier) add(d draft) {
	c.seen[podKey(d.namespace, d.podName)] = true
	c.drafts = append(c.drafts, d)
}

// classifyPod applies the pod rules in precedence order; the first match wins.
func (c *classifier) classifyPod(pod observability.PodSnapshot) {
	if c.seen[podKey(pod.Namespace, pod.Name)] {
		return
	}

	for _, cont := range pod.Containers {
		if criticalReasons[cont.State] {
			c.add(draft{
				podName:       pod.Name,
				namespace:     pod.Namespace,
				containerName: cont.Name,
				reason:        cont.State,
				severity:      SeverityCritical,
				restarts:      pod.Restarts,
				message:       cont.StateMessage,
			})
			return
		}
	}

	switch {
	case pod.Restarts >= HighRestartThreshold:
		c.add(draft{
			podName:   pod.Name,
			namespace: pod.Namespace,
			reason:    ReasonHighRestartCount,
			severity:  SeverityWarning,
			restarts:  pod.Restarts,
		})
	case pod.Phase == "Pending":
		msg := "Pod is pending"
		if cond := pod.Condition("PodScheduled"); cond != nil && cond.Message != "" {
			msg = cond.Message
		}
		c.add(draft{
			podName:   pod.Name,
			namespace: pod.Namespace,
			reason:    ReasonPending,
			severity:  SeverityWarning,
			message:   msg,
		})
	case pod.Phase == "Failed":
		c.add(draft{
			podName:   pod.Name,
			namespace: pod.Namespace,
			reason:    ReasonFailed,
			severity:  SeverityCritical,
		})
	}
}

// classifyEvent fills gaps for pods whose problem only surfaced as an event.
// It never overrides a pod rule.
func (c *classifier) classifyEvent(ev observability.EventSnapshot) {
	if ev.InvolvedObject.Kind != "Pod" {
		return
	}
	namespace := ev.InvolvedObject.Namespace
	if namespace == "" {
		namespace = "default"
	}
	if c.seen[podKey(namespace, ev.InvolvedObject.Name)] {
		return
	}

	var sev Severity
	switch {
	case criticalReasons[ev.Reason]:
		sev = SeverityCritical
	case warningEventReasons[ev.Reason]:
		sev = SeverityWarning
	default:
		return
	}
	c.add(draft{
		podName:   ev.InvolvedObject.Name,
		namespace: namespace,
		reason:    ev.Reason,
		severity:  sev,
		message:   ev.Message,
	})
}

// finalize resolves owners and freezes the drafts into Issues. A pod is
// matched by namespace and name; event-only issues for pods missing from the
// snapshot have no owner.
func finalize(drafts []draft, pods []observability.PodSnapshot, ownerMap owners.Map) []Issue {
	byKey := make(map[string]observability.PodSnapshot, len(pods))
	for _, p := range pods {
		if _, ok := byKey[podKey(p.Namespace, p.Name)]; !ok {
			byKey[podKey(p.Namespace, p.Name)] = p
		}
	}

	issues := make([]Issue, 0, len(drafts))
	for _, d := range drafts {
		issue := Issue{
			PodName:       d.podName,
			Namespace:     d.namespace,
			ContainerName: d.containerName,
			Reason:        d.reason,
			Severity:      d.severity,
			Restarts:      d.restarts,
			Message:       d.message,
		}
		if pod, ok := byKey[podKey(d.namespace, d.podName)]; ok {
			if owner := owners.Resolve(pod.OwnerReferences, ownerMap); owner != nil {
				issue.OwnerKind = owner.Kind
				issue.OwnerName = owner.Name
			}
		}
		issues = append(issues, issue)
	}
	return issues
}

// Classify runs one triage pass over already-fetched snapshots.
func Classify(in Input, ownerMap owners.Map) Outcome {
	c := &classifier{seen: make(map[string]bool)}
	for _, pod := range in.Pods {
		c.classifyPod(pod)
	}
	for _, ev := range in.Events {
		c.classifyEvent(ev)
	}
	issues := finalize(c.drafts, in.Pods, ownerMap)

	flagged := make(map[string]bool, len(issues))
	anyCritical := false
	for _, i := range issues {
		flagged[podKey(i.Namespace, i.PodName)] = true
		if i.Severity == SeverityCritical {
			anyCritical = true
		}
	}

	healthy := []string{}
	for _, p := range in.Pods {
		if p.Phase == "Running" && p.Restarts < HighRestartThreshold && !flagged[podKey(p.Namespace, p.Name)] {
			healthy = append(healthy, p.Name)
		}
	}

	resources := make(map[string]sizing.PodResources, len(in.Pods))
	for _, p := range in.Pods {
		resources[p.Name] = p.Resources()
	}

	summary := []string{}
	for _, ev := range in.Events {
		if ev.Type == "Warning" {
			summary = append(summary, ev.Reason+": "+ev.Message)
		}
	}

	return Outcome{
		Result: Result{
			Issues:        issues,
			HealthyPods:   healthy,
			NodeStatus:    AggregateNodeStatus(in.Nodes),
			EventsSummary: summary,
		},
		// the critical clause is subsumed by the second; kept so the trigger
		// can be tightened to critical-only in one place
		NeedsDeepDive: anyCritical || len(issues) > 0,
		Resources:     resources,
	}
}

var pressureConditions = map[string]bool{
	"MemoryPressure": true,
	"DiskPressure":   true,
	"PIDPressure":    true,
}

// AggregateNodeStatus scans nodes in order: a node whose Ready condition is
// present and not True is critical, else any pressure condition that is True
// is a warning. The first node that matches decides.
func AggregateNodeStatus(nodes []observability.NodeSnapshot) NodeStatus {
	for _, n := range nodes {
		for _, c := range n.Conditions {
			if c.Type == "Ready" && c.Status != "True" {
				return NodeCritical
			}
		}
		for _, c := range n.Conditions {
			if pressureConditions[c.Type] && c.Status == "True" {
				return NodeWarning
			}
		}
	}
	return NodeHealthy
}

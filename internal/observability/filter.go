package observability

import (
	corev1 "k8s.io/api/core/v1"

	"github.com/tonyjoanes/gopher-doctor/internal/owners"
	"github.com/tonyjoanes/gopher-doctor/internal/sizing"
)

// FilterPod trims a Pod to a PodSnapshot.
func FilterPod(pod *corev1.Pod) PodSnapshot {
	snap := PodSnapshot{
		Name:      pod.Name,
		Namespace: pod.Namespace,
		Phase:     string(pod.Status.Phase),
		NodeName:  pod.Spec.NodeName,
	}
	if snap.Namespace == "" {
		snap.Namespace = "default"
	}
	if snap.Phase == "" {
		snap.Phase = "Unknown"
	}

	statuses := make(map[string]corev1.ContainerStatus, len(pod.Status.ContainerStatuses))
	for _, cs := range pod.Status.ContainerStatuses {
		statuses[cs.Name] = cs
		snap.Restarts += cs.RestartCount
	}

	for _, c := range pod.Spec.Containers {
		cont := ContainerSnapshot{
			Name:  c.Name,
			Image: c.Image,
			Requests: sizing.ResourceList{
				CPU:    quantityString(c.Resources.Requests, corev1.ResourceCPU),
				Memory: quantityString(c.Resources.Requests, corev1.ResourceMemory),
			},
			Limits: sizing.ResourceList{
				CPU:    quantityString(c.Resources.Limits, corev1.ResourceCPU),
				Memory: quantityString(c.Resources.Limits, corev1.ResourceMemory),
			},
		}
		if cs, ok := statuses[c.Name]; ok {
			ready := cs.Ready
			cont.Ready = &ready
			cont.State, cont.StateMessage = containerState(cs)
		}
		snap.Containers = append(snap.Containers, cont)
	}

	for _, c := range pod.Status.Conditions {
		// healthy conditions are noise, except Ready which is always kept
		if c.Status == corev1.ConditionTrue && c.Type != corev1.PodReady {
			continue
		}
		snap.Conditions = append(snap.Conditions, Condition{
			Type:    string(c.Type),
			Status:  string(c.Status),
			Reason:  c.Reason,
			Message: c.Message,
		})
	}

	for _, ref := range pod.OwnerReferences {
		snap.OwnerReferences = append(snap.OwnerReferences, owners.Reference{Kind: ref.Kind, Name: ref.Name})
	}
	return snap
}

// containerState returns the waiting/terminated reason and message, or
// "Running" for a running container.
func containerState(cs corev1.ContainerStatus) (string, string) {
	if w := cs.State.Waiting; w != nil {
		return w.Reason, w.Message
	}
	if t := cs.State.Terminated; t != nil {
		return t.Reason, t.Message
	}
	if cs.State.Running != nil {
		return "Running", ""
	}
	return "", ""
}

func quantityString(list corev1.ResourceList, name corev1.ResourceName) string {
	q, ok := list[name]
	if !ok {
		return ""
	}
	return q.String()
}

// FilterNode trims a Node to a NodeSnapshot. All conditions are kept.
func FilterNode(node *corev1.Node) NodeSnapshot {
	snap := NodeSnapshot{Name: node.Name}
	for _, c := range node.Status.Conditions {
		snap.Conditions = append(snap.Conditions, Condition{
			Type:    string(c.Type),
			Status:  string(c.Status),
			Reason:  c.Reason,
			Message: c.Message,
		})
	}
	if len(node.Status.Capacity) > 0 {
		snap.Capacity = resourceMap(node.Status.Capacity)
	}
	if len(node.Status.Allocatable) > 0 {
		snap.Allocatable = resourceMap(node.Status.Allocatable)
	}
	for _, t := range node.Spec.Taints {
		snap.Taints = append(snap.Taints, Taint{Key: t.Key, Value: t.Value, Effect: string(t.Effect)})
	}
	return snap
}

func resourceMap(list corev1.ResourceList) map[string]string {
	out := make(map[string]string, len(list))
	for name, q := range list {
		out[string(name)] = q.String()
	}
	return out
}

// FilterEvent trims an Event to an EventSnapshot.
func FilterEvent(ev *corev1.Event) EventSnapshot {
	first := ev.FirstTimestamp.Time
	last := ev.LastTimestamp.Time
	if last.IsZero() && !ev.EventTime.IsZero() {
		last = ev.EventTime.Time
	}
	count := ev.Count
	if count == 0 && ev.Series != nil {
		count = ev.Series.Count
	}
	return EventSnapshot{
		Reason:  ev.Reason,
		Message: ev.Message,
		Type:    ev.Type,
		Count:   count,
		InvolvedObject: ObjectRef{
			Kind:      ev.InvolvedObject.Kind,
			Name:      ev.InvolvedObject.Name,
			Namespace: ev.InvolvedObject.Namespace,
		},
		FirstSeen: first,
		LastSeen:  last,
	}
}

// Package observability reads point-in-time snapshots of a namespace (pods,
// nodes, events, logs, metrics, intermediate controllers) and trims the raw
// API objects down to the fields the diagnostic pipeline classifies on.
package observability

import (
	"fmt"
	"strings"
	"time"

	"github.com/tonyjoanes/gopher-doctor/internal/owners"
	"github.com/tonyjoanes/gopher-doctor/internal/sizing"
)

// Condition is a trimmed pod or node condition.
type Condition struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// ContainerSnapshot captures one container's spec and current state.
type ContainerSnapshot struct {
	Name  string `json:"name"`
	Image string `json:"image"`
	// Ready is nil when the container has no status yet.
	Ready *bool `json:"ready,omitempty"`
	// State is the waiting/terminated reason (e.g. "CrashLoopBackOff",
	// "OOMKilled"), "Running", or empty when unknown.
	State        string              `json:"state,omitempty"`
	StateMessage string              `json:"stateMessage,omitempty"`
	Requests     sizing.ResourceList `json:"requests,omitempty"`
	Limits       sizing.ResourceList `json:"limits,omitempty"`
}

// PodSnapshot captures the observable state of one Pod.
type PodSnapshot struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Phase     string `json:"phase"`
	NodeName  string `json:"nodeName,omitempty"`
	// Restarts is the sum of restart counts across all containers.
	Restarts        int32               `json:"restarts"`
	Containers      []ContainerSnapshot `json:"containers"`
	Conditions      []Condition         `json:"conditions,omitempty"`
	OwnerReferences []owners.Reference  `json:"ownerReferences,omitempty"`
}

// Condition returns the condition of the given type, or nil.
func (p PodSnapshot) Condition(conditionType string) *Condition {
	for i := range p.Conditions {
		if p.Conditions[i].Type == conditionType {
			return &p.Conditions[i]
		}
	}
	return nil
}

// Resources returns the declared requests/limits of every container.
func (p PodSnapshot) Resources() sizing.PodResources {
	out := sizing.PodResources{Name: p.Name}
	for _, c := range p.Containers {
		out.Containers = append(out.Containers, sizing.ContainerResources{
			Name:     c.Name,
			Requests: c.Requests,
			Limits:   c.Limits,
		})
	}
	return out
}

// Taint is a trimmed node taint.
type Taint struct {
	Key    string `json:"key"`
	Value  string `json:"value,omitempty"`
	Effect string `json:"effect"`
}

// NodeSnapshot captures the health-relevant state of one Node.
type NodeSnapshot struct {
	Name        string            `json:"name"`
	Conditions  []Condition       `json:"conditions"`
	Capacity    map[string]string `json:"capacity,omitempty"`
	Allocatable map[string]string `json:"allocatable,omitempty"`
	Taints      []Taint           `json:"taints,omitempty"`
}

// ObjectRef is the involved object of an event.
type ObjectRef struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// EventSnapshot is a trimmed Kubernetes Event.
type EventSnapshot struct {
	Reason         string    `json:"reason"`
	Message        string    `json:"message"`
	// Type is "Normal" or "Warning".
	Type           string    `json:"type"`
	Count          int32     `json:"count,omitempty"`
	InvolvedObject ObjectRef `json:"involvedObject"`
	FirstSeen      time.Time `json:"firstSeen,omitempty"`
	LastSeen       time.Time `json:"lastSeen,omitempty"`
}

// LogRequest selects the container log tail to read.
type LogRequest struct {
	PodName   string
	Namespace string
	// Container may be empty for single-container pods.
	Container string
	// Previous reads the last terminated instance instead of the running one.
	Previous  bool
	TailLines int64
}

// Summary produces a compact one-line-per-field description of a namespace
// snapshot, used in debug logs.
func Summary(namespace string, pods []PodSnapshot, nodes []NodeSnapshot, events []EventSnapshot) string {
	var sb strings.Builder
	sb.WriteString("=== Namespace snapshot ===\n")
	fmt.Fprintf(&sb, "Namespace : %s\n", namespace)
	fmt.Fprintf(&sb, "Pods      : %d\n", len(pods))
	fmt.Fprintf(&sb, "Nodes     : %d\n", len(nodes))
	fmt.Fprintf(&sb, "Events    : %d\n", len(events))
	return sb.String()
}

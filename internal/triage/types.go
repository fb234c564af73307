// Package triage is the first pass of a diagnostic run: it turns raw
// namespace snapshots into per-pod issues, the set of healthy pods and an
// aggregate node status, without any deep investigation.
package triage

import (
	"github.com/tonyjoanes/gopher-doctor/internal/observability"
	"github.com/tonyjoanes/gopher-doctor/internal/sizing"
)

// Severity of a triage issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// NodeStatus aggregates the health of every node in the cluster.
type NodeStatus string

const (
	NodeHealthy  NodeStatus = "healthy"
	NodeWarning  NodeStatus = "warning"
	NodeCritical NodeStatus = "critical"
)

// Well-known reasons produced by the classifier itself. Container and event
// reasons are passed through verbatim.
const (
	ReasonCrashLoopBackOff   = "CrashLoopBackOff"
	ReasonOOMKilled          = "OOMKilled"
	ReasonFailedMount        = "FailedMount"
	ReasonImagePullBackOff   = "ImagePullBackOff"
	ReasonErrImagePull       = "ErrImagePull"
	ReasonHighRestartCount   = "HighRestartCount"
	ReasonPending            = "Pending"
	ReasonFailed             = "Failed"
	ReasonFailedScheduling   = "FailedScheduling"
	ReasonClusterUnreachable = "ClusterUnreachable"
)

// HighRestartThreshold is the cumulative restart count at which a pod is
// flagged.
const HighRestartThreshold = 3

// criticalReasons apply to both container states and events.
var criticalReasons = map[string]bool{
	ReasonCrashLoopBackOff: true,
	ReasonOOMKilled:        true,
	ReasonFailedMount:      true,
	ReasonImagePullBackOff: true,
	ReasonErrImagePull:     true,
}

var warningEventReasons = map[string]bool{
	"BackOff":              true,
	ReasonFailedScheduling: true,
	"FailedCreate":         true,
	"Unhealthy":            true,
}

// Issue is one (pod, triggering signal) pair. A pod gets at most one Issue
// per triage pass. Values are complete when handed out: owner fields are
// resolved before an Issue leaves this package.
type Issue struct {
	PodName       string   `json:"podName"`
	Namespace     string   `json:"namespace"`
	ContainerName string   `json:"containerName,omitempty"`
	Reason        string   `json:"reason"`
	Severity      Severity `json:"severity"`
	Restarts      int32    `json:"restarts,omitempty"`
	Message       string   `json:"message,omitempty"`
	OwnerKind     string   `json:"ownerKind,omitempty"`
	OwnerName     string   `json:"ownerName,omitempty"`
}

// HasOwner reports whether the owner workload is known.
func (i Issue) HasOwner() bool {
	return i.OwnerKind != "" && i.OwnerName != ""
}

// Result is the immutable output of one triage pass.
type Result struct {
	Issues        []Issue    `json:"issues"`
	HealthyPods   []string   `json:"healthyPods"`
	NodeStatus    NodeStatus `json:"nodeStatus"`
	EventsSummary []string   `json:"eventsSummary"`
}

// Counts returns the number of critical and warning issues.
func (r Result) Counts() (critical, warning int) {
	for _, i := range r.Issues {
		switch i.Severity {
		case SeverityCritical:
			critical++
		case SeverityWarning:
			warning++
		}
	}
	return critical, warning
}

// Outcome is a Result plus the routing decision and any non-fatal fetch
// failures.
type Outcome struct {
	Result
	NeedsDeepDive bool     `json:"needsDeepDive"`
	Warnings      []string `json:"warnings,omitempty"`
	// Resources holds the declared container resources of every classified
	// pod, keyed by pod name, for the sizing verdicts of the deep dive.
	Resources map[string]sizing.PodResources `json:"-"`
}

// Input is the set of snapshots one triage pass classifies.
type Input struct {
	Pods   []observability.PodSnapshot
	Nodes  []observability.NodeSnapshot
	Events []observability.EventSnapshot
}

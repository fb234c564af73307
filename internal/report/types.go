// Package report aggregates triage issues into user-facing diagnostic
// issues, one per (owner workload, reason), and renders the final report.
package report

import (
	"time"
)

// Severity of a report issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ResourceRef names the workload an issue is attributed to.
type ResourceRef struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// HealthyResource is a row of the healthy resources table.
type HealthyResource struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Issue is one aggregated, user-facing problem.
type Issue struct {
	Severity    Severity    `json:"severity"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Resource    ResourceRef `json:"resource"`
	// AffectedPods is only set for issues grouping more than one pod.
	AffectedPods      []string `json:"affectedPods,omitempty"`
	SuggestedCommands []string `json:"suggestedCommands"`
	NextSteps         []string `json:"nextSteps"`
	// ProposedPatch is a strategic-merge-patch suggestion derived from a
	// sizing verdict, when one exists.
	ProposedPatch string `json:"proposedPatch,omitempty"`
}

// DiagnosticReport is the terminal artifact of one run.
type DiagnosticReport struct {
	Namespace        string            `json:"namespace"`
	Timestamp        time.Time         `json:"timestamp"`
	Summary          string            `json:"summary"`
	NodeStatus       string            `json:"nodeStatus"`
	// CriticalIssues and WarningIssues count affected pods, not groups.
	CriticalIssues int `json:"criticalIssues"`
	WarningIssues  int `json:"warningIssues"`
	Issues           []Issue           `json:"issues"`
	HealthyResources []HealthyResource `json:"healthyResources"`
	LLMAnalysis      string            `json:"llmAnalysis,omitempty"`
	// Warnings lists non-fatal fetch failures that made the report partial.
	Warnings []string `json:"warnings,omitempty"`
}

// Counts returns the number of critical and warning triage issues. A group
// of three crashing pods counts three times, matching the summary.
func (r DiagnosticReport) Counts() (critical, warning int) {
	return r.CriticalIssues, r.WarningIssues
}

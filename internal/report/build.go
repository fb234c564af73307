package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/tonyjoanes/gopher-doctor/internal/deepdive"
	"github.com/tonyjoanes/gopher-doctor/internal/sizing"
	"github.com/tonyjoanes/gopher-doctor/internal/triage"
)

// Input is everything the summary stage has accumulated.
type Input struct {
	Namespace   string
	Triage      triage.Result
	Findings    deepdive.Findings
	LLMAnalysis string
	Warnings    []string
	// Now defaults to time.Now.
	Now func() time.Time
}

// GroupKey is "<ownerKind>/<ownerName>/<reason>" for issues with a known
// owner and "Pod/<podName>/<reason>" otherwise.
func GroupKey(issue triage.Issue) string {
	if issue.HasOwner() {
		return issue.OwnerKind + "/" + issue.OwnerName + "/" + issue.Reason
	}
	return "Pod/" + issue.PodName + "/" + issue.Reason
}

// Group collects issues sharing a GroupKey. Groups are returned in order of
// first occurrence; members keep discovery order.
func Group(issues []triage.Issue) [][]triage.Issue {
	index := make(map[string]int)
	var groups [][]triage.Issue
	for _, issue := range issues {
		key := GroupKey(issue)
		if i, ok := index[key]; ok {
			groups[i] = append(groups[i], issue)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, []triage.Issue{issue})
	}
	return groups
}

func singleDescription(issue triage.Issue) string {
	switch {
	case issue.Reason == triage.ReasonHighRestartCount:
		return fmt.Sprintf("Pod %q has %d restarts.", issue.PodName, issue.Restarts)
	case issue.Message != "":
		return fmt.Sprintf("Pod %q %s: %s", issue.PodName, issue.Reason, issue.Message)
	default:
		return fmt.Sprintf("Pod %q is in %s state.", issue.PodName, issue.Reason)
	}
}

// fromGroup builds one report issue. Commands and next steps come from the
// first member.
func fromGroup(group []triage.Issue, findings deepdive.Findings) Issue {
	first := group[0]
	grouped := len(group) > 1

	kind, name := "Pod", first.PodName
	if first.HasOwner() {
		kind, name = first.OwnerKind, first.OwnerName
	}
	label := kind + "/" + name

	var title, description string
	pods := make([]string, 0, len(group))
	for _, i := range group {
		pods = append(pods, i.PodName)
	}
	if grouped {
		title = fmt.Sprintf("%s: %s (%d pods)", first.Reason, label, len(group))
		description = fmt.Sprintf("%d pods in %s state: %s.", len(group), first.Reason, strings.Join(pods, ", "))
	} else {
		title = first.Reason + ": " + first.PodName
		if first.HasOwner() {
			title = first.Reason + ": " + label
		}
		description = singleDescription(first)
	}

	var excerpts []string
	var patches []string
	for _, pod := range pods {
		f, ok := findings.ForPod(pod)
		if !ok {
			continue
		}
		if ex := f.LogExcerpt(); ex != "" {
			excerpts = append(excerpts, ex)
		}
		if len(patches) == 0 {
			patches = proposedPatches(kind, f.Sizing)
		}
	}
	if len(excerpts) > 0 {
		description += "\n\n**Log analysis:**\n" + strings.Join(excerpts, "\n\n")
	}

	issue := Issue{
		Severity:          Severity(first.Severity),
		Title:             title,
		Description:       description,
		Resource:          ResourceRef{Kind: kind, Name: name, Namespace: first.Namespace},
		SuggestedCommands: SuggestedCommands(first),
		NextSteps:         NextSteps(first.Reason),
		ProposedPatch:     strings.Join(patches, "---\n"),
	}
	if grouped {
		issue.AffectedPods = pods
	}
	return issue
}

func proposedPatches(kind string, analyses []sizing.Analysis) []string {
	var out []string
	for _, a := range analyses {
		for _, rec := range a.Recommendations {
			p, err := sizing.SuggestedPatch(kind, rec)
			if err != nil {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

// Summary is the one-paragraph verdict at the top of a report. Issues are
// counted individually, not by group.
func Summary(namespace string, result triage.Result) string {
	var summary string
	if len(result.Issues) == 0 {
		summary = fmt.Sprintf("Namespace %q is healthy.", namespace)
		if n := len(result.HealthyPods); n > 0 {
			summary += fmt.Sprintf(" %d pods running normally.", n)
		}
	} else {
		critical, warning := result.Counts()
		summary = fmt.Sprintf("Found %d critical issue(s) and %d warning(s) in namespace %q.", critical, warning, namespace)
	}
	if result.NodeStatus != "" && result.NodeStatus != triage.NodeHealthy {
		summary += fmt.Sprintf(" Node status: %s.", result.NodeStatus)
	}
	return summary
}

// Build assembles the final report.
func Build(in Input) DiagnosticReport {
	now := time.Now
	if in.Now != nil {
		now = in.Now
	}

	issues := []Issue{}
	for _, group := range Group(in.Triage.Issues) {
		issues = append(issues, fromGroup(group, in.Findings))
	}

	healthy := make([]HealthyResource, 0, len(in.Triage.HealthyPods))
	for _, name := range in.Triage.HealthyPods {
		healthy = append(healthy, HealthyResource{Kind: "Pod", Name: name, Status: "Running"})
	}

	nodeStatus := in.Triage.NodeStatus
	if nodeStatus == "" {
		nodeStatus = triage.NodeHealthy
	}

	critical, warning := in.Triage.Counts()
	return DiagnosticReport{
		Namespace:        in.Namespace,
		Timestamp:        now().UTC(),
		Summary:          Summary(in.Namespace, in.Triage),
		NodeStatus:       string(nodeStatus),
		CriticalIssues:   critical,
		WarningIssues:    warning,
		Issues:           issues,
		HealthyResources: healthy,
		LLMAnalysis:      in.LLMAnalysis,
		Warnings:         in.Warnings,
	}
}

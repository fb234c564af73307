package report

import (
	"strings"
)

// TimestampFormat renders report timestamps in UTC with millisecond precision.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

var sections = []struct {
	severity Severity
	title    string
}{
	{SeverityCritical, "Critical Issues"},
	{SeverityWarning, "Warnings"},
	{SeverityInfo, "Info"},
}

// Markdown renders a report with a fixed section order: header, critical
// issues, warnings, info, analysis (only with a narrative) and the healthy
// resources table.
func Markdown(r DiagnosticReport) string {
	lines := []string{
		"# Diagnostic Report: " + r.Namespace,
		"",
		"**Generated:** " + r.Timestamp.UTC().Format(TimestampFormat),
		"",
		"**Summary:** " + r.Summary,
	}
	for _, w := range r.Warnings {
		lines = append(lines, "", "> Partial data: "+w)
	}
	lines = append(lines, "", "---")

	for _, s := range sections {
		var matched []Issue
		for _, issue := range r.Issues {
			if issue.Severity == s.severity {
				matched = append(matched, issue)
			}
		}
		if len(matched) == 0 {
			continue
		}
		lines = append(lines, "", "## "+s.title, "")
		for _, issue := range matched {
			lines = append(lines, formatIssue(issue), "")
		}
	}

	if r.LLMAnalysis != "" {
		lines = append(lines, "", "## Analysis & Proposed Solutions", "", r.LLMAnalysis)
	}

	if len(r.HealthyResources) > 0 {
		lines = append(lines, "", "## Healthy Resources", "", "| Kind | Name | Status |", "|------|------|--------|")
		for _, h := range r.HealthyResources {
			lines = append(lines, "| "+h.Kind+" | "+h.Name+" | "+h.Status+" |")
		}
	}

	return strings.Join(lines, "\n")
}

func formatIssue(issue Issue) string {
	lines := []string{
		"### " + issue.Title,
		"",
		"**Resource:** " + issue.Resource.Kind + "/" + issue.Resource.Name,
	}
	if issue.Resource.Namespace != "" {
		lines = append(lines, "**Namespace:** "+issue.Resource.Namespace)
	}
	if len(issue.AffectedPods) > 0 {
		lines = append(lines, "**Affected pods:** "+strings.Join(issue.AffectedPods, ", "))
	}
	lines = append(lines, "", issue.Description)

	if len(issue.SuggestedCommands) > 0 {
		lines = append(lines, "", "### Suggested Commands", "```bash")
		lines = append(lines, issue.SuggestedCommands...)
		lines = append(lines, "```")
	}
	if len(issue.NextSteps) > 0 {
		lines = append(lines, "", "### Next Steps")
		for _, step := range issue.NextSteps {
			lines = append(lines, "- "+step)
		}
	}
	if issue.ProposedPatch != "" {
		lines = append(lines, "", "### Proposed Resource Changes", "```yaml", strings.TrimRight(issue.ProposedPatch, "\n"), "```")
	}
	return strings.Join(lines, "\n")
}

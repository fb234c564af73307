package llm

import (
	"fmt"
	"strings"

	"github.com/tonyjoanes/gopher-doctor/internal/triage"
)

// SystemPrompt is sent as the system message of every analysis request.
const SystemPrompt = `You are a Kubernetes diagnostic expert. You receive triage data and pod logs from a cluster namespace.

For each issue (or group of related pods), provide:
1. **Root cause**: a concise hypothesis based on the evidence
2. **Remediation**: concrete, actionable steps with exact kubectl commands
3. **Priority**: what to fix first and why

Rules:
- Be concise. No filler.
- Base your analysis on the actual logs and data provided.
- If no logs are available for an issue, say so and give your best hypothesis.
- Group related pods (same deployment/job) together in your analysis.`

// BuildUserPrompt assembles the user turn from the triage issues and the
// deep-dive records.
func BuildUserPrompt(namespace string, issues []triage.Issue, findings []string) string {
	lines := []string{"Namespace: " + namespace, ""}

	if len(issues) > 0 {
		lines = append(lines, "## Issues Found")
		for _, i := range issues {
			restarts := ""
			if i.Restarts > 0 {
				restarts = fmt.Sprintf(" (restarts: %d)", i.Restarts)
			}
			msg := ""
			if i.Message != "" {
				msg = " — " + i.Message
			}
			lines = append(lines, fmt.Sprintf("- [%s] %s: %s%s%s", i.Severity, i.PodName, i.Reason, restarts, msg))
		}
		lines = append(lines, "")
	}

	if len(findings) > 0 {
		lines = append(lines, "## Deep-Dive Findings", strings.Join(findings, "\n---\n"))
	}
	return strings.Join(lines, "\n")
}

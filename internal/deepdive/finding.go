package deepdive

import (
	"fmt"
	"strings"

	"github.com/tonyjoanes/gopher-doctor/internal/sizing"
)

// logsMarker precedes the fenced log block in a finding's text.
const logsMarker = "Logs:"

// Finding is the outcome of investigating one issue.
type Finding struct {
	PodName       string                  `json:"podName"`
	Reason        string                  `json:"reason"`
	ContainerName string                  `json:"containerName"`
	Previous      bool                    `json:"previous"`
	Logs          string                  `json:"logs,omitempty"`
	Metrics       []sizing.ContainerUsage `json:"metrics,omitempty"`
	MetricsError  string                  `json:"metricsError,omitempty"`
	Sizing        []sizing.Analysis       `json:"sizing,omitempty"`
	// Err is set when the logs could not be read. Metrics and Sizing may
	// still be present.
	Err error `json:"-"`
}

// Failed reports whether the log read failed.
func (f Finding) Failed() bool {
	return f.Err != nil
}

// Text renders the finding as the free-text record handed to the analyst
// and the report. A failed investigation keeps whatever usage and sizing it
// gathered below the failure line.
func (f Finding) Text() string {
	var sb strings.Builder
	if f.Err != nil {
		fmt.Fprintf(&sb, "Investigation failed for %s: %v", f.PodName, f.Err)
		if f.hasUsage() {
			sb.WriteString("\n")
			f.writeUsage(&sb)
		}
		return sb.String()
	}

	sb.WriteString("\n")
	fmt.Fprintf(&sb, "## Investigation: %s\n", f.PodName)
	fmt.Fprintf(&sb, "**Reason:** %s\n", f.Reason)
	fmt.Fprintf(&sb, "**Container:** %s\n", orNA(f.ContainerName))
	fmt.Fprintf(&sb, "**Previous logs:** %t\n", f.Previous)
	f.writeUsage(&sb)
	fmt.Fprintf(&sb, "\n### %s\n```\n%s\n```\n", logsMarker, f.Logs)
	return sb.String()
}

func (f Finding) hasUsage() bool {
	return len(f.Metrics) > 0 || f.MetricsError != "" || len(f.Sizing) > 0
}

func (f Finding) writeUsage(sb *strings.Builder) {
	if len(f.Metrics) > 0 {
		sb.WriteString("\n### Resource usage:\n")
		for _, m := range f.Metrics {
			fmt.Fprintf(sb, "- %s: cpu %s, memory %s\n", m.Name, orNA(m.Usage.CPU), orNA(m.Usage.Memory))
		}
	} else if f.MetricsError != "" {
		fmt.Fprintf(sb, "\n### Resource usage:\nunavailable: %s\n", f.MetricsError)
	}
	if len(f.Sizing) > 0 {
		sb.WriteString("\n### Sizing:\n")
		for _, a := range f.Sizing {
			fmt.Fprintf(sb, "- %s: %s\n", a.ContainerName, a.Status)
			for _, rec := range a.Recommendations {
				sb.WriteString(indent(sizing.FormatRecommendation(rec), "  ") + "\n")
			}
			for _, w := range a.Warnings {
				fmt.Fprintf(sb, "  warning: %s\n", w)
			}
		}
	}
}

// LogExcerpt returns everything after the logs marker with code fences
// removed. A record without the marker is returned whole.
func (f Finding) LogExcerpt() string {
	lines := strings.Split(f.Text(), "\n")
	start := 0
	for i, l := range lines {
		if strings.Contains(l, logsMarker) {
			start = i + 1
			break
		}
	}
	return strings.TrimSpace(strings.ReplaceAll(strings.Join(lines[start:], "\n"), "```", ""))
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}

// Findings is the ordered result of one deep-dive stage.
type Findings []Finding

// ForPod returns the finding recorded for the named pod.
func (fs Findings) ForPod(podName string) (Finding, bool) {
	for _, f := range fs {
		if f.PodName == podName {
			return f, true
		}
	}
	return Finding{}, false
}

// Texts returns the free-text records in investigation order.
func (fs Findings) Texts() []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Text())
	}
	return out
}

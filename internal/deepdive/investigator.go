// Package deepdive investigates the highest-priority triage issues in
// detail: container logs for every selected issue and, where it can explain
// the failure, live resource usage with a sizing verdict.
package deepdive

import (
	"context"

	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tonyjoanes/gopher-doctor/internal/observability"
	"github.com/tonyjoanes/gopher-doctor/internal/sizing"
	"github.com/tonyjoanes/gopher-doctor/internal/triage"
)

const (
	// MaxInvestigations caps the issues investigated per run.
	MaxInvestigations = 5
	// LogTailLines is the number of log lines read per investigation.
	LogTailLines int64 = 50
)

// Source is the upstream collaborator the investigator reads from.
type Source interface {
	ReadLogs(ctx context.Context, req observability.LogRequest) (string, error)
	PodMetrics(ctx context.Context, namespace, podName string) (sizing.PodUsage, error)
}

// Select orders critical issues before warnings, each in discovery order,
// and truncates to limit (MaxInvestigations when limit <= 0). Truncation
// always drops the lowest-priority issues.
func Select(issues []triage.Issue, limit int) []triage.Issue {
	if limit <= 0 {
		limit = MaxInvestigations
	}
	out := make([]triage.Issue, 0, len(issues))
	for _, i := range issues {
		if i.Severity == triage.SeverityCritical {
			out = append(out, i)
		}
	}
	for _, i := range issues {
		if i.Severity == triage.SeverityWarning {
			out = append(out, i)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// readsPrevious: the useful output of a crashed or killed container is in
// the terminated instance.
func readsPrevious(reason string) bool {
	return reason == triage.ReasonCrashLoopBackOff || reason == triage.ReasonOOMKilled
}

func wantsMetrics(reason string) bool {
	return reason == triage.ReasonOOMKilled || reason == triage.ReasonHighRestartCount
}

// Request is one deep-dive stage's input.
type Request struct {
	Namespace string
	Issues    []triage.Issue
	// Resources holds declared container resources keyed by pod name. Pods
	// missing here get metrics but no sizing verdict.
	Resources map[string]sizing.PodResources
}

// Investigator runs the deep-dive stage.
type Investigator struct {
	Source Source
	// MaxIssues overrides MaxInvestigations when positive.
	MaxIssues int
	// TailLines overrides LogTailLines when positive.
	TailLines int64
}

// Investigate selects issues and investigates them concurrently. One
// finding is returned per selected issue, in selection order. A failed
// investigation yields a failed finding and never affects its siblings.
func (inv *Investigator) Investigate(ctx context.Context, req Request) Findings {
	selected := Select(req.Issues, inv.MaxIssues)
	if len(selected) == 0 {
		return Findings{}
	}
	log.FromContext(ctx).Info("deep dive investigating issues", "count", len(selected))

	findings := make(Findings, len(selected))
	var g errgroup.Group
	for idx, issue := range selected {
		g.Go(func() error {
			findings[idx] = inv.investigate(ctx, req, issue)
			return nil
		})
	}
	_ = g.Wait()
	return findings
}

func (inv *Investigator) investigate(ctx context.Context, req Request, issue triage.Issue) Finding {
	logger := log.FromContext(ctx).WithValues("pod", issue.Namespace+"/"+issue.PodName)

	container := issue.ContainerName
	if container == "" {
		container = firstContainer(req.Resources[issue.PodName])
	}
	namespace := issue.Namespace
	if namespace == "" {
		namespace = req.Namespace
	}
	tail := inv.TailLines
	if tail <= 0 {
		tail = LogTailLines
	}

	f := Finding{
		PodName:       issue.PodName,
		Reason:        issue.Reason,
		ContainerName: container,
		Previous:      readsPrevious(issue.Reason),
	}

	var logs string
	var usage sizing.PodUsage
	var logsErr, usageErr error
	var g errgroup.Group
	g.Go(func() error {
		logs, logsErr = inv.Source.ReadLogs(ctx, observability.LogRequest{
			PodName:   issue.PodName,
			Namespace: namespace,
			Container: container,
			Previous:  f.Previous,
			TailLines: tail,
		})
		return nil
	})
	if wantsMetrics(issue.Reason) {
		g.Go(func() error {
			usage, usageErr = inv.Source.PodMetrics(ctx, namespace, issue.PodName)
			return nil
		})
	}
	_ = g.Wait()

	if logsErr != nil {
		// metrics and sizing still explain a pod whose logs are unreadable
		logger.Error(logsErr, "failed to investigate issue")
		f.Err = logsErr
	} else {
		f.Logs = logs
	}

	if !wantsMetrics(issue.Reason) {
		return f
	}
	if usageErr != nil {
		logger.V(1).Info("pod metrics unavailable", "err", usageErr.Error())
		f.MetricsError = usageErr.Error()
		return f
	}
	f.Metrics = usage.Containers
	if res, ok := req.Resources[issue.PodName]; ok {
		f.Sizing = sizing.Analyze(res, usage)
	}
	return f
}

// firstContainer names the pod's first declared container. An empty result
// leaves the choice to the API server, which accepts it for single-container
// pods.
func firstContainer(res sizing.PodResources) string {
	if len(res.Containers) == 0 {
		return ""
	}
	return res.Containers[0].Name
}

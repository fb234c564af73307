// Package diagnosis sequences one diagnostic run over a namespace:
// triage, an optional deep dive and analysis, and the final report.
package diagnosis

import (
	"context"
	"fmt"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tonyjoanes/gopher-doctor/internal/deepdive"
	"github.com/tonyjoanes/gopher-doctor/internal/llm"
	"github.com/tonyjoanes/gopher-doctor/internal/report"
	"github.com/tonyjoanes/gopher-doctor/internal/triage"
)

// Phase is a state of the run.
type Phase string

const (
	PhaseTriage   Phase = "Triage"
	PhaseDeepDive Phase = "DeepDive"
	PhaseAnalysis Phase = "Analysis"
	PhaseSummary  Phase = "Summary"
	// PhaseDone is terminal.
	PhaseDone Phase = "Done"
)

// Verdict is the overall health of a diagnosed namespace.
type Verdict string

const (
	VerdictHealthy     Verdict = "Healthy"
	VerdictWarning     Verdict = "Warning"
	VerdictCritical    Verdict = "Critical"
	VerdictUnreachable Verdict = "Unreachable"
)

// Source is everything a run reads from the cluster.
type Source interface {
	triage.Source
	deepdive.Source
}

// State accumulates the output of every stage. Each stage only adds to it.
type State struct {
	Namespace   string
	Triage      triage.Outcome
	Findings    deepdive.Findings
	LLMAnalysis string
	Report      report.DiagnosticReport
	// Visited lists the phases run, in order. PhaseDone is not included.
	Visited []Phase
}

// Verdict derives the overall health from the triage result.
func (s *State) Verdict() Verdict {
	critical, warning := s.Triage.Counts()
	for _, i := range s.Triage.Issues {
		if i.Reason == triage.ReasonClusterUnreachable {
			return VerdictUnreachable
		}
	}
	switch {
	case critical > 0:
		return VerdictCritical
	case warning > 0:
		return VerdictWarning
	default:
		return VerdictHealthy
	}
}

// Engine runs the diagnostic state machine.
type Engine struct {
	Source Source
	// Analyst is optional; nil skips the analysis narrative.
	Analyst llm.Analyst
	// MaxIssues and LogTailLines tune the deep dive; zero uses its defaults.
	MaxIssues    int
	LogTailLines int64
	Now          func() time.Time
}

// Run diagnoses namespace. Stage failures degrade the report and never
// fail the run; only a cancelled or expired context returns an error.
func (e *Engine) Run(ctx context.Context, namespace string) (*State, error) {
	logger := log.FromContext(ctx).WithValues("namespace", namespace)
	ctx = log.IntoContext(ctx, logger)

	st := &State{Namespace: namespace}
	phase := PhaseTriage
	for phase != PhaseDone {
		if err := ctx.Err(); err != nil {
			return st, fmt.Errorf("diagnosing %s: interrupted before %s: %w", namespace, phase, err)
		}
		st.Visited = append(st.Visited, phase)
		start := time.Now()
		next := e.step(ctx, phase, st)
		StageDuration.WithLabelValues(string(phase)).Observe(time.Since(start).Seconds())
		logger.V(1).Info("stage complete", "stage", phase, "next", next)
		phase = next
	}

	critical, warning := st.Triage.Counts()
	IssuesTotal.WithLabelValues(string(triage.SeverityCritical)).Add(float64(critical))
	IssuesTotal.WithLabelValues(string(triage.SeverityWarning)).Add(float64(warning))
	RunsTotal.WithLabelValues(string(st.Verdict())).Inc()

	logger.Info("diagnosis complete", "critical", critical, "warning", warning, "verdict", st.Verdict())
	return st, nil
}

// step executes one phase and returns the next.
func (e *Engine) step(ctx context.Context, phase Phase, st *State) Phase {
	switch phase {
	case PhaseTriage:
		st.Triage = triage.Run(ctx, e.Source, st.Namespace)
		if st.Triage.NeedsDeepDive {
			return PhaseDeepDive
		}
		return PhaseSummary

	case PhaseDeepDive:
		inv := deepdive.Investigator{
			Source:    e.Source,
			MaxIssues: e.MaxIssues,
			TailLines: e.LogTailLines,
		}
		st.Findings = inv.Investigate(ctx, deepdive.Request{
			Namespace: st.Namespace,
			Issues:    st.Triage.Issues,
			Resources: st.Triage.Resources,
		})
		return PhaseAnalysis

	case PhaseAnalysis:
		st.LLMAnalysis = e.analyze(ctx, st)
		return PhaseSummary

	case PhaseSummary:
		st.Report = report.Build(report.Input{
			Namespace:   st.Namespace,
			Triage:      st.Triage.Result,
			Findings:    st.Findings,
			LLMAnalysis: st.LLMAnalysis,
			Warnings:    st.Triage.Warnings,
			Now:         e.Now,
		})
		return PhaseDone
	}
	return PhaseDone
}

// analyze returns the narrative, or "" when there is nothing to analyze, no
// analyst, or the analyst failed.
func (e *Engine) analyze(ctx context.Context, st *State) string {
	if e.Analyst == nil || len(st.Triage.Issues) == 0 {
		return ""
	}
	logger := log.FromContext(ctx)

	prompt := llm.BuildUserPrompt(st.Namespace, st.Triage.Issues, st.Findings.Texts())
	text, err := e.Analyst.GenerateAnalysis(ctx, llm.SystemPrompt, prompt)
	if err != nil {
		logger.Error(err, "analysis failed, continuing without narrative")
		return ""
	}
	return text
}

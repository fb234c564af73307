package triage

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tonyjoanes/gopher-doctor/internal/observability"
	"github.com/tonyjoanes/gopher-doctor/internal/owners"
)

// Source is the upstream data-fetch collaborator triage reads from.
type Source interface {
	owners.Lister
	ListPods(ctx context.Context, namespace string) ([]observability.PodSnapshot, error)
	ListNodes(ctx context.Context) ([]observability.NodeSnapshot, error)
	ListEvents(ctx context.Context, namespace string) ([]observability.EventSnapshot, error)
}

// Run fetches pods, nodes, events and the owner map concurrently and
// classifies them. Fetch failures never fail the run: a partial failure
// degrades that input to empty and is reported in Outcome.Warnings, and the
// failure of all three snapshot fetches yields a single ClusterUnreachable
// issue.
func Run(ctx context.Context, src Source, namespace string) Outcome {
	logger := log.FromContext(ctx).WithValues("namespace", namespace)

	var in Input
	var ownerMap owners.Map
	var podsErr, nodesErr, eventsErr error

	var g errgroup.Group
	g.Go(func() error {
		in.Pods, podsErr = src.ListPods(ctx, namespace)
		return nil
	})
	g.Go(func() error {
		in.Nodes, nodesErr = src.ListNodes(ctx)
		return nil
	})
	g.Go(func() error {
		in.Events, eventsErr = src.ListEvents(ctx, namespace)
		return nil
	})
	g.Go(func() error {
		ownerMap = owners.Build(ctx, src, namespace)
		return nil
	})
	_ = g.Wait()

	var errs []string
	if podsErr != nil {
		in.Pods = nil
		errs = append(errs, fmt.Sprintf("Pods: %v", podsErr))
	}
	if nodesErr != nil {
		in.Nodes = nil
		errs = append(errs, fmt.Sprintf("Nodes: %v", nodesErr))
	}
	if eventsErr != nil {
		in.Events = nil
		errs = append(errs, fmt.Sprintf("Events: %v", eventsErr))
	}

	if len(errs) == 3 {
		logger.Error(nil, "cluster unreachable, all API calls failed")
		return Unreachable(namespace, errs)
	}

	for _, e := range errs {
		logger.Info("partial API failure", "err", e)
	}

	out := Classify(in, ownerMap)
	out.Warnings = errs
	logger.V(1).Info(observability.Summary(namespace, in.Pods, in.Nodes, in.Events))
	return out
}

// Unreachable builds the degenerate outcome for a cluster that could not be
// read at all. Deep-dive is never requested.
func Unreachable(namespace string, errs []string) Outcome {
	return Outcome{
		Result: Result{
			Issues: []Issue{{
				PodName:   "N/A",
				Namespace: namespace,
				Reason:    ReasonClusterUnreachable,
				Severity:  SeverityCritical,
				Message:   "Could not connect to cluster. Errors:\n" + strings.Join(errs, "\n"),
			}},
			HealthyPods:   []string{},
			NodeStatus:    NodeCritical,
			EventsSummary: errs,
		},
		NeedsDeepDive: false,
		Warnings:      errs,
	}
}

package commands

import (
	"context"
	"fmt"

	"k8s.io/client-go/rest"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tonyjoanes/gopher-doctor/internal/config"
	"github.com/tonyjoanes/gopher-doctor/internal/diagnosis"
	"github.com/tonyjoanes/gopher-doctor/internal/llm"
	"github.com/tonyjoanes/gopher-doctor/internal/observability"
)

// restConfig resolves the kubeconfig, honoring the configured context.
func restConfig(c *config.Config) (*rest.Config, error) {
	rc, err := ctrlconfig.GetConfigWithContext(c.KubeContext)
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig: %w", err)
	}
	return rc, nil
}

// newSource builds the cluster reader for the CLI and the API server.
func newSource(c *config.Config) (*observability.ClusterSource, error) {
	rc, err := restConfig(c)
	if err != nil {
		return nil, err
	}
	return observability.NewClusterSource(rc, observability.Options{
		Timeout:       c.FetchTimeout,
		PrometheusURL: c.PrometheusURL,
	})
}

// newEngine wires a diagnosis engine from the configuration. An analyst that
// cannot be built is logged and skipped: the report is still produced.
func newEngine(ctx context.Context, c *config.Config, withAnalysis bool) (*diagnosis.Engine, error) {
	src, err := newSource(c)
	if err != nil {
		return nil, err
	}
	engine := &diagnosis.Engine{
		Source:       src,
		MaxIssues:    c.DeepDive.MaxIssues,
		LogTailLines: c.DeepDive.LogTailLines,
	}
	if withAnalysis {
		analyst, err := llm.New(c.Analyst())
		if err != nil {
			log.FromContext(ctx).Error(err, "analysis disabled")
		} else {
			engine.Analyst = analyst
		}
	}
	return engine, nil
}

package observability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"k8s.io/apimachinery/pkg/api/resource"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tonyjoanes/gopher-doctor/internal/sizing"
)

// PrometheusClient queries a Prometheus-compatible HTTP API for per-container
// usage. It is the fallback when metrics-server is not installed.
type PrometheusClient struct {
	// URL is the base URL of the Prometheus server, e.g.
	// "http://prometheus-operated.monitoring.svc.cluster.local:9090"
	URL string
	api promv1.API
}

// NewPrometheusClient creates a client for the given base URL.
func NewPrometheusClient(prometheusURL string) (*PrometheusClient, error) {
	c, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("creating prometheus client: %w", err)
	}
	return &PrometheusClient{URL: prometheusURL, api: promv1.NewAPI(c)}, nil
}

// QueryPod returns the current CPU (rate over 2m) and working-set memory of
// every container of one pod, formatted as Kubernetes quantities.
func (p *PrometheusClient) QueryPod(ctx context.Context, namespace, podName string) (sizing.PodUsage, error) {
	selector := fmt.Sprintf(`namespace=%q, pod=%q, container!="", container!="POD"`, namespace, podName)

	cpu, err := p.byContainer(ctx, fmt.Sprintf(
		`sum by (container) (rate(container_cpu_usage_seconds_total{%s}[2m]))`, selector))
	if err != nil {
		return sizing.PodUsage{}, fmt.Errorf("prometheus CPU query: %w", err)
	}
	mem, err := p.byContainer(ctx, fmt.Sprintf(
		`sum by (container) (container_memory_working_set_bytes{%s})`, selector))
	if err != nil {
		return sizing.PodUsage{}, fmt.Errorf("prometheus memory query: %w", err)
	}

	names := make(map[string]struct{}, len(cpu)+len(mem))
	for n := range cpu {
		names[n] = struct{}{}
	}
	for n := range mem {
		names[n] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	usage := sizing.PodUsage{Name: podName}
	for _, n := range sorted {
		var rl sizing.ResourceList
		if v, ok := cpu[n]; ok {
			rl.CPU = resource.NewMilliQuantity(int64(v*1000+0.5), resource.DecimalSI).String()
		}
		if v, ok := mem[n]; ok {
			rl.Memory = resource.NewQuantity(int64(v), resource.BinarySI).String()
		}
		usage.Containers = append(usage.Containers, sizing.ContainerUsage{Name: n, Usage: rl})
	}
	return usage, nil
}

func (p *PrometheusClient) byContainer(ctx context.Context, query string) (map[string]float64, error) {
	result, warnings, err := p.api.Query(ctx, query, time.Now())
	if err != nil {
		return nil, err
	}
	if len(warnings) > 0 {
		log.FromContext(ctx).V(1).Info("prometheus query warnings", "query", query, "warnings", warnings)
	}
	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %s", result.Type())
	}
	out := make(map[string]float64, len(vector))
	for _, sample := range vector {
		out[string(sample.Metric["container"])] = float64(sample.Value)
	}
	return out, nil
}

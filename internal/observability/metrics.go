package observability

import (
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tonyjoanes/gopher-doctor/internal/sizing"
)

// ErrNoMetricsBackend is returned when neither metrics-server nor Prometheus
// is configured.
var ErrNoMetricsBackend = errors.New("no metrics backend configured")

// PodMetrics returns the current per-container usage of one pod. The
// metrics.k8s.io API is tried first; Prometheus, when configured, is the
// fallback.
func (s *ClusterSource) PodMetrics(ctx context.Context, namespace, podName string) (sizing.PodUsage, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if s.Metrics == nil && s.Prometheus == nil {
		return sizing.PodUsage{}, ErrNoMetricsBackend
	}

	var msErr error
	if s.Metrics != nil {
		pm, err := s.Metrics.MetricsV1beta1().PodMetricses(namespace).Get(ctx, podName, metav1.GetOptions{})
		if err == nil {
			usage := sizing.PodUsage{Name: pm.Name}
			for _, c := range pm.Containers {
				usage.Containers = append(usage.Containers, sizing.ContainerUsage{
					Name: c.Name,
					Usage: sizing.ResourceList{
						CPU:    quantityString(c.Usage, corev1.ResourceCPU),
						Memory: quantityString(c.Usage, corev1.ResourceMemory),
					},
				})
			}
			return usage, nil
		}
		msErr = err
		if s.Prometheus == nil {
			return sizing.PodUsage{}, fmt.Errorf("fetching pod metrics for %s/%s: %w", namespace, podName, err)
		}
		log.FromContext(ctx).V(1).Info("metrics-server unavailable, falling back to prometheus",
			"pod", namespace+"/"+podName, "err", err.Error())
	}

	usage, err := s.Prometheus.QueryPod(ctx, namespace, podName)
	if err != nil {
		if msErr != nil {
			return sizing.PodUsage{}, fmt.Errorf("fetching pod metrics for %s/%s: metrics-server: %v, prometheus: %w",
				namespace, podName, msErr, err)
		}
		return sizing.PodUsage{}, fmt.Errorf("fetching pod metrics for %s/%s: %w", namespace, podName, err)
	}
	if len(usage.Containers) == 0 {
		return sizing.PodUsage{}, fmt.Errorf("no metrics found for pod %s/%s", namespace, podName)
	}
	return usage, nil
}

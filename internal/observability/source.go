package observability

import (
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/tonyjoanes/gopher-doctor/internal/owners"
)

// DefaultFetchTimeout bounds every individual API call.
const DefaultFetchTimeout = 15 * time.Second

// ClusterSource reads namespace snapshots from a live cluster.
// It is safe to call concurrently.
type ClusterSource struct {
	// Client is the controller-runtime client used for typed lists.
	Client client.Client
	// Kube is the raw clientset required for pod log streaming.
	Kube kubernetes.Interface
	// Metrics is optional; nil disables metrics-server lookups.
	Metrics metricsclient.Interface
	// Prometheus is optional; it is consulted when metrics-server fails.
	Prometheus *PrometheusClient
	// Timeout bounds each call. Zero means DefaultFetchTimeout.
	Timeout time.Duration
}

// Options configures NewClusterSource.
type Options struct {
	Timeout       time.Duration
	PrometheusURL string
	// Scheme defaults to the client-go scheme.
	Scheme *runtime.Scheme
}

// NewClusterSource builds every client from one rest.Config.
func NewClusterSource(cfg *rest.Config, opts Options) (*ClusterSource, error) {
	scheme := opts.Scheme
	if scheme == nil {
		scheme = clientgoscheme.Scheme
	}
	c, err := client.New(cfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("creating controller-runtime client: %w", err)
	}
	kube, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating clientset: %w", err)
	}
	metrics, err := metricsclient.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating metrics clientset: %w", err)
	}

	src := &ClusterSource{Client: c, Kube: kube, Metrics: metrics, Timeout: opts.Timeout}
	if opts.PrometheusURL != "" {
		prom, err := NewPrometheusClient(opts.PrometheusURL)
		if err != nil {
			return nil, err
		}
		src.Prometheus = prom
	}
	return src, nil
}

func (s *ClusterSource) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// ListPods returns every pod in the namespace.
func (s *ClusterSource) ListPods(ctx context.Context, namespace string) ([]PodSnapshot, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var podList corev1.PodList
	if err := s.Client.List(ctx, &podList, client.InNamespace(namespace)); err != nil {
		return nil, fmt.Errorf("listing pods in %s: %w", namespace, err)
	}
	out := make([]PodSnapshot, 0, len(podList.Items))
	for i := range podList.Items {
		out = append(out, FilterPod(&podList.Items[i]))
	}
	return out, nil
}

// ListNodes returns every node in the cluster.
func (s *ClusterSource) ListNodes(ctx context.Context) ([]NodeSnapshot, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var nodeList corev1.NodeList
	if err := s.Client.List(ctx, &nodeList); err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	out := make([]NodeSnapshot, 0, len(nodeList.Items))
	for i := range nodeList.Items {
		out = append(out, FilterNode(&nodeList.Items[i]))
	}
	return out, nil
}

// ListReplicaSetOwners returns every ReplicaSet in the namespace with its
// first owner reference.
func (s *ClusterSource) ListReplicaSetOwners(ctx context.Context, namespace string) ([]owners.Controller, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var rsList appsv1.ReplicaSetList
	if err := s.Client.List(ctx, &rsList, client.InNamespace(namespace)); err != nil {
		return nil, fmt.Errorf("listing replicasets in %s: %w", namespace, err)
	}
	out := make([]owners.Controller, 0, len(rsList.Items))
	for _, rs := range rsList.Items {
		out = append(out, controllerOf(rs.ObjectMeta))
	}
	return out, nil
}

// ListJobOwners returns every Job in the namespace with its first owner
// reference.
func (s *ClusterSource) ListJobOwners(ctx context.Context, namespace string) ([]owners.Controller, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var jobList batchv1.JobList
	if err := s.Client.List(ctx, &jobList, client.InNamespace(namespace)); err != nil {
		return nil, fmt.Errorf("listing jobs in %s: %w", namespace, err)
	}
	out := make([]owners.Controller, 0, len(jobList.Items))
	for _, j := range jobList.Items {
		out = append(out, controllerOf(j.ObjectMeta))
	}
	return out, nil
}

func controllerOf(meta metav1.ObjectMeta) owners.Controller {
	c := owners.Controller{Name: meta.Name}
	if len(meta.OwnerReferences) > 0 {
		ref := meta.OwnerReferences[0]
		c.Owner = &owners.Reference{Kind: ref.Kind, Name: ref.Name}
	}
	return c
}

var _ owners.Lister = (*ClusterSource)(nil)


package observability

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ListEvents returns every event in the namespace, Normal and Warning alike,
// in API order. Classification is order-insensitive apart from the first
// event per pod winning, so no sorting or capping happens here.
func (s *ClusterSource) ListEvents(ctx context.Context, namespace string) ([]EventSnapshot, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var eventList corev1.EventList
	if err := s.Client.List(ctx, &eventList, client.InNamespace(namespace)); err != nil {
		return nil, fmt.Errorf("listing events in %s: %w", namespace, err)
	}

	out := make([]EventSnapshot, 0, len(eventList.Items))
	for i := range eventList.Items {
		out = append(out, FilterEvent(&eventList.Items[i]))
	}
	return out, nil
}

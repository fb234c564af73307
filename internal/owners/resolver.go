// Package owners resolves a pod to the workload that ultimately owns it.
//
// Pods are usually owned by an intermediate controller (ReplicaSet, Job)
// which is in turn owned by the workload an operator actually manages
// (Deployment, CronJob). Build flattens that one level of indirection into a
// Map so that Resolve is a single lookup.
package owners

import (
	"context"

	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Reference identifies an owner by kind and name. It is a lookup key, not a
// pointer to a live object.
type Reference struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// Key returns the "<Kind>/<Name>" form used to index a Map.
func (r Reference) Key() string {
	return r.Kind + "/" + r.Name
}

// Controller is an intermediate controller object together with its own
// first owner reference, if any.
type Controller struct {
	Name  string
	Owner *Reference
}

// Lister fetches the intermediate controllers of a namespace.
type Lister interface {
	ListReplicaSetOwners(ctx context.Context, namespace string) ([]Controller, error)
	ListJobOwners(ctx context.Context, namespace string) ([]Controller, error)
}

// Map resolves "<Kind>/<Name>" of an intermediate controller to its parent.
// It is built once per diagnostic run and read-only afterwards.
type Map map[string]Reference

// Build fetches ReplicaSets and Jobs concurrently and records each one's
// parent. A failed fetch only loses that kind's entries; Build never fails.
func Build(ctx context.Context, lister Lister, namespace string) Map {
	logger := log.FromContext(ctx).WithValues("namespace", namespace)

	var replicaSets, jobs []Controller
	var g errgroup.Group
	g.Go(func() error {
		rs, err := lister.ListReplicaSetOwners(ctx, namespace)
		if err != nil {
			logger.Info("failed to fetch ReplicaSets for owner resolution", "err", err.Error())
			return nil
		}
		replicaSets = rs
		return nil
	})
	g.Go(func() error {
		js, err := lister.ListJobOwners(ctx, namespace)
		if err != nil {
			logger.Info("failed to fetch Jobs for owner resolution", "err", err.Error())
			return nil
		}
		jobs = js
		return nil
	})
	_ = g.Wait()

	m := make(Map, len(replicaSets)+len(jobs))
	m.add("ReplicaSet", replicaSets)
	m.add("Job", jobs)
	return m
}

func (m Map) add(kind string, controllers []Controller) {
	for _, c := range controllers {
		if c.Name == "" || c.Owner == nil || c.Owner.Kind == "" || c.Owner.Name == "" {
			continue
		}
		m[kind+"/"+c.Name] = *c.Owner
	}
}

// Resolve returns the topmost known owner of a pod given its raw owner
// references. Only the first reference is considered. A mapped intermediate
// controller resolves to its parent; anything else resolves to itself.
// Nil means the pod has no owner.
func Resolve(podOwners []Reference, m Map) *Reference {
	if len(podOwners) == 0 {
		return nil
	}
	direct := podOwners[0]
	if direct.Kind == "" || direct.Name == "" {
		return nil
	}
	if parent, ok := m[direct.Key()]; ok {
		return &parent
	}
	return &direct
}

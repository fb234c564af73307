package owners

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	replicaSets []Controller
	jobs        []Controller
	rsErr       error
	jobErr      error
}

func (f *fakeLister) ListReplicaSetOwners(context.Context, string) ([]Controller, error) {
	return f.replicaSets, f.rsErr
}

func (f *fakeLister) ListJobOwners(context.Context, string) ([]Controller, error) {
	return f.jobs, f.jobErr
}

func TestBuild(t *testing.T) {
	lister := &fakeLister{
		replicaSets: []Controller{
			{Name: "gateway-7d9f", Owner: &Reference{Kind: "Deployment", Name: "gateway"}},
			{Name: "orphan-rs"},
		},
		jobs: []Controller{
			{Name: "backup-28391", Owner: &Reference{Kind: "CronJob", Name: "backup"}},
		},
	}

	m := Build(context.Background(), lister, "prod")
	assert.Equal(t, Map{
		"ReplicaSet/gateway-7d9f": {Kind: "Deployment", Name: "gateway"},
		"Job/backup-28391":        {Kind: "CronJob", Name: "backup"},
	}, m)
}

func TestBuildToleratesFetchFailures(t *testing.T) {
	lister := &fakeLister{
		rsErr: errors.New("forbidden"),
		jobs:  []Controller{{Name: "j", Owner: &Reference{Kind: "CronJob", Name: "c"}}},
	}
	m := Build(context.Background(), lister, "prod")
	assert.Len(t, m, 1)

	lister.jobErr = errors.New("timeout")
	assert.Empty(t, Build(context.Background(), lister, "prod"))
}

func TestResolve(t *testing.T) {
	m := Map{"ReplicaSet/X": {Kind: "Deployment", Name: "D"}}

	t.Run("mapped replicaset resolves to deployment", func(t *testing.T) {
		got := Resolve([]Reference{{Kind: "ReplicaSet", Name: "X"}}, m)
		require.NotNil(t, got)
		assert.Equal(t, Reference{Kind: "Deployment", Name: "D"}, *got)
	})

	t.Run("unmapped replicaset resolves to itself", func(t *testing.T) {
		got := Resolve([]Reference{{Kind: "ReplicaSet", Name: "Y"}}, m)
		require.NotNil(t, got)
		assert.Equal(t, Reference{Kind: "ReplicaSet", Name: "Y"}, *got)
	})

	t.Run("no owner references", func(t *testing.T) {
		assert.Nil(t, Resolve(nil, m))
	})

	t.Run("only the first reference counts", func(t *testing.T) {
		got := Resolve([]Reference{
			{Kind: "StatefulSet", Name: "db"},
			{Kind: "ReplicaSet", Name: "X"},
		}, m)
		require.NotNil(t, got)
		assert.Equal(t, "StatefulSet", got.Kind)
	})

	t.Run("malformed reference is no owner", func(t *testing.T) {
		assert.Nil(t, Resolve([]Reference{{Kind: "ReplicaSet"}}, m))
	})
}

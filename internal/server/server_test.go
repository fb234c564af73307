package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonyjoanes/gopher-doctor/internal/diagnosis"
	"github.com/tonyjoanes/gopher-doctor/internal/report"
	"github.com/tonyjoanes/gopher-doctor/internal/store"
)

type fakeDiagnoser struct {
	err   error
	calls []string
}

func (f *fakeDiagnoser) Run(_ context.Context, namespace string) (*diagnosis.State, error) {
	f.calls = append(f.calls, namespace)
	if f.err != nil {
		return nil, f.err
	}
	return &diagnosis.State{
		Namespace: namespace,
		Report: report.DiagnosticReport{
			Namespace:  namespace,
			Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Summary:    "All 2 pods in namespace \"" + namespace + "\" are healthy.",
			NodeStatus: "healthy",
			Issues:     []report.Issue{},
			HealthyResources: []report.HealthyResource{
				{Kind: "Pod", Name: "web", Status: "Running"},
			},
		},
	}, nil
}

func newTestServer(t *testing.T, d Diagnoser) (*Server, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(d, s, logr.Discard()), s
}

func do(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDiagnoser{})
	rec := do(t, srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDiagnoseSavesAndServesReport(t *testing.T) {
	d := &fakeDiagnoser{}
	srv, _ := newTestServer(t, d)

	rec := do(t, srv, http.MethodPost, "/api/v1/namespaces/prod/diagnose")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"prod"}, d.calls)

	var resp diagnoseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	assert.Equal(t, "prod", resp.Report.Namespace)

	rec = do(t, srv, http.MethodGet, "/api/v1/reports/"+resp.ID+"?format=markdown")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/markdown"))
	assert.Contains(t, rec.Body.String(), "| Pod | web | Running |")

	rec = do(t, srv, http.MethodGet, "/api/v1/reports?namespace=prod")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Reports []store.Record `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Reports, 1)
	assert.Equal(t, resp.ID, list.Reports[0].ID)
}

func TestUnknownReport(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDiagnoser{})
	rec := do(t, srv, http.MethodGet, "/api/v1/reports/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBadQueryParameters(t *testing.T) {
	srv, s := newTestServer(t, &fakeDiagnoser{})

	rec := do(t, srv, http.MethodGet, "/api/v1/reports?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	saved, err := s.Save(context.Background(), report.DiagnosticReport{Namespace: "prod"})
	require.NoError(t, err)
	rec = do(t, srv, http.MethodGet, "/api/v1/reports/"+saved.ID+"?format=xml")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiagnoseInterrupted(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDiagnoser{err: context.DeadlineExceeded})
	rec := do(t, srv, http.MethodPost, "/api/v1/namespaces/prod/diagnose")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestWithoutStore(t *testing.T) {
	srv := New(&fakeDiagnoser{}, nil, logr.Discard())

	rec := do(t, srv, http.MethodPost, "/api/v1/namespaces/prod/diagnose?format=yaml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "namespace: prod")

	rec = do(t, srv, http.MethodGet, "/api/v1/reports")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

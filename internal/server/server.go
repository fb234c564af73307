// Package server exposes diagnostic runs and report history over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tonyjoanes/gopher-doctor/internal/diagnosis"
	"github.com/tonyjoanes/gopher-doctor/internal/report"
	"github.com/tonyjoanes/gopher-doctor/internal/store"
)

// Diagnoser runs one diagnosis. *diagnosis.Engine implements it.
type Diagnoser interface {
	Run(ctx context.Context, namespace string) (*diagnosis.State, error)
}

// DiagnoseTimeout bounds one diagnose request, analysis included.
const DiagnoseTimeout = 5 * time.Minute

// Server handles the HTTP API. Store is optional; without it nothing is
// persisted and the report endpoints answer 503.
type Server struct {
	diagnoser Diagnoser
	store     *store.Store
	logger    logr.Logger
	router    *gin.Engine
}

// New builds the server and its routes.
func New(d Diagnoser, s *store.Store, logger logr.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	srv := &Server{diagnoser: d, store: s, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery(), srv.requestLogger())

	api := router.Group("/api/v1")
	{
		api.POST("/namespaces/:namespace/diagnose", srv.diagnose)
		api.GET("/reports", srv.listReports)
		api.GET("/reports/:id", srv.getReport)
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv.router = router
	return srv
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	// a diagnose request can take as long as the analysis
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: DiagnoseTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(log.IntoContext(c.Request.Context(), s.logger))
		c.Next()
		s.logger.V(1).Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

type diagnoseResponse struct {
	ID     string                  `json:"id,omitempty"`
	Report report.DiagnosticReport `json:"report"`
}

func (s *Server) diagnose(c *gin.Context) {
	namespace := c.Param("namespace")
	ctx, cancel := context.WithTimeout(c.Request.Context(), DiagnoseTimeout)
	defer cancel()

	st, err := s.diagnoser.Run(ctx, namespace)
	if err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	}

	resp := diagnoseResponse{Report: st.Report}
	if s.store != nil {
		rec, err := s.store.Save(c.Request.Context(), st.Report)
		if err != nil {
			// the report is still useful without history
			log.FromContext(ctx).Error(err, "failed to save report", "namespace", namespace)
		} else {
			resp.ID = rec.ID
		}
	}

	if c.Query("format") != "" {
		s.render(c, st.Report)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listReports(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "report history is disabled"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	recs, err := s.store.List(c.Request.Context(), c.Query("namespace"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": recs})
}

func (s *Server) getReport(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "report history is disabled"})
		return
	}
	rec, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	r, err := rec.Report()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.render(c, r)
}

var contentTypes = map[report.Format]string{
	report.FormatMarkdown: "text/markdown; charset=utf-8",
	report.FormatJSON:     "application/json; charset=utf-8",
	report.FormatYAML:     "application/yaml; charset=utf-8",
}

// render writes r in the ?format= encoding, JSON by default.
func (s *Server) render(c *gin.Context, r report.DiagnosticReport) {
	format := report.FormatJSON
	if raw := c.Query("format"); raw != "" {
		f, err := report.ParseFormat(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		format = f
	}

	var buf bytes.Buffer
	if err := report.Encode(&buf, r, format); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, contentTypes[format], buf.Bytes())
}

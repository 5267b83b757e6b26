package scangate

import (
	"artifact-scan-gate/internal/pkg/ecosystem"
	"artifact-scan-gate/internal/pkg/metrics"
	"artifact-scan-gate/internal/pkg/scanner"
	"context"
	"errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"k8s.io/klog/v2"
	"net/http"
)

const (
	BeforeDownloadRoute  = "/api/v1/events/before-download"
	PropertyCreatedRoute = "/api/v1/events/property-created"
	MetricsRoute         = "/metrics"
	HealthRoute          = "/healthz"
)

// BeforeDownloadRequest describes an artifact about to be served.
type BeforeDownloadRequest struct {
	RepoKey     string           `json:"repoKey"`
	Path        string           `json:"path"`
	PackageType string           `json:"packageType"`
	Layout      ecosystem.Layout `json:"layout"`
}

// PropertyCreatedRequest describes a property set on an artifact by an operator.
type PropertyCreatedRequest struct {
	RepoKey string `json:"repoKey"`
	Path    string `json:"path"`
	Key     string `json:"key"`
	Value   string `json:"value"`
}

// DecisionResponse is the answer to a before-download event.
type DecisionResponse struct {
	Allowed         bool   `json:"allowed"`
	Outcome         string `json:"outcome"`
	Reason          string `json:"reason,omitempty"`
	Coordinate      string `json:"coordinate,omitempty"`
	Vulnerabilities string `json:"vulnerabilities,omitempty"`
	Licenses        string `json:"licenses,omitempty"`
	DetailsURL      string `json:"detailsUrl,omitempty"`
}

// Server exposes the scanner's event entry points over HTTP.
type Server struct {
	httpServer *echo.Echo
	scanner    *scanner.Scanner
	metrics    *metrics.Metrics
}

func NewServer(s *scanner.Scanner, m *metrics.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	srv := &Server{httpServer: e, scanner: s, metrics: m}
	srv.setupRouting()
	return srv
}

func (s *Server) setupRouting() {
	s.httpServer.POST(BeforeDownloadRoute, s.beforeDownload)
	s.httpServer.POST(PropertyCreatedRoute, s.propertyCreated)
	s.httpServer.GET(MetricsRoute, echo.WrapHandler(s.metrics.Handler()))
	s.httpServer.GET(HealthRoute, func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

// ServeHTTP lets the server be driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	klog.Infof("Listening on %s", addr)
	if err := s.httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) beforeDownload(c echo.Context) error {
	var req BeforeDownloadRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}

	d, err := s.scanner.Scan(c.Request().Context(), ecosystem.Input{
		RepoKey:     req.RepoKey,
		Path:        req.Path,
		PackageType: req.PackageType,
		Layout:      req.Layout,
	})
	if err != nil {
		klog.V(2).Infof("Scan of %s:%s returned: %v", req.RepoKey, req.Path, err)
	}

	resp := DecisionResponse{
		Allowed: d.Allowed,
		Outcome: d.Outcome,
		Reason:  d.Reason,
	}
	if d.Coordinate != (ecosystem.Coordinate{}) {
		resp.Coordinate = d.Coordinate.String()
	}
	if d.Artifact != nil {
		resp.Vulnerabilities = d.Artifact.Vulnerabilities.String()
		resp.Licenses = d.Artifact.Licenses.String()
		resp.DetailsURL = d.Artifact.DetailsURL
	}

	status := http.StatusOK
	if !d.Allowed {
		status = http.StatusForbidden
	}
	return c.JSON(status, resp)
}

func (s *Server) propertyCreated(c echo.Context) error {
	var req PropertyCreatedRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Path == "" || req.Key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path and key are required")
	}
	in := ecosystem.Input{RepoKey: req.RepoKey, Path: req.Path}
	s.scanner.OnPropertyCreated(c.Request().Context(), in.ID(), req.Key, req.Value)
	return c.NoContent(http.StatusNoContent)
}

// Package httpapi exposes the context orchestrator over HTTP with an
// Echo router: POST /v1/context for retrieval, source management
// endpoints, a health check, and a Prometheus /metrics exposition
// endpoint, the way contextd's pkg/server wires its own handlers around
// a single Echo instance.
package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ragifylabs/ragify/internal/apierrors"
	"github.com/ragifylabs/ragify/internal/datasource"
	"github.com/ragifylabs/ragify/internal/model"
)

// Service is the orchestrator surface the HTTP API depends on. It is
// satisfied by *orchestrator.Orchestrator; handlers are tested against
// a fake implementing this narrower interface.
type Service interface {
	GetContext(ctx context.Context, req model.ContextRequest) (model.ContextResponse, error)
	AddSource(src datasource.Source)
	RemoveSource(name string)
	ListSources() []string
	IsHealthy(ctx context.Context) bool
}

// Server wraps an Echo instance wired to the orchestrator's
// get_context/add_source/remove_source/list_sources/is_healthy surface.
type Server struct {
	echo   *echo.Echo
	logger *zap.Logger
}

// ContextRequestBody is the JSON body accepted by POST /v1/context.
type ContextRequestBody struct {
	Query           string   `json:"query"`
	UserID          string   `json:"user_id,omitempty"`
	SessionID       string   `json:"session_id,omitempty"`
	MaxTokens       int      `json:"max_tokens"`
	MaxChunks       int      `json:"max_chunks"`
	MinRelevance    float64  `json:"min_relevance"`
	PrivacyLevel    string   `json:"privacy_level"`
	IncludeMetadata bool     `json:"include_metadata"`
	IncludeSources  []string `json:"include_sources,omitempty"`
	ExcludeSources  []string `json:"exclude_sources,omitempty"`
}

// ErrorResponse is the JSON body returned on any 4xx/5xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON response for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// AddSourceRequest describes a source registration over HTTP. Only the
// static in-process source kind is addressable this way; realtime/NATS
// and richer sources are wired at process startup, not over the API.
type AddSourceRequest struct {
	Name           string        `json:"name"`
	PrivacyLevel   string        `json:"privacy_level"`
	AuthorityScore float64       `json:"authority_score"`
	FreshnessScore float64       `json:"freshness_score"`
	Chunks         []model.Chunk `json:"chunks"`
}

// NewServer builds an Echo-backed Server around svc. Routes are
// registered immediately; call Start to begin serving.
func NewServer(svc Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(zapRequestLogger(logger))

	s := &Server{echo: e, logger: logger}
	s.registerRoutes(svc)
	return s
}

func (s *Server) registerRoutes(svc Service) {
	s.echo.GET("/healthz", s.handleHealth(svc))
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.POST("/v1/context", s.handleGetContext(svc))
	s.echo.POST("/v1/sources", s.handleAddSource(svc))
	s.echo.DELETE("/v1/sources/:name", s.handleRemoveSource(svc))
	s.echo.GET("/v1/sources", s.handleListSources(svc))
}

func (s *Server) handleHealth(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !svc.IsHealthy(c.Request().Context()) {
			return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy"})
		}
		return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
	}
}

func (s *Server) handleGetContext(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body ContextRequestBody
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		}
		if body.Query == "" {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "query is required"})
		}

		req := model.ContextRequest{
			Query:           body.Query,
			UserID:          body.UserID,
			SessionID:       body.SessionID,
			MaxTokens:       body.MaxTokens,
			MaxChunks:       body.MaxChunks,
			MinRelevance:    body.MinRelevance,
			PrivacyLevel:    model.ParsePrivacyLevel(body.PrivacyLevel),
			IncludeMetadata: body.IncludeMetadata,
			IncludeSources:  body.IncludeSources,
			ExcludeSources:  body.ExcludeSources,
		}

		resp, err := svc.GetContext(c.Request().Context(), req)
		if err != nil {
			return statusFor(c, err)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) handleAddSource(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body AddSourceRequest
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		}
		if body.Name == "" {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "name is required"})
		}

		src := datasource.NewStaticSource(datasource.StaticSourceConfig{
			Name:           body.Name,
			Type:           model.SourceTypeDocument,
			PrivacyLevel:   model.ParsePrivacyLevel(body.PrivacyLevel),
			AuthorityScore: body.AuthorityScore,
			FreshnessScore: body.FreshnessScore,
			Chunks:         body.Chunks,
		})
		svc.AddSource(src)
		return c.NoContent(http.StatusCreated)
	}
}

func (s *Server) handleRemoveSource(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		svc.RemoveSource(c.Param("name"))
		return c.NoContent(http.StatusNoContent)
	}
}

func (s *Server) handleListSources(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"sources": svc.ListSources()})
	}
}

// statusFor maps the apierrors taxonomy onto HTTP status codes.
func statusFor(c echo.Context, err error) error {
	switch {
	case apierrors.IsPrivacyViolation(err):
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case isErr(err, apierrors.ErrContextNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case isErr(err, apierrors.ErrClosed):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func isErr(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Echo returns the underlying Echo instance, for tests and for
// registering additional routes at startup.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

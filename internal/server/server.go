package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aevon-lab/spreadsheet-report/internal/core/definition"
	coreerrors "github.com/aevon-lab/spreadsheet-report/internal/core/errors"
	"github.com/aevon-lab/spreadsheet-report/internal/lifecycle"
	"github.com/gin-gonic/gin"
)

type Server struct {
	Engine   *gin.Engine
	Addr     string
	platform HealthChecker
	entities EntitySource
}

// HealthChecker is an interface for components that can report their health status.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// EntitySource exposes the scheduler's entity registry.
type EntitySource interface {
	Snapshot() []lifecycle.Snapshot
	Get(kind definition.EntityKind, name string) (*lifecycle.Entity, bool)
}

func New(addr string, platform HealthChecker, entities EntitySource, mode string) *Server {
	// Set Gin mode based on configuration
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		Engine:   r,
		Addr:     addr,
		platform: platform,
		entities: entities,
	}

	// Health check endpoint with platform connectivity verification
	r.GET("/health", s.healthHandler)

	v1 := r.Group("/api/v1")
	v1.GET("/entities", s.listEntities)
	v1.GET("/entities/:kind/:name", s.getEntity)

	return s
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.platform != nil {
		if err := s.platform.Ping(ctx); err != nil {
			slog.Error("[Server] Health check failed: platform unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, coreerrors.ErrorResponse{
				ErrorType: coreerrors.HttpPlatformUnreachable,
				Message:   "platform unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"platform": "connected",
	})
}

func (s *Server) listEntities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entities": s.entities.Snapshot()})
}

func (s *Server) getEntity(c *gin.Context) {
	kind := definition.EntityKind(c.Param("kind"))
	e, ok := s.entities.Get(kind, c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, coreerrors.ErrorResponse{
			ErrorType: coreerrors.HttpEntityNotFoundError,
			Message:   "no such entity",
			Details:   gin.H{"kind": kind, "name": c.Param("name")},
		})
		return
	}
	c.JSON(http.StatusOK, e.Snapshot())
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Addr,
		Handler: s.Engine,
	}

	slog.Info("[Server] Starting HTTP Server...", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("[Server] Stopping HTTP Server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("[Server] HTTP Server forced to shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

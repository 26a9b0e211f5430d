// Package api provides the HTTP API for running scans and URL inspections.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/netinspect/netinspect/internal/config"
	"github.com/netinspect/netinspect/internal/inspector"
	"github.com/netinspect/netinspect/internal/scanner"
	"github.com/netinspect/netinspect/internal/store"
	"go.uber.org/zap"
)

const serviceName = "netinspect"

// Server represents the HTTP API server.
type Server struct {
	config    config.ServerConfig
	callback  config.CallbackConfig
	scanner   *scanner.Scanner
	inspector *inspector.Inspector
	store     store.Store
	logger    *zap.SugaredLogger
	router    *gin.Engine

	// ctx parents every background scan; Stop cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new API server.
func New(
	cfg config.ServerConfig,
	callbackCfg config.CallbackConfig,
	scan *scanner.Scanner,
	insp *inspector.Inspector,
	st store.Store,
	logger *zap.SugaredLogger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    cfg,
		callback:  callbackCfg,
		scanner:   scan,
		inspector: insp,
		store:     st,
		logger:    logger,
		router:    gin.New(),
		ctx:       ctx,
		cancel:    cancel,
	}

	s.setupRoutes()
	return s
}

// Router returns the gin router.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Stop cancels running background scans and waits for them to record their outcome.
func (s *Server) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readyHandler)

	v1 := s.router.Group("/api/v1")
	if s.config.JWTSecret != "" {
		v1.Use(authMiddleware([]byte(s.config.JWTSecret)))
	}
	{
		v1.POST("/scan/target", s.scanTargetHandler)
		v1.POST("/scans", s.startScanHandler)
		v1.GET("/scans/:id", s.getScanHandler)
		v1.POST("/inspect", s.inspectHandler)
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.logger.Debugw("Request completed",
			"path", path,
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"latency", time.Since(start),
		)
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
	})
}

// readyHandler reports ready once the record store answers.
func (s *Server) readyHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if _, err := s.store.Get(ctx, "readiness-probe"); err != nil && !errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"service": serviceName,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"service": serviceName,
	})
}

// scanTargetHandler scans one IP and returns the report in the response.
func (s *Server) scanTargetHandler(c *gin.Context) {
	var req ScanTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target IP address required"})
		return
	}

	rep, err := s.scanner.Scan(c.Request.Context(), scanner.Request{IP: req.IP, Ports: req.Ports})
	if errors.Is(err, scanner.ErrInvalidIP) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ScanResponse{ScanID: rep.ID, Report: rep})
}

func (s *Server) getScanHandler(c *gin.Context) {
	rec, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
		return
	}
	if err != nil {
		s.logger.Errorw("Failed to load scan record", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load scan"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) inspectHandler(c *gin.Context) {
	var req InspectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url required"})
		return
	}

	res, err := s.inspector.Inspect(c.Request.Context(), req.URL)
	if errors.Is(err, inspector.ErrInvalidURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

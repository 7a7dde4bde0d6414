package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pa-decision-orchestrator/internal/domain"
	"github.com/pa-decision-orchestrator/internal/orchestrator"
	"github.com/pa-decision-orchestrator/internal/tasks"
)

// Server exposes the task registry over HTTP.
type Server struct {
	logger   *logrus.Logger
	cfg      domain.ServerConfig
	registry *tasks.Registry
	orch     *orchestrator.Orchestrator
	router   *gin.Engine
	server   *http.Server
}

// NewServer creates the HTTP server and wires its routes.
func NewServer(logger *logrus.Logger, cfg domain.Config, registry *tasks.Registry, orch *orchestrator.Orchestrator) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())

	s := &Server{
		logger:   logger,
		cfg:      cfg.Server,
		registry: registry,
		orch:     orch,
		router:   router,
	}
	s.setupRoutes()
	return s
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", s.handleMetrics)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/tasks", s.handleTask)
		v1.POST("/predict", s.handlePredict)
		v1.GET("/tasks", s.handleSupportedTasks)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Metrics().Snapshot())
}

func (s *Server) handleSupportedTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": s.registry.SupportedTasks()})
}

// handleTask is the generic task envelope endpoint.
func (s *Server) handleTask(c *gin.Context) {
	var req tasks.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}
	resp := s.registry.Dispatch(c.Request.Context(), req)
	c.JSON(httpStatusFor(resp.Status), resp)
}

// handlePredict is a convenience route that wraps the prediction payload in
// the task envelope.
func (s *Server) handlePredict(c *gin.Context) {
	var payload orchestrator.Request
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := s.registry.Dispatch(c.Request.Context(), tasks.Request{
		TaskName: "predict_approval_likelihood",
		Payload:  raw,
	})
	c.JSON(httpStatusFor(resp.Status), resp)
}

func httpStatusFor(status domain.TaskStatus) int {
	switch status {
	case domain.StatusCompleted, domain.StatusPartial:
		return http.StatusOK
	case domain.StatusNotFound:
		return http.StatusNotFound
	case domain.StatusForbidden:
		return http.StatusForbidden
	case domain.StatusRetry:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

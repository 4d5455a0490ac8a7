// Package httpapi exposes Pentagon's single execution endpoint as a
// gin router: POST /execute streams one Server-Sent Event per completed
// stage, GET /metrics serves the Prometheus registry, and GET /healthz
// answers liveness probes.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pentagon/internal/common/http/middleware"
	"pentagon/internal/metrics"
	"pentagon/internal/pipeline"
	"pentagon/internal/transfer"
	"pentagon/pkg/utils/logger"
)

// Server bundles the collaborators the HTTP layer needs.
type Server struct {
	engine   *pipeline.Engine
	sink     metrics.Sink
	registry *prometheus.Registry
	router   *gin.Engine
}

// New builds the gin router. reg is the Prometheus registry backing both
// the Sink passed to the pipeline engine and the /metrics endpoint.
func New(pipelineEngine *pipeline.Engine, sink metrics.Sink, reg *prometheus.Registry) *Server {
	s := &Server{engine: pipelineEngine, sink: sink, registry: reg}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationMiddleware())
	router.Use(requestLogger())

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.POST("/execute", s.handleExecute)

	s.router = router
	return s
}

// Handler returns the http.Handler to serve.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleExecute decodes an ExecutionRequest, streams one SSE event per
// completed stage, and closes the stream when the pipeline finishes.
func (s *Server) handleExecute(c *gin.Context) {
	start := time.Now()
	s.sink.IncRequests()
	s.sink.IncActiveWorkers()
	defer s.sink.DecActiveWorkers()
	defer func() { s.sink.ObserveTotalDurationMs(float64(time.Since(start).Milliseconds())) }()

	if c.ContentType() != "application/json" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content-type must be application/json"})
		return
	}

	var req transfer.ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events := s.engine.Run(c.Request.Context(), req)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for ev := range events {
		if ev.Error != "" {
			c.SSEvent("error", gin.H{"error": ev.Error})
		} else {
			c.SSEvent("result", ev.Result)
		}
		c.Writer.Flush()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thesyncim/mediastream"
	"github.com/thesyncim/mediastream/internal/metrics"
)

// Caller runs a function on the stream loop and waits for it.
type Caller interface {
	Call(ctx context.Context, fn func()) error
}

// Config wires the API to the running engine. Metrics, Sessions and
// Devices are optional.
type Config struct {
	Loop        Caller
	Registry    *mediastream.StreamRegistry
	Page        *mediastream.Page
	Sessions    *mediastream.SessionManager
	Devices     *mediastream.MediaDevices
	Metrics     *metrics.Metrics
	MetricsPath string
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg     Config
	log     *slog.Logger
	router  *gin.Engine
	viewers viewers
}

// NewServer creates the API server and registers its routes.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:    cfg,
		log:    cfg.Logger.With("component", "api"),
		router: router,
	}
	router.Use(s.observe)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/streams", s.listStreams)
		v1.GET("/streams/:id", s.getStream)
		v1.DELETE("/streams/:id", s.closeStream)
		v1.POST("/streams/:id/producing", s.setProducing)
		v1.POST("/streams/:id/clone", s.cloneStream)
		v1.DELETE("/streams/:id/tracks/:trackId", s.removeTrack)
		v1.POST("/streams/:id/viewers", s.createViewer)

		v1.GET("/page", s.getPage)
		v1.POST("/page/muted", s.setPageMuted)
		v1.POST("/page/can-start", s.setCanStart)

		v1.GET("/sessions", s.listSessions)

		if s.cfg.Devices != nil {
			v1.GET("/devices", s.listDevices)
			v1.POST("/devices/user-media", s.getUserMedia)
		}
	}

	if s.cfg.Metrics != nil {
		path := s.cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(s.cfg.Metrics.Handler()))
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Router returns the gin engine.
func (s *Server) Router() *gin.Engine { return s.router }

// observe logs each request and records it in metrics.
func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	status := c.Writer.Status()
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RequestServed(c.Request.Method, route, status)
	}
	s.log.Debug("request served",
		"method", c.Request.Method,
		"route", route,
		"status", status,
		"duration", time.Since(start),
	)
}

// onLoop runs fn on the stream loop with the configured timeout.
func (s *Server) onLoop(c *gin.Context, fn func()) bool {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.CallTimeout)
	defer cancel()

	if err := s.cfg.Loop.Call(ctx, fn); err != nil {
		s.log.Warn("loop call failed", "route", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return false
	}
	return true
}

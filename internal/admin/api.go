package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"hwbot/internal/route"
)

const ctxIsAdmin = "isAdmin"

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Host        string
	Port        int
	Token       string // bearer token; empty disables /api access
	Service     *Service
	Metrics     http.Handler // served at /metrics when set
	Webhook     http.Handler // Telegram updates, served at WebhookPath when set
	WebhookPath string
	Logger      *slog.Logger
}

// Server exposes admin operations over HTTP.
type Server struct {
	cfg    ServerConfig
	engine *gin.Engine
	server *http.Server
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("admin server: service is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 8443
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{cfg: cfg, engine: engine}
	s.registerRoutes()
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	if s.cfg.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.cfg.Metrics))
	}
	if s.cfg.Webhook != nil && s.cfg.WebhookPath != "" {
		s.engine.POST(s.cfg.WebhookPath, gin.WrapH(s.cfg.Webhook))
	}

	api := s.engine.Group("/api", s.authenticate)
	api.GET("/routes", s.handleRoutes)
	api.POST("/routes/reload", s.handleReload)
	api.GET("/summary", s.handleSummary)
	api.GET("/senders", s.handleSenders)
	api.DELETE("/forwarded", s.handleClearForwarded)
	api.DELETE("/senders", s.handleClearSenders)
}

// authenticate resolves the caller's admin status from the bearer token.
// Missing credentials are rejected; wrong credentials reach the service
// as a non-admin caller.
func (s *Server) authenticate(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	isAdmin := s.cfg.Token != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Token)) == 1
	c.Set(ctxIsAdmin, isAdmin)
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"routes": s.cfg.Service.Routes().Len(),
	})
}

func (s *Server) handleRoutes(c *gin.Context) {
	if !c.GetBool(ctxIsAdmin) {
		s.fail(c, ErrNotAdmin)
		return
	}
	t := s.cfg.Service.Routes()
	c.JSON(http.StatusOK, gin.H{"routes": t.String(), "sources": t.Len()})
}

type reloadRequest struct {
	Routes string `json:"routes"`
}

func (s *Server) handleReload(c *gin.Context) {
	var req reloadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
			return
		}
	}
	t, err := s.cfg.Service.ReloadRoutes(c.Request.Context(), c.GetBool(ctxIsAdmin), req.Routes)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routes": t.String(), "sources": t.Len()})
}

func (s *Server) handleSummary(c *gin.Context) {
	days := 7
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = n
	}
	sum, err := s.cfg.Service.Summary(c.Request.Context(), c.GetBool(ctxIsAdmin), time.Duration(days)*24*time.Hour)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"from":   sum.From,
		"to":     sum.To,
		"counts": sum.Counts,
		"total":  sum.Total(),
	})
}

func (s *Server) handleSenders(c *gin.Context) {
	records, err := s.cfg.Service.ListSenders(c.Request.Context(), c.GetBool(ctxIsAdmin))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"senders": records})
}

func (s *Server) handleClearForwarded(c *gin.Context) {
	if err := s.cfg.Service.ClearForwardedLog(c.Request.Context(), c.GetBool(ctxIsAdmin)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearSenders(c *gin.Context) {
	if err := s.cfg.Service.ClearSenderActivity(c.Request.Context(), c.GetBool(ctxIsAdmin)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) fail(c *gin.Context, err error) {
	var cfgErr *route.ConfigError
	switch {
	case errors.Is(err, ErrNotAdmin):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.cfg.Logger.Error("admin request failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	s.cfg.Logger.Info("admin server started", "addr", addr, "webhook", s.cfg.Webhook != nil)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

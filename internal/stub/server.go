package stub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/groundplan/client/internal/logging"
)

// Config tunes the stub server.
type Config struct {
	Addr string

	// RateLimit caps requests per second per client IP; zero disables
	// limiting.
	RateLimit int
	Burst     int

	// Gatherer backs the /metrics endpoint. When the stub runs inside
	// the client process this exposes the client's own metrics.
	Gatherer prometheus.Gatherer
}

// Server is the in-memory stand-in for the reasoning service.
type Server struct {
	cfg    Config
	state  *state
	log    *logging.Logger
	router *gin.Engine
	http   *http.Server
}

// NewServer builds the stub with its routes registered.
func NewServer(cfg Config, log *logging.Logger) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Accept", "Origin"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		cfg:    cfg,
		state:  newState(),
		log:    log.Named("stub"),
		router: router,
	}

	if cfg.RateLimit > 0 {
		router.Use(perIPRateLimit(cfg.RateLimit, cfg.Burst))
	}

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		authGroup.POST("/register", s.handleRegister)
		authGroup.POST("/login", s.handleLogin)
		authGroup.POST("/refresh", s.handleRefresh)

		sessions := v1.Group("/session", s.requireAuth)
		sessions.POST("", s.handleCreateSession)
		sessions.GET("", s.handleListSessions)
		sessions.GET("/:id", s.handleGetSession)
		sessions.DELETE("/:id", s.handleDeleteSession)
		sessions.PUT("/:id/context", s.handleUpdateContext)
		sessions.GET("/:id/context", s.handleGetContext)
		sessions.GET("/:id/messages", s.handleMessages)
	}

	// Stream auth rides on the token query parameter, not the header.
	router.GET("/ws/chat/:id", s.handleStream)

	return s
}

// Handler exposes the router for httptest-based tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.http = &http.Server{Addr: s.cfg.Addr, Handler: s.router}
	s.log.Info("stub service listening", zap.String("addr", s.cfg.Addr))

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "groundplan-stub"})
}

// perIPRateLimit applies a token-bucket limiter per client address.
func perIPRateLimit(rps, burst int) gin.HandlerFunc {
	if burst <= 0 {
		burst = rps * 2
	}

	var (
		mu      sync.Mutex
		clients = make(map[string]*rate.Limiter)
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		limiter, ok := clients[ip]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(rps), burst)
			clients[ip] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

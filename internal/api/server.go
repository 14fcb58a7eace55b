package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/energizer-project/mcwatch/internal/config"
	"github.com/energizer-project/mcwatch/internal/db"
	"github.com/energizer-project/mcwatch/internal/server"
	"github.com/energizer-project/mcwatch/internal/util"
)

// Version is reported by the public endpoints.
var Version = "dev"

// Server is the REST API server for mcwatch.
type Server struct {
	cfg     *config.Config
	manager *server.Manager
	journal *db.Journal // nil when the journal is disabled
	logger  zerolog.Logger

	startedAt  time.Time
	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, manager *server.Manager, journal *db.Journal) *Server {
	if strings.EqualFold(cfg.Logging.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		manager:   manager,
		journal:   journal,
		logger:    util.ComponentLogger("api"),
		startedAt: time.Now(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured port and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.API.Port)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	useTLS := s.cfg.API.TLSCertFile != "" && s.cfg.API.TLSKeyFile != ""
	if useTLS {
		if _, err := util.EnsureSelfSignedCert(s.cfg.API.TLSCertFile, s.cfg.API.TLSKeyFile); err != nil {
			return fmt.Errorf("failed to prepare TLS certificate: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	s.logger.Info().Str("addr", addr).Bool("tls", useTLS).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	if useTLS {
		err = s.httpServer.ServeTLS(ln, s.cfg.API.TLSCertFile, s.cfg.API.TLSKeyFile)
	} else {
		err = s.httpServer.Serve(ln)
	}

	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.API.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	router.Use(NewRateLimiter(s.cfg.API.RateLimitRPS).Middleware())

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/info", s.handleInfo)
	}

	api := router.Group("/api")
	{
		api.GET("/servers", s.handleListServers)
		api.POST("/servers", s.handleCreateServer)
		api.GET("/servers/:label", s.handleGetServer)
		api.DELETE("/servers/:label", s.handleDeleteServer)
		api.GET("/servers/:label/history", s.handleGetHistory)
		api.GET("/servers/:label/icon", s.handleGetIcon)
		api.POST("/ping_all", s.handlePingAll)
		api.GET("/events", s.handleGetEvents)
		api.GET("/events/stream", s.handleEventStream)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Package http exposes the pipeline as a JSON API.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/usecases"
)

// Uploads turns uploaded bytes into documents.
type Uploads interface {
	LoadBytes(ctx context.Context, name string, data []byte) (*entities.Document, error)
	SupportedExtensions() []string
	MaxFileSize() int64
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps are the use cases the API serves.
type Deps struct {
	Ingest    *usecases.IngestUseCase
	Retriever *usecases.Retriever
	Chat      *usecases.ChatUseCase
	Sessions  *usecases.SessionManager
	Uploads   Uploads
	Sources   ports.DocumentLoader
	Metrics   http.Handler
	Checks    map[string]HealthCheck
}

// Server is the HTTP server for the knowledge vault API.
type Server struct {
	deps   Deps
	addr   string
	logger *zap.Logger
	engine *gin.Engine
}

// NewServer creates a new HTTP server. mode is a gin mode (debug, release, test).
func NewServer(deps Deps, addr, mode string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode != "" {
		gin.SetMode(mode)
	}

	s := &Server{deps: deps, addr: addr, logger: logger}
	s.engine = s.routes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.loggingMiddleware(), corsMiddleware())

	api := r.Group("/api")
	{
		api.POST("/documents", s.handleUpload)
		api.POST("/documents/url", s.handleIngestURL)
		api.DELETE("/documents/:id", s.handleDeleteDocument)
		api.DELETE("/index", s.handleClearIndex)

		api.POST("/search", s.handleSearch)

		api.POST("/sessions/:id/chat", s.handleChat)
		api.GET("/sessions/:id/history", s.handleHistory)
		api.GET("/sessions/:id/history.csv", s.handleHistoryCSV)
		api.DELETE("/sessions/:id/memory", s.handleClearMemory)
		api.DELETE("/sessions/:id", s.handleCloseSession)

		api.GET("/stats", s.handleStats)
		api.GET("/health", s.handleHealth)
	}
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}
	return r
}

// Start runs the HTTP server until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      300 * time.Second, // generation can be slow
	}

	s.logger.Info("server starting", zap.String("addr", s.addr))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("shutdown", zap.Error(err))
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Package api serves the operational HTTP endpoints next to the bot.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Hydra52Legit/TestTask---product-bot-in-Telegram/internal/models"
)

// Backend is the part of the service layer the ops endpoints read.
type Backend interface {
	Ping(ctx context.Context) error
	Statistics(ctx context.Context) ([]models.UserStats, error)
}

type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type Server struct {
	backend   Backend
	authToken string
	logger    Logger
}

func NewServer(backend Backend, authToken string, logger Logger) *Server {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Server{
		backend:   backend,
		authToken: authToken,
		logger:    logger,
	}
}

func (s *Server) Routes() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.Health)

	v1 := router.Group("/v1", s.authMiddleware)
	v1.GET("/stats", s.Stats)
	return router
}

func (s *Server) Health(c *gin.Context) {
	if err := s.backend.Ping(c.Request.Context()); err != nil {
		s.logger.Printf("⚠️ health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Stats(c *gin.Context) {
	stats, err := s.backend.Statistics(c.Request.Context())
	if err != nil {
		s.logger.Printf("❌ stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if stats == nil {
		stats = []models.UserStats{}
	}
	c.JSON(http.StatusOK, gin.H{"users": stats})
}

func (s *Server) authMiddleware(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if s.authToken == "" || !secureCompare(token, s.authToken) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func extractBearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

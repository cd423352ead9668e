// Package api exposes stylist sessions over HTTP and websockets.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xaenox/stylist-bot/internal/settings"
	"github.com/xaenox/stylist-bot/internal/stylist"
)

type Handler struct {
	sessions *stylist.Registry
	selector *settings.Selector
	logger   *zap.Logger
}

func NewHandler(sessions *stylist.Registry, selector *settings.Selector, logger *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		selector: selector,
		logger:   logger,
	}
}

// SetupRouter registers every route on a new engine
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	api := r.Group("/api")
	{
		modelsGroup := api.Group("/models")
		{
			modelsGroup.GET("", h.ListModels)
			modelsGroup.GET("/selected", h.GetSelectedModel)
			modelsGroup.PUT("/selected", h.SelectModel)
		}

		sessionsGroup := api.Group("/sessions")
		{
			sessionsGroup.POST("", h.CreateSession)
			sessionsGroup.DELETE("/:id", h.DeleteSession)
			sessionsGroup.POST("/:id/messages", h.SendMessage)
			sessionsGroup.GET("/:id/history", h.GetHistory)
			sessionsGroup.GET("/:id/ws", h.StreamSession)
		}
	}

	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

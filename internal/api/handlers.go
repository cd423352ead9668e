package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xaenox/stylist-bot/internal/apperr"
	"github.com/xaenox/stylist-bot/internal/models"
	"github.com/xaenox/stylist-bot/internal/stylist"
)

const defaultHistoryLimit = 20

type selectModelRequest struct {
	ID string `json:"id" binding:"required"`
}

// MessageRequest is the body of a chat turn, over HTTP or a websocket frame
type MessageRequest struct {
	Text       string                `json:"text"`
	Image      string                `json:"image,omitempty"`
	ImageRef   string                `json:"image_ref,omitempty"`
	Metadata   *models.ImageMetadata `json:"metadata,omitempty"`
	ForceModel bool                  `json:"force_model,omitempty"`
}

func (m MessageRequest) toRequest() stylist.Request {
	return stylist.Request{
		Text:       m.Text,
		Image:      m.Image,
		ImageRef:   m.ImageRef,
		Metadata:   m.Metadata,
		ForceModel: m.ForceModel,
	}
}

type messageResponse struct {
	Reply  *stylist.Reply       `json:"reply"`
	Tokens []models.StreamToken `json:"tokens"`
}

func (h *Handler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": h.selector.Catalog()})
}

func (h *Handler) GetSelectedModel(c *gin.Context) {
	c.JSON(http.StatusOK, h.selector.Current(c.Request.Context()))
}

func (h *Handler) SelectModel(c *gin.Context) {
	var req selectModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model id is required"})
		return
	}

	m, err := h.selector.Select(c.Request.Context(), req.ID)
	if err != nil {
		if _, known := models.FindModel(req.ID); !known {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to save selected model", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save selection"})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) CreateSession(c *gin.Context) {
	s := h.sessions.Create()
	c.JSON(http.StatusCreated, gin.H{"id": s.ID()})
}

func (h *Handler) DeleteSession(c *gin.Context) {
	found, err := h.sessions.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to delete session",
			zap.Error(err),
			zap.String("session_id", c.Param("id")))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// lookup resolves the path session and writes the error response when it
// cannot be used
func (h *Handler) lookup(c *gin.Context) (*stylist.Session, bool) {
	session, found, err := h.sessions.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to look up session",
			zap.Error(err),
			zap.String("session_id", c.Param("id")))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return nil, false
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return session, true
}

// SendMessage runs one turn and returns the reply with every emitted token
func (h *Handler) SendMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	ctx := c.Request.Context()
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	var tokens []models.StreamToken
	reply, err := session.Respond(ctx, req.toRequest(), func(tok models.StreamToken) error {
		tokens = append(tokens, tok)
		return nil
	})
	if err != nil {
		h.logger.Error("Failed to respond",
			zap.Error(err),
			zap.String("session_id", session.ID()))
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, messageResponse{Reply: reply, Tokens: tokens})
}

func (h *Handler) GetHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	session, ok := h.lookup(c)
	if !ok {
		return
	}
	exchanges, err := session.History(ctx, limit)
	if err != nil {
		h.logger.Error("Failed to get history",
			zap.Error(err),
			zap.String("session_id", session.ID()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	if exchanges == nil {
		exchanges = []*models.Exchange{}
	}
	c.JSON(http.StatusOK, gin.H{"exchanges": exchanges})
}

// errorStatus maps a failed turn to an HTTP status and a client-safe message
func errorStatus(err error) (int, string) {
	var (
		timeoutErr *apperr.TimeoutError
		emptyErr   *apperr.EmptyResponseError
		apiErr     *apperr.APIError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout, timeoutErr.Error()
	case errors.As(err, &emptyErr):
		return http.StatusBadGateway, emptyErr.Error()
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, apiErr.Error()
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

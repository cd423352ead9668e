package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xaenox/stylist-bot/internal/models"
)

const (
	writeWait  = 10 * time.Second
	maxMessage = 12 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// doneFrame is written after the last token of a turn
type doneFrame struct {
	Phase string `json:"phase"`
}

type errorFrame struct {
	Phase string `json:"phase"`
	Error string `json:"error"`
}

// StreamSession upgrades to a websocket. Every text frame is one turn; its
// tokens are written back as they are emitted. Closing the socket cancels
// the turn in flight. Unknown sessions are refused before the upgrade.
func (h *Handler) StreamSession(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessage)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := h.logger.With(zap.String("session_id", session.ID()))

	// one reader goroutine; all writes happen on this goroutine
	incoming := make(chan MessageRequest)
	go func() {
		defer close(incoming)
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn("Websocket read failed", zap.Error(err))
				}
				return
			}
			var req MessageRequest
			if err := json.Unmarshal(data, &req); err != nil || req.Text == "" {
				req = MessageRequest{}
			}
			select {
			case incoming <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	write := func(v interface{}) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	for req := range incoming {
		if req.Text == "" {
			if err := write(errorFrame{Phase: "error", Error: "text is required"}); err != nil {
				return
			}
			continue
		}

		_, err := session.Respond(ctx, req.toRequest(), func(tok models.StreamToken) error {
			return write(tok)
		})
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Websocket closed during stream")
				return
			}
			logger.Error("Failed to respond", zap.Error(err))
			_, msg := errorStatus(err)
			if err := write(errorFrame{Phase: "error", Error: msg}); err != nil {
				return
			}
			continue
		}

		if err := write(doneFrame{Phase: "done"}); err != nil {
			return
		}
	}
}

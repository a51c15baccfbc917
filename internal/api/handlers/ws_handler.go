package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/everbloom-ai/everbloom/internal/services"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

// WSHandler streams companion replies over a websocket. Each connection is
// one implicit session; the client sends chat messages and receives reply
// chunks as they come off the model.
type WSHandler struct {
	chat     services.ChatService
	sessions services.SessionService
	upgrader websocket.Upgrader
}

func NewWSHandler(chat services.ChatService, sessions services.SessionService) *WSHandler {
	return &WSHandler{
		chat:     chat,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type wsClientMsg struct {
	Type    string `json:"type"` // chat|end_session
	Content string `json:"content"`
}

type wsServerMsg struct {
	Type    string     `json:"type"` // chunk|done|error
	Content string     `json:"content,omitempty"`
	Code    utils.Code `json:"code,omitempty"`
	Message string     `json:"message,omitempty"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteJSON(v)
}

func (h *WSHandler) ChatWS(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx := c.Request.Context()

	sess, err := h.sessions.Start(ctx, userID, "ws")
	if err != nil {
		_ = wc.writeJSON(wsServerMsg{Type: "error", Code: utils.CodeInternal, Message: "failed to start session"})
		return
	}
	defer func() { _, _ = h.sessions.End(ctx, sess.SessionID) }()

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, rerr := conn.ReadMessage()
		if rerr != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msg wsClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = wc.writeJSON(wsServerMsg{Type: "error", Code: utils.CodeInvalidArgument, Message: "invalid json"})
			continue
		}

		switch msg.Type {
		case "chat":
			if msg.Content == "" {
				_ = wc.writeJSON(wsServerMsg{Type: "error", Code: utils.CodeInvalidArgument, Message: "content is required"})
				continue
			}

			chunks, errs := h.chat.SendStream(ctx, userID, msg.Content)
			failed := false
			for chunk := range chunks {
				if werr := wc.writeJSON(wsServerMsg{Type: "chunk", Content: chunk}); werr != nil {
					failed = true
					break
				}
			}
			if failed {
				return
			}
			if serr := <-errs; serr != nil {
				writeWSError(wc, serr)
				continue
			}
			_ = wc.writeJSON(wsServerMsg{Type: "done"})

		case "end_session":
			_ = wc.writeJSON(wsServerMsg{Type: "done", Message: "session ended"})
			return

		default:
			_ = wc.writeJSON(wsServerMsg{Type: "error", Code: utils.CodeInvalidArgument, Message: "unknown message type"})
		}
	}
}

func writeWSError(wc *wsConn, err error) {
	out := wsServerMsg{Type: "error", Code: utils.CodeInternal, Message: "internal error"}
	if ae, ok := err.(*utils.AppError); ok {
		out.Code = ae.Code
		out.Message = ae.Message
	}
	_ = wc.writeJSON(out)
}

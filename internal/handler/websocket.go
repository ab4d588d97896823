package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/apperr"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/auth"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/hub"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/middleware"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/model"
	"go.uber.org/zap"
)

const SessionUpdateType = "session-update"

// SessionFeed publishes every session change to the owner's open feeds.
type SessionFeed struct {
	Hub *hub.Hub
	Log *zap.Logger
}

func (f *SessionFeed) SessionChanged(sess model.Session) {
	if err := f.Hub.Publish(sess.OwnerID, hub.Update{Type: SessionUpdateType, Body: sessionView(sess)}); err != nil && f.Log != nil {
		f.Log.Warn("publish session update failed", zap.String("sessionId", sess.ID), zap.Error(err))
	}
}

// UpdatesHandler serves the owner update feed. Browsers cannot set headers
// on a websocket handshake, so the token and the API key may come as query
// parameters.
type UpdatesHandler struct {
	Hub         *hub.Hub
	TokenConfig auth.TokenConfig
	APIKey      string
}

type clientMessage struct {
	Type string `json:"type"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsWriter serializes writes; gorilla allows one concurrent writer.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.TextMessage, message)
}

func (w *wsWriter) ping(deadline time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (w *wsWriter) Close() error {
	return w.conn.Close()
}

func (h *UpdatesHandler) authorized(c *gin.Context) (*auth.Claims, bool) {
	if h.APIKey != "" {
		key := c.GetHeader(middleware.APIKeyHeader)
		if key == "" {
			key = c.Query("apiKey")
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.APIKey)) != 1 {
			return nil, false
		}
	}
	tokenString := c.Query("token")
	if tokenString == "" {
		return nil, false
	}
	claims, err := auth.VerifyToken(tokenString, h.TokenConfig)
	if err != nil {
		return nil, false
	}
	return claims, true
}

func (h *UpdatesHandler) Serve(c *gin.Context) {
	claims, ok := h.authorized(c)
	if !ok {
		writeError(c, apperr.New(apperr.KindUnauthorized, "Invalid authentication token"))
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	writer := &wsWriter{conn: ws}
	conn := &hub.Connection{OwnerID: claims.UserID, Writer: writer}
	h.Hub.Register(conn)
	defer func() {
		h.Hub.Unregister(conn)
		_ = ws.Close()
	}()

	ws.SetReadLimit(64 * 1024)
	const pongWait = 60 * time.Second
	const writeWait = 10 * time.Second
	pingPeriod := (pongWait * 9) / 10

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() {
		closeOnce.Do(func() {
			close(done)
		})
	}
	defer closeDone()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := writer.ping(time.Now().Add(writeWait)); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			out, _ := json.Marshal(hub.Update{Type: "pong"})
			_ = writer.Write(out)
		}
	}
}

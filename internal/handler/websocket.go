package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"syncplane/internal/auth"
	"syncplane/internal/hub"
	"syncplane/internal/machines"
	"syncplane/internal/sessions"
)

// UpdatesHandler upgrades authenticated clients to a websocket subscription.
// A connection without a machineId query parameter is user-scoped and
// receives every event addressed to the account; with machineId it receives
// only events scoped to that machine. Inbound messages carry liveness pings.
type UpdatesHandler struct {
	Hub         *hub.Hub
	Sessions    *sessions.Service
	Machines    *machines.Service
	TokenConfig auth.TokenConfig
}

type clientMessage struct {
	Type      string `json:"type"`
	SID       string `json:"sid,omitempty"`
	MachineID string `json:"machineId,omitempty"`
	Time      int64  `json:"time,omitempty"`
}

type serverMessage struct {
	Type string `json:"type"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.TextMessage, message)
}

func (w *wsWriter) Close() error {
	return w.conn.Close()
}

func (h *UpdatesHandler) Serve(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}
	claims, err := auth.VerifyToken(tokenString, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn := &hub.Connection{
		AccountID: claims.AccountID(),
		MachineID: c.Query("machineId"),
		Writer:    &wsWriter{conn: ws},
	}
	h.Hub.Register(conn)
	defer func() {
		h.Hub.Unregister(conn)
		_ = ws.Close()
	}()

	ws.SetReadLimit(1024 * 1024)
	const pongWait = 60 * time.Second
	const writeWait = 10 * time.Second
	pingPeriod := (pongWait * 9) / 10

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
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
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
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
		h.handleClientMessage(c, conn, msg)
	}
}

func (h *UpdatesHandler) handleClientMessage(c *gin.Context, conn *hub.Connection, msg clientMessage) {
	switch msg.Type {
	case "ping":
		out, _ := json.Marshal(serverMessage{Type: "pong"})
		_ = conn.Writer.Write(out)

	case "session-alive":
		if msg.SID == "" {
			return
		}
		activeAt := msg.Time
		if activeAt == 0 {
			activeAt = time.Now().UnixMilli()
		}
		_ = h.Sessions.TouchActivity(c.Request.Context(), conn.AccountID, msg.SID, activeAt)

	case "machine-alive":
		if msg.MachineID == "" {
			return
		}
		activeAt := msg.Time
		if activeAt == 0 {
			activeAt = time.Now().UnixMilli()
		}
		_ = h.Machines.TouchActivity(c.Request.Context(), conn.AccountID, msg.MachineID, activeAt)
	}
}

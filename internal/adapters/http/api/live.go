package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/flaggy/internal/domain/model"
	"github.com/okian/flaggy/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// LiveHandler streams leaderboard snapshots over a websocket.
type LiveHandler struct {
	deps     LeaderboardDependencies
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// NewLiveHandler creates a new live leaderboard handler.
func NewLiveHandler(deps LeaderboardDependencies, log logger.Logger) *LiveHandler {
	return &LiveHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log,
	}
}

type liveMessage struct {
	Type    string  `json:"type"`
	Payload []Entry `json:"payload"`
}

// HandleLive handles GET /leaderboard/live. The view is selected with the
// same query parameters as GET /leaderboard; the current snapshot is sent on
// connect and again after every change.
func (h *LiveHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	const op = "api.live_leaderboard"
	req, err := leaderboardRequest(r)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	updates, unsubscribe, err := h.deps.Subscribe(ctx, req)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(ctx, "websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, updates)
	}()

	h.readLoop(conn)
	cancel()
	unsubscribe()
	<-writerDone
}

// readLoop discards client frames until the peer goes away.
func (h *LiveHandler) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// writeLoop is the only writer on conn.
func (h *LiveHandler) writeLoop(ctx context.Context, conn *websocket.Conn, updates <-chan []model.Ranked) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case snap, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				_ = conn.Close()
				return
			}
			if snap == nil {
				snap = []model.Ranked{}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(liveMessage{Type: "leaderboard", Payload: snap}); err != nil {
				h.logger.Debug(ctx, "live write failed", logger.Error(err))
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

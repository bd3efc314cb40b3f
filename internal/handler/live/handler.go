// Package live pushes the timeline to clients whenever the store changes,
// over WebSocket or Server-Sent Events.
package live

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/chatsync/internal/metrics"
	chatservice "github.com/zhouzirui/chatsync/internal/service/chat"
	"github.com/zhouzirui/chatsync/internal/service/timeline"
	"github.com/zhouzirui/chatsync/pkg/utils"
)

const (
	writeTimeout  = 10 * time.Second
	readTimeout   = 60 * time.Second
	pingInterval  = 54 * time.Second
	sseHeartbeat  = 15 * time.Second
	timelineEvent = "timeline"
)

// Frame is what each push carries.
type Frame struct {
	Type      string        `json:"type"`
	Timeline  timeline.View `json:"timeline"`
	Timestamp int64         `json:"timestamp"`
}

// Config holds the handler's collaborators.
type Config struct {
	Store  *chatservice.Store
	SelfID string
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Handler 实时推送处理器
type Handler struct {
	store       *chatservice.Store
	selfID      string
	logger      *slog.Logger
	metrics     *metrics.Metrics
	upgrader    websocket.Upgrader
	connections *ConnectionManager
}

// New 创建实时推送处理器
func New(config Config) *Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:   config.Store,
		selfID:  config.SelfID,
		logger:  logger,
		metrics: config.Metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		connections: NewConnectionManager(),
	}
}

// RegisterRoutes 注册实时推送路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
	r.Get("/stream", h.handleStream)
}

// Close 断开所有WebSocket连接
func (h *Handler) Close() {
	h.connections.CloseAll()
}

func (h *Handler) frame() Frame {
	return Frame{
		Type:      timelineEvent,
		Timeline:  timeline.Build(h.store.Snapshot(), h.selfID),
		Timestamp: time.Now().UnixMilli(),
	}
}

// handleWebSocket 建立WebSocket连接，连接后立即推送一次，之后每次数据变化推送
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	h.connections.Add(id, conn)
	h.metrics.LiveSubscriberAdded()
	h.logger.Info("websocket connected", "conn", id, "open", h.connections.Count())
	defer func() {
		h.connections.Remove(id)
		h.metrics.LiveSubscriberRemoved()
		h.logger.Info("websocket disconnected", "conn", id, "open", h.connections.Count())
	}()

	updates, unsubscribe := h.store.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.readLoop(conn, cancel)

	if err := h.writeFrame(conn); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			if err := h.writeFrame(conn); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop 读取并丢弃客户端消息，用于处理pong和检测断开
func (h *Handler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}

func (h *Handler) writeFrame(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(h.frame()); err != nil {
		h.logger.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}

// handleStream 以Server-Sent Events推送时间线
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, unsubscribe := h.store.Subscribe()
	defer unsubscribe()

	h.metrics.LiveSubscriberAdded()
	defer h.metrics.LiveSubscriberRemoved()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	h.logger.Info("sse stream opened", "remote", r.RemoteAddr)
	defer h.logger.Info("sse stream closed", "remote", r.RemoteAddr)

	if err := utils.SendSSEEvent(w, flusher, timelineEvent, h.frame()); err != nil {
		return
	}

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, timelineEvent, h.frame()); err != nil {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}

package timeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chatsync/internal/model/chat"
	chatService "github.com/zhouzirui/chatsync/internal/service/chat"
	"github.com/zhouzirui/chatsync/internal/service/send"
	"github.com/zhouzirui/chatsync/internal/service/syncer"
	timelineService "github.com/zhouzirui/chatsync/internal/service/timeline"
	"github.com/zhouzirui/chatsync/pkg/utils"
)

// Syncer 是处理器依赖的同步引擎能力
type Syncer interface {
	Status() syncer.Status
	Reload(ctx context.Context) error
}

// Handler 本地时间线接口的HTTP处理器
type Handler struct {
	store  *chatService.Store
	syncer Syncer
	sender *send.Sender
	selfID string
	logger *slog.Logger
}

// New 创建时间线处理器
func New(store *chatService.Store, syncer Syncer, sender *send.Sender, selfID string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  store,
		syncer: syncer,
		sender: sender,
		selfID: selfID,
		logger: logger,
	}
}

// RegisterRoutes 注册时间线相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.handleState)
	r.Post("/reload", h.handleReload)

	r.Get("/messages", h.handleListMessages)
	r.Post("/messages", h.handleSendMessage)

	r.Get("/participants", h.handleListParticipants)
	r.Get("/participants/{id}", h.handleGetParticipant)

	r.Get("/draft", h.handleGetDraft)
	r.Put("/draft", h.handlePutDraft)
	r.Post("/draft/submit", h.handleSubmitDraft)
}

type stateResponse struct {
	State        string     `json:"state"`
	Error        string     `json:"error,omitempty"`
	Polling      bool       `json:"polling"`
	Marker       string     `json:"marker,omitempty"`
	LastSync     *time.Time `json:"lastSync,omitempty"`
	Version      uint64     `json:"version"`
	Messages     int        `json:"messages"`
	Participants int        `json:"participants"`
}

func (h *Handler) state() stateResponse {
	status := h.syncer.Status()
	messages, participants := h.store.Counts()

	resp := stateResponse{
		State:        status.State.String(),
		Polling:      status.Polling,
		Marker:       h.store.Marker().String(),
		Version:      h.store.Version(),
		Messages:     messages,
		Participants: participants,
	}
	if status.LoadErr != nil {
		resp.Error = status.LoadErr.Error()
	}
	if lastSync := h.store.LastSync(); !lastSync.IsZero() {
		resp.LastSync = &lastSync
	}
	return resp
}

// handleState 返回同步状态
func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.state())
}

// handleReload 重新全量加载并开始轮询，首次加载失败后由此重试
func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.syncer.Reload(r.Context()); err != nil {
		h.logger.Warn("reload failed", "error", err)
		utils.RespondError(w, http.StatusBadGateway, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.state())
}

// handleListMessages 返回按时间倒序的时间线
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, timelineService.Build(h.store.Snapshot(), h.selfID))
}

// handleSendMessage 发送消息
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := h.sender.Submit(r.Context(), payload.Text)
	h.respondSend(w, message, err)
}

// handleGetDraft 返回草稿内容
func (h *Handler) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"text": h.sender.Draft().Text()})
}

// handlePutDraft 替换草稿内容
func (h *Handler) handlePutDraft(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.sender.Draft().Set(payload.Text)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"text": payload.Text})
}

// handleSubmitDraft 发送草稿
func (h *Handler) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	message, err := h.sender.SubmitDraft(r.Context())
	h.respondSend(w, message, err)
}

// respondSend 发送失败时草稿已恢复，响应中一并返回
func (h *Handler) respondSend(w http.ResponseWriter, message chat.Message, err error) {
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusCreated, message)
	case errors.Is(err, send.ErrEmptyText):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		utils.RespondJSON(w, http.StatusBadGateway, map[string]string{
			"error": err.Error(),
			"draft": h.sender.Draft().Text(),
		})
	}
}

// handleListParticipants 返回全部参与者
func (h *Handler) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.Participants())
}

// handleGetParticipant 返回单个参与者
func (h *Handler) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	participant, err := h.store.Participant(chi.URLParam(r, "id"))
	if errors.Is(err, chat.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "participant not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, participant)
}

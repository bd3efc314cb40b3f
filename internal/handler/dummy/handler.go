package dummy

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/chatsync/internal/model/chat"
	"github.com/zhouzirui/chatsync/internal/remote"
	dummyService "github.com/zhouzirui/chatsync/internal/service/dummy"
	"github.com/zhouzirui/chatsync/pkg/utils"
)

// Handler 模拟聊天服务的HTTP处理器，对外接口与真实服务一致
type Handler struct {
	svc *dummyService.Service
}

// New 创建模拟聊天服务处理器
func New(svc *dummyService.Service) *Handler {
	return &Handler{svc: svc}
}

// NewRouter 创建模拟聊天服务的完整路由，接口挂载在 /api 下
func NewRouter(svc *dummyService.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", New(svc).RegisterRoutes)
	return r
}

// RegisterRoutes 注册聊天服务接口及管理接口
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/info", h.handleInfo)
	r.Get("/messages/all", h.handleAllMessages)
	r.Get("/messages/updates/{since}", h.handleMessageUpdates)
	r.Post("/messages/new", h.handleNewMessage)
	r.Get("/participants/all", h.handleAllParticipants)
	r.Get("/participants/updates/{since}", h.handleParticipantUpdates)

	r.Route("/admin", func(admin chi.Router) {
		admin.Post("/reset", h.handleReset)
		admin.Post("/messages", h.handlePostAs)
		admin.Patch("/messages/{id}", h.handleEditMessage)
		admin.Post("/messages/{id}/reactions", h.handleAddReaction)
		admin.Patch("/participants/{id}", h.handleUpdateParticipant)
	})
}

// handleInfo 返回当前会话标识
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, remote.InfoToWire(h.svc.Session()))
}

// handleAllMessages 返回全部消息
func (h *Handler) handleAllMessages(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.messagesToWire(h.svc.Messages()))
}

// handleMessageUpdates 返回指定时间之后更新过的消息
func (h *Handler) handleMessageUpdates(w http.ResponseWriter, r *http.Request) {
	since, ok := parseSince(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.messagesToWire(h.svc.MessagesUpdatedSince(since)))
}

// handleNewMessage 以当前用户身份发送消息
func (h *Handler) handleNewMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := h.svc.NewMessage(payload.Text)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.messageToWire(message))
}

// handleAllParticipants 返回全部参与者
func (h *Handler) handleAllParticipants(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, participantsToWire(h.svc.Participants()))
}

// handleParticipantUpdates 返回指定时间之后更新过的参与者
func (h *Handler) handleParticipantUpdates(w http.ResponseWriter, r *http.Request) {
	since, ok := parseSince(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, participantsToWire(h.svc.ParticipantsUpdatedSince(since)))
}

// handleReset 开启新会话并重新生成数据
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, remote.InfoToWire(h.svc.Reset()))
}

// handlePostAs 以其他参与者身份发送消息
func (h *Handler) handlePostAs(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ParticipantID string `json:"participantId"`
		Text          string `json:"text"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := h.svc.PostAs(payload.ParticipantID, payload.Text)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, h.messageToWire(message))
}

// handleEditMessage 修改消息文本
func (h *Handler) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := h.svc.EditMessage(chi.URLParam(r, "id"), payload.Text)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.messageToWire(message))
}

// handleAddReaction 为消息添加表情回应
func (h *Handler) handleAddReaction(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ParticipantID string `json:"participantId"`
		Value         string `json:"value"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := h.svc.AddReaction(chi.URLParam(r, "id"), payload.ParticipantID, payload.Value)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.messageToWire(message))
}

// handleUpdateParticipant 修改参与者资料
func (h *Handler) handleUpdateParticipant(w http.ResponseWriter, r *http.Request) {
	var patch dummyService.ParticipantPatch
	if err := utils.DecodeJSON(w, r, &patch); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	participant, err := h.svc.UpdateParticipant(chi.URLParam(r, "id"), patch)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, remote.ParticipantToWire(participant))
}

// messageToWire 转换为接口格式，回复的原消息整条内嵌
func (h *Handler) messageToWire(message chat.Message) any {
	if message.ReplyToID == "" {
		return remote.MessageToWire(message, nil)
	}
	replyTo, err := h.svc.Message(message.ReplyToID)
	if err != nil {
		return remote.MessageToWire(message, nil)
	}
	return remote.MessageToWire(message, &replyTo)
}

func (h *Handler) messagesToWire(messages []chat.Message) []any {
	out := make([]any, 0, len(messages))
	for _, m := range messages {
		out = append(out, h.messageToWire(m))
	}
	return out
}

func participantsToWire(participants []chat.Participant) []any {
	out := make([]any, 0, len(participants))
	for _, p := range participants {
		out = append(out, remote.ParticipantToWire(p))
	}
	return out
}

// parseSince 解析路径中的毫秒时间戳
func parseSince(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "since")
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || since < 0 {
		utils.RespondError(w, http.StatusBadRequest, "since must be epoch milliseconds")
		return 0, false
	}
	return since, true
}

// respondServiceError 将服务层错误映射为HTTP状态码
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	}
}

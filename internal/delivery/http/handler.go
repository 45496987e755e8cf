package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"chatline/internal/entity"
	"chatline/internal/repository"
	"chatline/internal/transcription"
	"chatline/internal/usecase"
	"chatline/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type HttpHandler struct {
	messageUc usecase.MessageUsecase
	readUc    usecase.ReadUsecase
	memberUc  usecase.MemberUsecase
	pipeline  *transcription.Pipeline
}

func NewHttpHandler(messageUc usecase.MessageUsecase, readUc usecase.ReadUsecase, memberUc usecase.MemberUsecase, pipeline *transcription.Pipeline) *HttpHandler {
	return &HttpHandler{
		messageUc: messageUc,
		readUc:    readUc,
		memberUc:  memberUc,
		pipeline:  pipeline,
	}
}

type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrMessageNotFound),
		errors.Is(err, repository.ErrMemberNotFound),
		errors.Is(err, repository.ErrOptionNotFound):
		writeJSON(w, http.StatusNotFound, Response{Message: err.Error()})
	case errors.Is(err, usecase.ErrEmptyContent):
		writeJSON(w, http.StatusBadRequest, Response{Message: err.Error()})
	case errors.Is(err, usecase.ErrNotSender),
		errors.Is(err, repository.ErrOwnerCannotLeave):
		writeJSON(w, http.StatusForbidden, Response{Message: err.Error()})
	default:
		logger.Log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, Response{Message: "internal server error"})
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func pathInt64(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// Method Get /chat/{chatId}/messages
func (h *HttpHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", 0)

	result, err := h.messageUc.GetPage(r.Context(), chatId, CallerId(r), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: result})
}

// Method Get /chat/{chatId}/messages/around/{messageId}
func (h *HttpHandler) GetMessagesAround(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")
	anchorId, err := pathInt64(r, "messageId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid message id"})
		return
	}

	result, err := h.messageUc.GetAround(r.Context(), chatId, CallerId(r), anchorId, queryInt(r, "count", 0))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: result})
}

// Method Get /chat/{chatId}/messages/before/{messageId}
func (h *HttpHandler) GetMessagesBefore(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")
	beforeId, err := pathInt64(r, "messageId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid message id"})
		return
	}

	result, err := h.messageUc.GetBefore(r.Context(), chatId, CallerId(r), beforeId, queryInt(r, "count", 0))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: result})
}

// Method Get /chat/{chatId}/messages/after/{messageId}
func (h *HttpHandler) GetMessagesAfter(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")
	afterId, err := pathInt64(r, "messageId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid message id"})
		return
	}

	result, err := h.messageUc.GetAfter(r.Context(), chatId, CallerId(r), afterId, queryInt(r, "count", 0))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: result})
}

// Method Get /chat/{chatId}/messages/search
func (h *HttpHandler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")
	query := r.URL.Query().Get("q")

	result, err := h.messageUc.Search(r.Context(), chatId, CallerId(r), query, queryInt(r, "page", 1), queryInt(r, "pageSize", 0))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: result})
}

// Method Get /chat/{chatId}/messages/{messageId}
func (h *HttpHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")
	messageId, err := pathInt64(r, "messageId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid message id"})
		return
	}

	view, err := h.messageUc.Get(r.Context(), chatId, CallerId(r), messageId)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: view})
}

// Method Post /chat/{chatId}/messages
func (h *HttpHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")

	var req struct {
		Content         *string             `json:"content"`
		IsVoiceMessage  bool                `json:"isVoiceMessage"`
		ReplyToId       *int64              `json:"replyToId"`
		ForwardedFromId *int64              `json:"forwardedFromId"`
		Attachments     []entity.Attachment `json:"attachments"`
		Poll            *entity.Poll        `json:"poll"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	view, err := h.messageUc.Send(r.Context(), usecase.SendMessageInput{
		ChatId:          chatId,
		SenderId:        CallerId(r),
		Content:         req.Content,
		IsVoiceMessage:  req.IsVoiceMessage,
		ReplyToId:       req.ReplyToId,
		ForwardedFromId: req.ForwardedFromId,
		Attachments:     req.Attachments,
		Poll:            req.Poll,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{Message: "success", Data: view})
}

// Method Put /chat/{chatId}/messages/{messageId}
func (h *HttpHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")
	messageId, err := pathInt64(r, "messageId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid message id"})
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	view, err := h.messageUc.Edit(r.Context(), chatId, CallerId(r), messageId, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: view})
}

// Method Delete /chat/{chatId}/messages/{messageId}
func (h *HttpHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")
	messageId, err := pathInt64(r, "messageId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid message id"})
		return
	}

	if err := h.messageUc.Delete(r.Context(), chatId, CallerId(r), messageId); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success"})
}

// Method Post /chat/{chatId}/messages/{messageId}/poll/vote
func (h *HttpHandler) VotePoll(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")
	messageId, err := pathInt64(r, "messageId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid message id"})
		return
	}

	var req struct {
		OptionIndex int `json:"optionIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	view, err := h.messageUc.VotePoll(r.Context(), chatId, CallerId(r), messageId, req.OptionIndex)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: view})
}

// Method Delete /chat/{chatId}/messages/{messageId}/poll/vote
func (h *HttpHandler) RetractPollVote(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")
	messageId, err := pathInt64(r, "messageId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid message id"})
		return
	}

	view, err := h.messageUc.RetractPollVote(r.Context(), chatId, CallerId(r), messageId)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: view})
}

// Method Post /chat/{chatId}/read
func (h *HttpHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")

	var req struct {
		MessageId *int64 `json:"messageId"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
			return
		}
	}

	unread, err := h.readUc.MarkAsRead(r.Context(), CallerId(r), chatId, req.MessageId)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: entity.ChatUnread{ChatId: chatId, UnreadCount: unread}})
}

// Method Get /chat/{chatId}/unread
func (h *HttpHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")

	unread, err := h.readUc.GetUnreadCount(r.Context(), CallerId(r), chatId)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: entity.ChatUnread{ChatId: chatId, UnreadCount: unread}})
}

// Method Get /unread
func (h *HttpHandler) GetAllUnreadCounts(w http.ResponseWriter, r *http.Request) {
	summary, err := h.readUc.GetAllUnreadCounts(r.Context(), CallerId(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: summary})
}

// Method Post /messages/{messageId}/transcription/retry
func (h *HttpHandler) RetryTranscription(w http.ResponseWriter, r *http.Request) {
	messageId, err := pathInt64(r, "messageId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid message id"})
		return
	}

	if err := h.pipeline.Retry(r.Context(), messageId); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, Response{Message: "success"})
}

// Method Get /chat/{chatId}/members
func (h *HttpHandler) GetRoster(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")

	roster, err := h.memberUc.Roster(r.Context(), chatId)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: roster})
}

// Method Post /chat/{chatId}/members
func (h *HttpHandler) JoinChat(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")

	var req struct {
		Role string `json:"role"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
			return
		}
	}

	member, err := h.memberUc.Join(r.Context(), chatId, CallerId(r), req.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{Message: "success", Data: member})
}

// Method Delete /chat/{chatId}/members
func (h *HttpHandler) LeaveChat(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")

	if err := h.memberUc.Leave(r.Context(), chatId, CallerId(r)); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success"})
}

// Method Put /chat/{chatId}/notifications
func (h *HttpHandler) SetNotifications(w http.ResponseWriter, r *http.Request) {
	chatId := chi.URLParam(r, "chatId")

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	if err := h.memberUc.SetNotifications(r.Context(), chatId, CallerId(r), req.Enabled); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success"})
}

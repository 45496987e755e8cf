package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"chatline/infrastructure/ws"
	"chatline/internal/metrics"
	"chatline/internal/presence"
	"chatline/internal/usecase"
	"chatline/pkg/jwt"
	"chatline/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Inbound frames per connection: sustained rate and burst. Frames over
// the limit are dropped with an error frame, the connection stays up.
const (
	frameRate  = rate.Limit(10)
	frameBurst = 20
)

type WebsocketHandler struct {
	hub       ws.IHub
	tokens    *jwt.Manager
	presence  presence.Store
	messageUc usecase.MessageUsecase
	readUc    usecase.ReadUsecase
}

func NewWebsocketHandler(hub ws.IHub, tokens *jwt.Manager, presenceStore presence.Store, messageUc usecase.MessageUsecase, readUc usecase.ReadUsecase) *WebsocketHandler {
	return &WebsocketHandler{
		hub:       hub,
		tokens:    tokens,
		presence:  presenceStore,
		messageUc: messageUc,
		readUc:    readUc,
	}
}

func (h *WebsocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("websocket upgrade failed", "err", err)
		return
	}

	connId := uuid.NewString()
	client := ws.NewClient(claims.UserId, connId, h.hub, conn)

	h.presence.Connect(claims.UserId, connId)
	h.hub.RegisterClient(client)
	metrics.WebsocketConnections.Inc()

	logger.Log.Info("websocket connected", "user", claims.UserId, "conn", connId)

	limiter := rate.NewLimiter(frameRate, frameBurst)

	go client.WritePump()
	client.ReadPump(func(data []byte) {
		if !limiter.Allow() {
			h.sendError(client, "rate limit exceeded")
			return
		}
		h.handleFrame(r.Context(), client, data)
	})
}

// HandleClientDisconnect runs after the hub drops a client, including
// clients torn down by the hub itself. Wired via IHub.SetOnClientUnregister.
func (h *WebsocketHandler) HandleClientDisconnect(client *ws.UserClient) error {
	h.presence.Disconnect(client.UserId, client.ConnId)
	metrics.WebsocketConnections.Dec()
	logger.Log.Info("websocket disconnected", "user", client.UserId, "conn", client.ConnId)
	return nil
}

func (h *WebsocketHandler) handleFrame(ctx context.Context, client *ws.UserClient, data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.sendError(client, "malformed frame")
		return
	}

	switch frame.Type {
	case FrameSendMessage:
		var req SendMessageFrame
		if err := json.Unmarshal(data, &req); err != nil {
			h.sendError(client, "invalid message.send frame")
			return
		}
		_, err := h.messageUc.Send(ctx, usecase.SendMessageInput{
			ChatId:         req.ChatId,
			SenderId:       client.UserId,
			Content:        req.Content,
			IsVoiceMessage: req.IsVoiceMessage,
			ReplyToId:      req.ReplyToId,
		})
		if err != nil {
			logger.Log.Warn("message.send failed", "user", client.UserId, "err", err)
			h.sendError(client, err.Error())
		}

	case FrameReadChat:
		var req ReadChatFrame
		if err := json.Unmarshal(data, &req); err != nil {
			h.sendError(client, "invalid chat.read frame")
			return
		}
		if _, err := h.readUc.MarkAsRead(ctx, client.UserId, req.ChatId, req.MessageId); err != nil {
			logger.Log.Warn("chat.read failed", "user", client.UserId, "err", err)
			h.sendError(client, err.Error())
		}

	default:
		h.sendError(client, "unknown frame type")
	}
}

func (h *WebsocketHandler) sendError(client *ws.UserClient, message string) {
	payload, err := json.Marshal(ErrorFrame{Event: "error", Message: message})
	if err != nil {
		return
	}
	client.Send(payload)
}

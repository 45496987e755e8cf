package notify

import (
	"context"
	"encoding/json"

	"chatline/infrastructure/ws"
	"chatline/internal/repository"
)

// HubNotifier pushes events over the websocket hub. Chat-addressed
// pushes resolve the chat's membership and deliver to every member's
// live connections.
type HubNotifier struct {
	hub     ws.IHub
	members repository.MemberRepository
}

func NewHubNotifier(hub ws.IHub, members repository.MemberRepository) *HubNotifier {
	return &HubNotifier{
		hub:     hub,
		members: members,
	}
}

func (n *HubNotifier) PushToChat(ctx context.Context, chatId, event string, payload any) error {
	frame, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		return err
	}

	userIds, err := n.members.ListUserIds(ctx, chatId)
	if err != nil {
		return err
	}

	for _, userId := range userIds {
		n.hub.SendToUser(userId, frame)
	}

	return nil
}

func (n *HubNotifier) PushToUser(_ context.Context, userId, event string, payload any) error {
	frame, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		return err
	}

	n.hub.SendToUser(userId, frame)
	return nil
}

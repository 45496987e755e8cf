package notify

import "context"

// Notifier is the core's only way to reach connected clients. It knows
// nothing about transport or connection management; implementations fan
// events out to whatever channel the deployment uses.
type Notifier interface {
	PushToChat(ctx context.Context, chatId, event string, payload any) error
	PushToUser(ctx context.Context, userId, event string, payload any) error
}

// Envelope is the frame written to clients: the event name plus one of
// the wire DTOs as payload.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

package ws

import (
	"sync"

	"chatline/pkg/logger"
)

// Hub routes outbound frames to locally connected clients. Clients are
// grouped by user so one user's several connections all receive the same
// frames.
type Hub struct {
	clients            map[string]map[string]*UserClient // userId -> connId -> client
	broadcast          chan []byte
	Register           chan *UserClient
	Unregister         chan *UserClient
	mu                 sync.RWMutex
	OnClientUnregister func(client *UserClient) error
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[string]*UserClient),
		broadcast:  make(chan []byte, 256),
		Register:   make(chan *UserClient),
		Unregister: make(chan *UserClient),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.clients[client.UserId] == nil {
				h.clients[client.UserId] = make(map[string]*UserClient)
			}
			h.clients[client.UserId][client.ConnId] = client
			h.mu.Unlock()
			logger.Log.Debug("client connected", "user", client.UserId, "conn", client.ConnId)

		case client := <-h.Unregister:
			h.mu.Lock()
			if conns, ok := h.clients[client.UserId]; ok {
				if _, ok := conns[client.ConnId]; ok {
					delete(conns, client.ConnId)
					close(client.send)
					if len(conns) == 0 {
						delete(h.clients, client.UserId)
					}
					logger.Log.Debug("client disconnected", "user", client.UserId, "conn", client.ConnId)
				}
			}
			h.mu.Unlock()

			if h.OnClientUnregister != nil {
				if err := h.OnClientUnregister(client); err != nil {
					logger.Log.Warn("client unregister callback failed", "err", err)
				}
			}

		case message := <-h.broadcast:
			h.mu.RLock()
			for _, conns := range h.clients {
				for _, client := range conns {
					select {
					case client.send <- message:
					default:
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) SendToUser(userId string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients[userId] {
		select {
		case client.send <- message:
		default:
			logger.Log.Warn("dropping frame for slow connection", "user", userId, "conn", client.ConnId)
		}
	}
}

func (h *Hub) Broadcast(message []byte) {
	h.broadcast <- message
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

func (h *Hub) RegisterClient(client *UserClient) {
	h.Register <- client
}

func (h *Hub) UnregisterClient(client *UserClient) {
	h.Unregister <- client
}

func (h *Hub) SetOnClientUnregister(callback func(client *UserClient) error) {
	h.OnClientUnregister = callback
}

package ws

import (
	"context"
	"encoding/json"
	"sync"

	"chatline/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisHub extends the local hub with Redis pub/sub so frames reach
// users connected to other server instances.
type RedisHub struct {
	clients map[string]map[string]*UserClient
	mu      sync.RWMutex

	redisClient *redis.Client
	pubsub      *redis.PubSub
	serverID    string

	Register   chan *UserClient
	Unregister chan *UserClient
	broadcast  chan []byte

	OnClientUnregister func(client *UserClient) error
}

type redisFrame struct {
	FromServerID string `json:"fromServerId"`
	ToUserID     string `json:"toUserId"`
	Payload      []byte `json:"payload"`
}

func NewRedisHub(client *redis.Client, serverID string) *RedisHub {
	hub := &RedisHub{
		clients:     make(map[string]map[string]*UserClient),
		redisClient: client,
		serverID:    serverID,
		Register:    make(chan *UserClient),
		Unregister:  make(chan *UserClient),
		broadcast:   make(chan []byte, 256),
	}

	hub.pubsub = client.PSubscribe(context.Background(), "frames:*")

	return hub
}

func (h *RedisHub) Run() {
	go h.subscribeRedis()

	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.clients[client.UserId] == nil {
				h.clients[client.UserId] = make(map[string]*UserClient)
			}
			h.clients[client.UserId][client.ConnId] = client
			h.mu.Unlock()
			logger.Log.Debug("client connected", "server", h.serverID, "user", client.UserId)

		case client := <-h.Unregister:
			h.mu.Lock()
			if conns, ok := h.clients[client.UserId]; ok {
				if _, ok := conns[client.ConnId]; ok {
					delete(conns, client.ConnId)
					close(client.send)
					if len(conns) == 0 {
						delete(h.clients, client.UserId)
					}
				}
			}
			h.mu.Unlock()

			if h.OnClientUnregister != nil {
				if err := h.OnClientUnregister(client); err != nil {
					logger.Log.Warn("client unregister callback failed", "err", err)
				}
			}

		case message := <-h.broadcast:
			h.sendLocalAll(message)
		}
	}
}

func (h *RedisHub) subscribeRedis() {
	for msg := range h.pubsub.Channel() {
		var frame redisFrame
		if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
			logger.Log.Warn("bad frame from redis", "err", err)
			continue
		}

		// Frames we published come back on the pattern subscription.
		if frame.FromServerID == h.serverID {
			continue
		}

		h.sendLocal(frame.ToUserID, frame.Payload)
	}
}

// SendToUser delivers to local connections and publishes for any other
// instance that may hold connections for the same user.
func (h *RedisHub) SendToUser(userId string, message []byte) {
	h.sendLocal(userId, message)
	h.publish(userId, message)
}

func (h *RedisHub) sendLocal(userId string, message []byte) {
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

func (h *RedisHub) sendLocalAll(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conns := range h.clients {
		for _, client := range conns {
			select {
			case client.send <- message:
			default:
			}
		}
	}
}

func (h *RedisHub) publish(userId string, message []byte) {
	frame := redisFrame{
		FromServerID: h.serverID,
		ToUserID:     userId,
		Payload:      message,
	}

	data, err := json.Marshal(frame)
	if err != nil {
		logger.Log.Warn("marshal redis frame failed", "err", err)
		return
	}

	if err := h.redisClient.Publish(context.Background(), "frames:"+userId, data).Err(); err != nil {
		logger.Log.Warn("publish to redis failed", "user", userId, "err", err)
	}
}

func (h *RedisHub) Broadcast(message []byte) {
	h.broadcast <- message
}

func (h *RedisHub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

func (h *RedisHub) RegisterClient(client *UserClient) {
	h.Register <- client
}

func (h *RedisHub) UnregisterClient(client *UserClient) {
	h.Unregister <- client
}

func (h *RedisHub) SetOnClientUnregister(callback func(client *UserClient) error) {
	h.OnClientUnregister = callback
}

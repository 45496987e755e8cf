package ws

import (
	"time"

	"chatline/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// UserClient is one live websocket connection. A user may hold several
// of these at once (devices, tabs); ConnId tells them apart.
type UserClient struct {
	UserId string
	ConnId string

	hub  IHub
	conn *websocket.Conn
	send chan []byte
}

func NewClient(userId, connId string, hub IHub, conn *websocket.Conn) *UserClient {
	return &UserClient{
		UserId: userId,
		ConnId: connId,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
	}
}

// Send queues a frame for this connection without blocking. Frames for a
// connection whose buffer is full are dropped.
func (c *UserClient) Send(message []byte) {
	select {
	case c.send <- message:
	default:
		logger.Log.Warn("dropping frame for slow connection", "user", c.UserId, "conn", c.ConnId)
	}
}

// ReadPump reads frames until the connection dies, handing each payload
// to onMessage. It unregisters the client on exit.
func (c *UserClient) ReadPump(onMessage func(data []byte)) {
	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debug("websocket read error", "user", c.UserId, "err", err)
			}
			return
		}
		onMessage(data)
	}
}

func (c *UserClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

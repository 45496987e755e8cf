package websocket

// ErrorFrame is sent back on the same connection when an inbound frame
// was rejected.
type ErrorFrame struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

package websocket

// Frame is the envelope of every inbound websocket message. Type selects
// the payload shape below.
type Frame struct {
	Type string `json:"type"`
}

const (
	FrameSendMessage = "message.send"
	FrameReadChat    = "chat.read"
)

type SendMessageFrame struct {
	ChatId         string  `json:"chatId"`
	Content        *string `json:"content"`
	IsVoiceMessage bool    `json:"isVoiceMessage"`
	ReplyToId      *int64  `json:"replyToId"`
}

type ReadChatFrame struct {
	ChatId    string `json:"chatId"`
	MessageId *int64 `json:"messageId"`
}

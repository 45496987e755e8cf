package entity

import "time"

// Real-time event names pushed through the notifier. Each carries one of
// the DTO shapes below as its payload.
const (
	EventMessageCreated             = "message-created"
	EventMessageUpdated             = "message-updated"
	EventMessageDeleted             = "message-deleted"
	EventUnreadCountUpdated         = "unread-count-updated"
	EventTranscriptionStatusChanged = "transcription-status-changed"
	EventTranscriptionCompleted     = "transcription-completed"
)

// MessageView is a Message projected for one viewer. Ownership and poll
// vote visibility depend on who is looking.
type MessageView struct {
	Id                  int64                `json:"id"`
	ChatId              string               `json:"chatId"`
	SenderId            string               `json:"senderId"`
	Content             *string              `json:"content"`
	IsDeleted           bool                 `json:"isDeleted"`
	IsOwn               bool                 `json:"isOwn"`
	CreatedAt           time.Time            `json:"createdAt"`
	EditedAt            *time.Time           `json:"editedAt,omitempty"`
	IsVoiceMessage      bool                 `json:"isVoiceMessage"`
	TranscriptionStatus *TranscriptionStatus `json:"transcriptionStatus,omitempty"`
	ReplyToId           *int64               `json:"replyToId,omitempty"`
	ForwardedFromId     *int64               `json:"forwardedFromId,omitempty"`
	Attachments         []Attachment         `json:"attachments,omitempty"`
	Poll                *PollView            `json:"poll,omitempty"`
}

type PollView struct {
	Question    string           `json:"question"`
	IsAnonymous bool             `json:"isAnonymous"`
	Options     []PollOptionView `json:"options"`
}

type PollOptionView struct {
	Text      string   `json:"text"`
	VoteCount int      `json:"voteCount"`
	VoterIds  []string `json:"voterIds,omitempty"`
	Voted     bool     `json:"voted"`
}

// Field names below are part of the wire contract and are kept as-is.

type MessagePage struct {
	Messages         []MessageView `json:"Messages"`
	CurrentPage      int           `json:"CurrentPage"`
	TotalCount       int64         `json:"TotalCount"`
	HasMoreMessages  bool          `json:"HasMoreMessages"`
	HasNewerMessages bool          `json:"HasNewerMessages"`
}

type SearchResult struct {
	Message MessageView `json:"Message"`
	Excerpt string      `json:"Excerpt"`
}

type SearchPage struct {
	Results         []SearchResult `json:"Results"`
	CurrentPage     int            `json:"CurrentPage"`
	TotalCount      int64          `json:"TotalCount"`
	HasMoreMessages bool           `json:"HasMoreMessages"`
}

type ChatUnread struct {
	ChatId      string `json:"ChatId"`
	UnreadCount int64  `json:"UnreadCount"`
}

type UnreadSummary struct {
	Chats       []ChatUnread `json:"Chats"`
	TotalUnread int64        `json:"TotalUnread"`
}

type TranscriptionEvent struct {
	MessageId     int64               `json:"MessageId"`
	ChatId        string              `json:"ChatId"`
	Transcription *string             `json:"Transcription,omitempty"`
	Status        TranscriptionStatus `json:"Status"`
}

type TokenClaims struct {
	UserId   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

package entity

import "time"

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// ChatMember is one row per (chat, user). LastReadMessageId is the user's
// read cursor in the chat and is monotonically non-decreasing over the
// row's lifetime.
type ChatMember struct {
	ChatId               string     `bson:"chatId" json:"chatId"`
	UserId               string     `bson:"userId" json:"userId"`
	Role                 string     `bson:"role" json:"role"`
	JoinedAt             time.Time  `bson:"joinedAt" json:"joinedAt"`
	NotificationsEnabled bool       `bson:"notificationsEnabled" json:"notificationsEnabled"`
	LastReadMessageId    *int64     `bson:"lastReadMessageId,omitempty" json:"lastReadMessageId,omitempty"`
	LastReadAt           *time.Time `bson:"lastReadAt,omitempty" json:"lastReadAt,omitempty"`
}

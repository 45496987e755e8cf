package entity

import "time"

// TranscriptionStatus is the lifecycle of a voice message's recognition job.
// Terminal states are only left through an explicit retry.
type TranscriptionStatus string

const (
	TranscriptionPending    TranscriptionStatus = "pending"
	TranscriptionProcessing TranscriptionStatus = "processing"
	TranscriptionCompleted  TranscriptionStatus = "completed"
	TranscriptionFailed     TranscriptionStatus = "failed"
)

type Message struct {
	// Id is allocated from a store-wide counter and is strictly increasing,
	// so it doubles as the pagination cursor. Ids are never reused; a deleted
	// message keeps its slot as a tombstone.
	Id                  int64                `bson:"_id" json:"id"`
	ChatId              string               `bson:"chatId" json:"chatId"`
	SenderId            string               `bson:"senderId" json:"senderId"`
	Content             *string              `bson:"content" json:"content"`
	IsDeleted           bool                 `bson:"isDeleted" json:"isDeleted"`
	CreatedAt           time.Time            `bson:"createdAt" json:"createdAt"`
	EditedAt            *time.Time           `bson:"editedAt,omitempty" json:"editedAt,omitempty"`
	IsVoiceMessage      bool                 `bson:"isVoiceMessage" json:"isVoiceMessage"`
	TranscriptionStatus *TranscriptionStatus `bson:"transcriptionStatus,omitempty" json:"transcriptionStatus,omitempty"`
	ReplyToId           *int64               `bson:"replyToId,omitempty" json:"replyToId,omitempty"`
	ForwardedFromId     *int64               `bson:"forwardedFromId,omitempty" json:"forwardedFromId,omitempty"`
	Attachments         []Attachment         `bson:"attachments,omitempty" json:"attachments,omitempty"`
	Poll                *Poll                `bson:"poll,omitempty" json:"poll,omitempty"`
}

type Attachment struct {
	FileId   string `bson:"fileId" json:"fileId"`
	FileName string `bson:"fileName" json:"fileName"`
	FilePath string `bson:"filePath" json:"filePath"`
	MimeType string `bson:"mimeType" json:"mimeType"`
	IsAudio  bool   `bson:"isAudio" json:"isAudio"`
}

// AudioAttachment returns the message's first audio attachment, or nil.
func (m *Message) AudioAttachment() *Attachment {
	for i := range m.Attachments {
		if m.Attachments[i].IsAudio {
			return &m.Attachments[i]
		}
	}
	return nil
}

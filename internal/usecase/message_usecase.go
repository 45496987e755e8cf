package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatline/internal/entity"
	"chatline/internal/metrics"
	"chatline/internal/notify"
	"chatline/internal/repository"
	"chatline/pkg/logger"
)

var (
	ErrEmptyContent = errors.New("message content cannot be empty")
	ErrNotSender    = errors.New("only the sender can modify a message")
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
	minWindowSize   = 2
)

// TranscriptionProducer enqueues a voice message for background
// recognition. Enqueue never blocks the request path.
type TranscriptionProducer interface {
	Produce(ctx context.Context, messageId int64) error
}

type SendMessageInput struct {
	ChatId          string
	SenderId        string
	Content         *string
	IsVoiceMessage  bool
	ReplyToId       *int64
	ForwardedFromId *int64
	Attachments     []entity.Attachment
	Poll            *entity.Poll
}

type MessageUsecase interface {
	// Pagination. All operations read a chat's non-deleted range and
	// project per viewer; they have no write side effects.
	GetPage(ctx context.Context, chatId, viewerId string, page, pageSize int) (entity.MessagePage, error)
	GetAround(ctx context.Context, chatId, viewerId string, anchorId int64, count int) (entity.MessagePage, error)
	GetBefore(ctx context.Context, chatId, viewerId string, beforeId int64, count int) (entity.MessagePage, error)
	GetAfter(ctx context.Context, chatId, viewerId string, afterId int64, count int) (entity.MessagePage, error)
	Search(ctx context.Context, chatId, viewerId, query string, page, pageSize int) (entity.SearchPage, error)

	Get(ctx context.Context, chatId, viewerId string, messageId int64) (entity.MessageView, error)
	Send(ctx context.Context, input SendMessageInput) (entity.MessageView, error)
	Edit(ctx context.Context, chatId, userId string, messageId int64, content string) (entity.MessageView, error)
	Delete(ctx context.Context, chatId, userId string, messageId int64) error
	VotePoll(ctx context.Context, chatId, userId string, messageId int64, optionIndex int) (entity.MessageView, error)
	RetractPollVote(ctx context.Context, chatId, userId string, messageId int64) (entity.MessageView, error)
}

type messageUsecase struct {
	messageRepo repository.MessageRepository
	notifier    notify.Notifier
	producer    TranscriptionProducer
}

func NewMessageUsecase(messageRepo repository.MessageRepository, notifier notify.Notifier, producer TranscriptionProducer) MessageUsecase {
	return &messageUsecase{
		messageRepo: messageRepo,
		notifier:    notifier,
		producer:    producer,
	}
}

func clampPageSize(pageSize int) int {
	if pageSize <= 0 {
		return defaultPageSize
	}
	if pageSize > maxPageSize {
		return maxPageSize
	}
	return pageSize
}

func clampWindow(count int) int {
	if count < minWindowSize {
		return minWindowSize
	}
	if count > maxPageSize {
		return maxPageSize
	}
	return count
}

// GetPage is offset pagination for the very first load of a chat. The
// store is queried newest-first and the page reversed so callers always
// receive chronological order.
func (u *messageUsecase) GetPage(ctx context.Context, chatId, viewerId string, page, pageSize int) (entity.MessagePage, error) {
	if page < 1 {
		page = 1
	}
	pageSize = clampPageSize(pageSize)
	offset := (page - 1) * pageSize

	total, err := u.messageRepo.Count(ctx, chatId)
	if err != nil {
		return entity.MessagePage{}, err
	}

	rows, err := u.messageRepo.FindPage(ctx, chatId, pageSize, offset)
	if err != nil {
		return entity.MessagePage{}, err
	}

	if len(rows) == 0 {
		return entity.MessagePage{
			Messages:    []entity.MessageView{},
			CurrentPage: page,
			TotalCount:  total,
		}, nil
	}

	reverseMessages(rows)

	return entity.MessagePage{
		Messages:         shapeMessages(rows, viewerId),
		CurrentPage:      page,
		TotalCount:       total,
		HasMoreMessages:  total > int64(offset+pageSize),
		HasNewerMessages: page > 1,
	}, nil
}

// GetAround returns a window centered on anchorId. The anchor does not
// need to exist (it may have been deleted); correctness depends only on
// id ordering. The window is built from two bounded range scans merged
// in memory.
func (u *messageUsecase) GetAround(ctx context.Context, chatId, viewerId string, anchorId int64, count int) (entity.MessagePage, error) {
	count = clampWindow(count)
	half := count / 2

	older, err := u.messageRepo.FindAtOrBefore(ctx, chatId, anchorId, half+1)
	if err != nil {
		return entity.MessagePage{}, err
	}
	newer, err := u.messageRepo.FindAfter(ctx, chatId, anchorId, half)
	if err != nil {
		return entity.MessagePage{}, err
	}

	total, err := u.messageRepo.Count(ctx, chatId)
	if err != nil {
		return entity.MessagePage{}, err
	}

	reverseMessages(older)
	window := append(older, newer...)

	if len(window) == 0 {
		return entity.MessagePage{
			Messages:   []entity.MessageView{},
			TotalCount: total,
		}, nil
	}

	hasOlder, err := u.messageRepo.ExistsBefore(ctx, chatId, window[0].Id)
	if err != nil {
		return entity.MessagePage{}, err
	}
	hasNewer, err := u.messageRepo.ExistsAfter(ctx, chatId, window[len(window)-1].Id)
	if err != nil {
		return entity.MessagePage{}, err
	}

	return entity.MessagePage{
		Messages:         shapeMessages(window, viewerId),
		TotalCount:       total,
		HasMoreMessages:  hasOlder,
		HasNewerMessages: hasNewer,
	}, nil
}

// GetBefore pages backwards from a cursor for infinite scroll. The
// cursor itself is a message above the loaded range, so newer messages
// always exist by construction.
func (u *messageUsecase) GetBefore(ctx context.Context, chatId, viewerId string, beforeId int64, count int) (entity.MessagePage, error) {
	count = clampWindow(count)

	rows, err := u.messageRepo.FindBefore(ctx, chatId, beforeId, count)
	if err != nil {
		return entity.MessagePage{}, err
	}

	hasOlder := false
	if len(rows) > 0 {
		// rows are newest-first; the last row holds the lowest id.
		hasOlder, err = u.messageRepo.ExistsBefore(ctx, chatId, rows[len(rows)-1].Id)
		if err != nil {
			return entity.MessagePage{}, err
		}
	}

	reverseMessages(rows)

	return entity.MessagePage{
		Messages:         shapeMessages(rows, viewerId),
		HasMoreMessages:  hasOlder,
		HasNewerMessages: true,
	}, nil
}

// GetAfter pages forwards from a cursor; the mirror of GetBefore.
func (u *messageUsecase) GetAfter(ctx context.Context, chatId, viewerId string, afterId int64, count int) (entity.MessagePage, error) {
	count = clampWindow(count)

	rows, err := u.messageRepo.FindAfter(ctx, chatId, afterId, count)
	if err != nil {
		return entity.MessagePage{}, err
	}

	hasNewer := false
	if len(rows) > 0 {
		hasNewer, err = u.messageRepo.ExistsAfter(ctx, chatId, rows[len(rows)-1].Id)
		if err != nil {
			return entity.MessagePage{}, err
		}
	}

	return entity.MessagePage{
		Messages:         shapeMessages(rows, viewerId),
		HasMoreMessages:  true,
		HasNewerMessages: hasNewer,
	}, nil
}

func (u *messageUsecase) Search(ctx context.Context, chatId, viewerId, query string, page, pageSize int) (entity.SearchPage, error) {
	if page < 1 {
		page = 1
	}
	pageSize = clampPageSize(pageSize)
	offset := (page - 1) * pageSize

	query = strings.TrimSpace(query)
	if query == "" {
		return entity.SearchPage{Results: []entity.SearchResult{}, CurrentPage: page}, nil
	}

	rows, total, err := u.messageRepo.Search(ctx, chatId, query, pageSize, offset)
	if err != nil {
		return entity.SearchPage{}, err
	}

	results := make([]entity.SearchResult, 0, len(rows))
	for _, row := range rows {
		excerpt := ""
		if row.Content != nil {
			excerpt = highlightExcerpt(*row.Content, query)
		}
		results = append(results, entity.SearchResult{
			Message: shapeMessage(row, viewerId),
			Excerpt: excerpt,
		})
	}

	return entity.SearchPage{
		Results:         results,
		CurrentPage:     page,
		TotalCount:      total,
		HasMoreMessages: total > int64(offset+pageSize),
	}, nil
}

func (u *messageUsecase) Get(ctx context.Context, chatId, viewerId string, messageId int64) (entity.MessageView, error) {
	message, err := u.messageRepo.Get(ctx, chatId, messageId)
	if err != nil {
		return entity.MessageView{}, err
	}
	return shapeMessage(message, viewerId), nil
}

func (u *messageUsecase) Send(ctx context.Context, input SendMessageInput) (entity.MessageView, error) {
	hasBody := input.IsVoiceMessage || input.Poll != nil || len(input.Attachments) > 0
	if !hasBody && (input.Content == nil || strings.TrimSpace(*input.Content) == "") {
		return entity.MessageView{}, ErrEmptyContent
	}

	id, err := u.messageRepo.NextId(ctx)
	if err != nil {
		return entity.MessageView{}, err
	}

	message := entity.Message{
		Id:              id,
		ChatId:          input.ChatId,
		SenderId:        input.SenderId,
		Content:         input.Content,
		CreatedAt:       time.Now(),
		IsVoiceMessage:  input.IsVoiceMessage,
		ReplyToId:       input.ReplyToId,
		ForwardedFromId: input.ForwardedFromId,
		Attachments:     input.Attachments,
		Poll:            input.Poll,
	}
	if input.IsVoiceMessage {
		status := entity.TranscriptionPending
		message.TranscriptionStatus = &status
	}

	if err := u.messageRepo.Create(ctx, message); err != nil {
		return entity.MessageView{}, err
	}

	if input.IsVoiceMessage {
		if err := u.producer.Produce(ctx, id); err != nil {
			logger.Log.Warn("transcription enqueue failed", "message", id, "err", err)
		}
	}

	metrics.MessagesSent.Inc()
	u.push(ctx, input.ChatId, entity.EventMessageCreated, shapeMessage(message, ""))

	return shapeMessage(message, input.SenderId), nil
}

func (u *messageUsecase) Edit(ctx context.Context, chatId, userId string, messageId int64, content string) (entity.MessageView, error) {
	if strings.TrimSpace(content) == "" {
		return entity.MessageView{}, ErrEmptyContent
	}

	message, err := u.messageRepo.Get(ctx, chatId, messageId)
	if err != nil {
		return entity.MessageView{}, err
	}
	if message.SenderId != userId {
		return entity.MessageView{}, ErrNotSender
	}

	editedAt := time.Now()
	if err := u.messageRepo.UpdateContent(ctx, chatId, messageId, content, editedAt); err != nil {
		return entity.MessageView{}, err
	}

	message.Content = &content
	message.EditedAt = &editedAt

	u.push(ctx, chatId, entity.EventMessageUpdated, shapeMessage(message, ""))

	return shapeMessage(message, userId), nil
}

func (u *messageUsecase) Delete(ctx context.Context, chatId, userId string, messageId int64) error {
	message, err := u.messageRepo.Get(ctx, chatId, messageId)
	if err != nil {
		return err
	}
	if message.SenderId != userId {
		return ErrNotSender
	}

	if err := u.messageRepo.SoftDelete(ctx, chatId, messageId); err != nil {
		return err
	}

	message.IsDeleted = true
	message.Content = nil

	u.push(ctx, chatId, entity.EventMessageDeleted, shapeMessage(message, ""))

	return nil
}

func (u *messageUsecase) VotePoll(ctx context.Context, chatId, userId string, messageId int64, optionIndex int) (entity.MessageView, error) {
	if err := u.messageRepo.VotePoll(ctx, chatId, messageId, optionIndex, userId); err != nil {
		return entity.MessageView{}, err
	}

	message, err := u.messageRepo.Get(ctx, chatId, messageId)
	if err != nil {
		return entity.MessageView{}, err
	}

	u.push(ctx, chatId, entity.EventMessageUpdated, shapeMessage(message, ""))

	return shapeMessage(message, userId), nil
}

func (u *messageUsecase) RetractPollVote(ctx context.Context, chatId, userId string, messageId int64) (entity.MessageView, error) {
	if err := u.messageRepo.RetractPollVote(ctx, chatId, messageId, userId); err != nil {
		return entity.MessageView{}, err
	}

	message, err := u.messageRepo.Get(ctx, chatId, messageId)
	if err != nil {
		return entity.MessageView{}, err
	}

	u.push(ctx, chatId, entity.EventMessageUpdated, shapeMessage(message, ""))

	return shapeMessage(message, userId), nil
}

func (u *messageUsecase) push(ctx context.Context, chatId, event string, payload any) {
	if err := u.notifier.PushToChat(ctx, chatId, event, payload); err != nil {
		logger.Log.Warn("push to chat failed", "chat", chatId, "event", event, "err", err)
	}
}

func reverseMessages(messages []entity.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

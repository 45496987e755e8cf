package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"chatline/internal/entity"
	"chatline/internal/notify"
	"chatline/internal/repository"
	"chatline/pkg/logger"
)

// ReadUsecase maintains one read cursor per (user, chat): the highest
// message id the user is known to have seen. Unread state is always
// "everything after the watermark", which keeps storage at O(1) per
// membership instead of a flag per message.
type ReadUsecase interface {
	MarkAsRead(ctx context.Context, userId, chatId string, messageId *int64) (int64, error)
	GetUnreadCount(ctx context.Context, userId, chatId string) (int64, error)
	GetUnreadCountsForChats(ctx context.Context, userId string, chatIds []string) (map[string]int64, error)
	GetAllUnreadCounts(ctx context.Context, userId string) (entity.UnreadSummary, error)
}

type readUsecase struct {
	messageRepo repository.MessageRepository
	memberRepo  repository.MemberRepository
	notifier    notify.Notifier
}

func NewReadUsecase(messageRepo repository.MessageRepository, memberRepo repository.MemberRepository, notifier notify.Notifier) ReadUsecase {
	return &readUsecase{
		messageRepo: messageRepo,
		memberRepo:  memberRepo,
		notifier:    notifier,
	}
}

// MarkAsRead advances the cursor to messageId, or to the latest
// non-deleted message when messageId is nil. The cursor only ever moves
// forward; marking an older message is a no-op. Returns the post-update
// unread count.
func (u *readUsecase) MarkAsRead(ctx context.Context, userId, chatId string, messageId *int64) (int64, error) {
	member, err := u.memberRepo.Get(ctx, chatId, userId)
	if err != nil {
		return 0, err
	}

	var target int64
	if messageId != nil {
		message, err := u.messageRepo.Get(ctx, chatId, *messageId)
		if err != nil {
			return 0, err
		}
		target = message.Id
	} else {
		latest, err := u.messageRepo.GetLatest(ctx, chatId)
		if err != nil {
			if errors.Is(err, repository.ErrMessageNotFound) {
				// Nothing to read in an empty chat.
				return 0, nil
			}
			return 0, err
		}
		target = latest.Id
	}

	cursor := target
	if member.LastReadMessageId != nil && *member.LastReadMessageId >= target {
		cursor = *member.LastReadMessageId
	} else {
		if err := u.memberRepo.AdvanceReadCursor(ctx, chatId, userId, target, time.Now()); err != nil {
			return 0, err
		}
	}

	unread, err := u.messageRepo.CountAfter(ctx, chatId, cursor, userId)
	if err != nil {
		return 0, err
	}

	payload := entity.ChatUnread{ChatId: chatId, UnreadCount: unread}
	if err := u.notifier.PushToUser(ctx, userId, entity.EventUnreadCountUpdated, payload); err != nil {
		logger.Log.Warn("unread push failed", "user", userId, "chat", chatId, "err", err)
	}

	return unread, nil
}

// GetUnreadCount degrades to 0 when the membership row is absent: a user
// who never joined simply has nothing unread.
func (u *readUsecase) GetUnreadCount(ctx context.Context, userId, chatId string) (int64, error) {
	member, err := u.memberRepo.Get(ctx, chatId, userId)
	if err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			return 0, nil
		}
		return 0, err
	}

	var cursor int64
	if member.LastReadMessageId != nil {
		cursor = *member.LastReadMessageId
	}

	return u.messageRepo.CountAfter(ctx, chatId, cursor, userId)
}

// GetUnreadCountsForChats computes counts for many chats with a single
// grouped store query rather than one query per chat.
func (u *readUsecase) GetUnreadCountsForChats(ctx context.Context, userId string, chatIds []string) (map[string]int64, error) {
	if len(chatIds) == 0 {
		return map[string]int64{}, nil
	}

	members, err := u.memberRepo.ListForUser(ctx, userId, chatIds)
	if err != nil {
		return nil, err
	}

	cursors := make(map[string]int64, len(members))
	for _, member := range members {
		var cursor int64
		if member.LastReadMessageId != nil {
			cursor = *member.LastReadMessageId
		}
		cursors[member.ChatId] = cursor
	}

	counts, err := u.messageRepo.CountAfterGrouped(ctx, userId, cursors)
	if err != nil {
		return nil, err
	}

	// Chats with no unread messages have no grouped row; report zero.
	for chatId := range cursors {
		if _, ok := counts[chatId]; !ok {
			counts[chatId] = 0
		}
	}

	return counts, nil
}

// GetAllUnreadCounts returns the per-chat breakdown (zero-unread chats
// omitted) and the total across all of the user's chats.
func (u *readUsecase) GetAllUnreadCounts(ctx context.Context, userId string) (entity.UnreadSummary, error) {
	chatIds, err := u.memberRepo.ListChatIds(ctx, userId)
	if err != nil {
		return entity.UnreadSummary{}, err
	}

	counts, err := u.GetUnreadCountsForChats(ctx, userId, chatIds)
	if err != nil {
		return entity.UnreadSummary{}, err
	}

	summary := entity.UnreadSummary{Chats: []entity.ChatUnread{}}
	for chatId, count := range counts {
		if count == 0 {
			continue
		}
		summary.Chats = append(summary.Chats, entity.ChatUnread{ChatId: chatId, UnreadCount: count})
		summary.TotalUnread += count
	}

	sort.Slice(summary.Chats, func(i, j int) bool {
		return summary.Chats[i].ChatId < summary.Chats[j].ChatId
	})

	return summary, nil
}

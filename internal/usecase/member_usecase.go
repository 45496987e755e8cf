package usecase

import (
	"context"
	"errors"
	"time"

	"chatline/internal/entity"
	"chatline/internal/presence"
	"chatline/internal/repository"
)

type MemberView struct {
	ChatId   string    `json:"chatId"`
	UserId   string    `json:"userId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
	Online   bool      `json:"online"`
}

type MemberUsecase interface {
	Join(ctx context.Context, chatId, userId, role string) (entity.ChatMember, error)
	Leave(ctx context.Context, chatId, userId string) error
	SetNotifications(ctx context.Context, chatId, userId string, enabled bool) error
	Roster(ctx context.Context, chatId string) ([]MemberView, error)
}

type memberUsecase struct {
	memberRepo repository.MemberRepository
	presence   presence.Store
}

func NewMemberUsecase(memberRepo repository.MemberRepository, presenceStore presence.Store) MemberUsecase {
	return &memberUsecase{
		memberRepo: memberRepo,
		presence:   presenceStore,
	}
}

// Join creates the membership row; joining twice returns the existing
// row unchanged.
func (u *memberUsecase) Join(ctx context.Context, chatId, userId, role string) (entity.ChatMember, error) {
	existing, err := u.memberRepo.Get(ctx, chatId, userId)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrMemberNotFound) {
		return entity.ChatMember{}, err
	}

	if role == "" {
		role = entity.RoleMember
	}

	member := entity.ChatMember{
		ChatId:               chatId,
		UserId:               userId,
		Role:                 role,
		JoinedAt:             time.Now(),
		NotificationsEnabled: true,
	}
	if err := u.memberRepo.Add(ctx, member); err != nil {
		return entity.ChatMember{}, err
	}

	return member, nil
}

func (u *memberUsecase) Leave(ctx context.Context, chatId, userId string) error {
	return u.memberRepo.Remove(ctx, chatId, userId)
}

func (u *memberUsecase) SetNotifications(ctx context.Context, chatId, userId string, enabled bool) error {
	return u.memberRepo.SetNotifications(ctx, chatId, userId, enabled)
}

// Roster lists the chat's members annotated with live presence.
func (u *memberUsecase) Roster(ctx context.Context, chatId string) ([]MemberView, error) {
	members, err := u.memberRepo.List(ctx, chatId)
	if err != nil {
		return nil, err
	}

	userIds := make([]string, 0, len(members))
	for _, member := range members {
		userIds = append(userIds, member.UserId)
	}

	online := make(map[string]bool)
	for _, userId := range u.presence.FilterOnline(userIds) {
		online[userId] = true
	}

	views := make([]MemberView, 0, len(members))
	for _, member := range members {
		views = append(views, MemberView{
			ChatId:   member.ChatId,
			UserId:   member.UserId,
			Role:     member.Role,
			JoinedAt: member.JoinedAt,
			Online:   online[member.UserId],
		})
	}

	return views, nil
}

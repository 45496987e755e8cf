package repository

import (
	"context"
	"errors"
	"time"

	"chatline/internal/entity"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrMemberNotFound   = errors.New("chat member not found")
	ErrOwnerCannotLeave = errors.New("chat owner cannot be removed")
)

type MemberRepository interface {
	Get(ctx context.Context, chatId, userId string) (entity.ChatMember, error)
	Add(ctx context.Context, member entity.ChatMember) error
	Remove(ctx context.Context, chatId, userId string) error
	List(ctx context.Context, chatId string) ([]entity.ChatMember, error)
	ListUserIds(ctx context.Context, chatId string) ([]string, error)
	ListChatIds(ctx context.Context, userId string) ([]string, error)
	ListForUser(ctx context.Context, userId string, chatIds []string) ([]entity.ChatMember, error)
	SetNotifications(ctx context.Context, chatId, userId string, enabled bool) error

	// AdvanceReadCursor moves the read cursor forward only; a messageId at
	// or below the stored cursor is a no-op.
	AdvanceReadCursor(ctx context.Context, chatId, userId string, messageId int64, at time.Time) error
}

type memberRepository struct {
	db mongo.Database
}

func NewMemberRepository(db mongo.Database) MemberRepository {
	return &memberRepository{
		db: db,
	}
}

func (r *memberRepository) Get(ctx context.Context, chatId, userId string) (entity.ChatMember, error) {
	collection := r.db.Collection("chat_members")
	filter := bson.M{"chatId": chatId, "userId": userId}

	var member entity.ChatMember
	err := collection.FindOne(ctx, filter).Decode(&member)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.ChatMember{}, ErrMemberNotFound
		}
		return entity.ChatMember{}, err
	}

	return member, nil
}

func (r *memberRepository) Add(ctx context.Context, member entity.ChatMember) error {
	collection := r.db.Collection("chat_members")
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now()
	}

	_, err := collection.InsertOne(ctx, member)
	return err
}

// Remove deletes a membership row. The owner is never removable through
// this path.
func (r *memberRepository) Remove(ctx context.Context, chatId, userId string) error {
	collection := r.db.Collection("chat_members")

	member, err := r.Get(ctx, chatId, userId)
	if err != nil {
		return err
	}
	if member.Role == entity.RoleOwner {
		return ErrOwnerCannotLeave
	}

	_, err = collection.DeleteOne(ctx, bson.M{"chatId": chatId, "userId": userId})
	return err
}

func (r *memberRepository) List(ctx context.Context, chatId string) ([]entity.ChatMember, error) {
	collection := r.db.Collection("chat_members")

	cursor, err := collection.Find(ctx, bson.M{"chatId": chatId})
	if err != nil {
		return nil, err
	}

	var members []entity.ChatMember
	if err := cursor.All(ctx, &members); err != nil {
		return nil, err
	}

	return members, nil
}

func (r *memberRepository) ListUserIds(ctx context.Context, chatId string) ([]string, error) {
	members, err := r.List(ctx, chatId)
	if err != nil {
		return nil, err
	}

	userIds := make([]string, 0, len(members))
	for _, member := range members {
		userIds = append(userIds, member.UserId)
	}

	return userIds, nil
}

func (r *memberRepository) ListChatIds(ctx context.Context, userId string) ([]string, error) {
	collection := r.db.Collection("chat_members")

	cursor, err := collection.Find(ctx, bson.M{"userId": userId})
	if err != nil {
		return nil, err
	}

	var members []entity.ChatMember
	if err := cursor.All(ctx, &members); err != nil {
		return nil, err
	}

	chatIds := make([]string, 0, len(members))
	for _, member := range members {
		chatIds = append(chatIds, member.ChatId)
	}

	return chatIds, nil
}

func (r *memberRepository) ListForUser(ctx context.Context, userId string, chatIds []string) ([]entity.ChatMember, error) {
	collection := r.db.Collection("chat_members")
	filter := bson.M{
		"userId": userId,
		"chatId": bson.M{"$in": chatIds},
	}

	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	var members []entity.ChatMember
	if err := cursor.All(ctx, &members); err != nil {
		return nil, err
	}

	return members, nil
}

func (r *memberRepository) SetNotifications(ctx context.Context, chatId, userId string, enabled bool) error {
	collection := r.db.Collection("chat_members")
	filter := bson.M{"chatId": chatId, "userId": userId}
	update := bson.M{"$set": bson.M{"notificationsEnabled": enabled}}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrMemberNotFound
	}

	return nil
}

func (r *memberRepository) AdvanceReadCursor(ctx context.Context, chatId, userId string, messageId int64, at time.Time) error {
	collection := r.db.Collection("chat_members")

	// The $lt/nil filter makes the update idempotent under concurrent
	// calls: the cursor only ever moves forward.
	filter := bson.M{
		"chatId": chatId,
		"userId": userId,
		"$or": bson.A{
			bson.M{"lastReadMessageId": bson.M{"$lt": messageId}},
			bson.M{"lastReadMessageId": nil},
		},
	}
	update := bson.M{"$set": bson.M{
		"lastReadMessageId": messageId,
		"lastReadAt":        at,
	}}

	_, err := collection.UpdateOne(ctx, filter, update)
	return err
}

package repository

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	"chatline/internal/entity"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrOptionNotFound  = errors.New("poll option not found")
)

type MessageRepository interface {
	NextId(ctx context.Context) (int64, error)
	Create(ctx context.Context, message entity.Message) error
	Get(ctx context.Context, chatId string, messageId int64) (entity.Message, error)
	GetById(ctx context.Context, messageId int64) (entity.Message, error)
	GetLatest(ctx context.Context, chatId string) (entity.Message, error)
	Count(ctx context.Context, chatId string) (int64, error)

	// Range queries. All filter by chat id and exclude deleted rows.
	FindPage(ctx context.Context, chatId string, limit, offset int) ([]entity.Message, error)
	FindAtOrBefore(ctx context.Context, chatId string, messageId int64, limit int) ([]entity.Message, error)
	FindBefore(ctx context.Context, chatId string, messageId int64, limit int) ([]entity.Message, error)
	FindAfter(ctx context.Context, chatId string, messageId int64, limit int) ([]entity.Message, error)
	ExistsBefore(ctx context.Context, chatId string, messageId int64) (bool, error)
	ExistsAfter(ctx context.Context, chatId string, messageId int64) (bool, error)

	CountAfter(ctx context.Context, chatId string, afterId int64, excludeSender string) (int64, error)
	CountAfterGrouped(ctx context.Context, excludeSender string, cursors map[string]int64) (map[string]int64, error)

	Search(ctx context.Context, chatId, query string, limit, offset int) ([]entity.Message, int64, error)

	UpdateContent(ctx context.Context, chatId string, messageId int64, content string, editedAt time.Time) error
	SoftDelete(ctx context.Context, chatId string, messageId int64) error
	SetTranscriptionStatus(ctx context.Context, messageId int64, status entity.TranscriptionStatus) error
	SetTranscription(ctx context.Context, messageId int64, text string) error
	VotePoll(ctx context.Context, chatId string, messageId int64, optionIndex int, userId string) error
	RetractPollVote(ctx context.Context, chatId string, messageId int64, userId string) error
}

type messageRepository struct {
	db mongo.Database
}

func NewMessageRepository(db mongo.Database) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

// NextId allocates the next store-wide message id from the counters
// collection. Ids are strictly increasing and never reused.
func (r *messageRepository) NextId(ctx context.Context) (int64, error) {
	collection := r.db.Collection("counters")
	filter := bson.M{"_id": "messageId"}
	update := bson.M{"$inc": bson.M{"seq": int64(1)}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter)
	if err != nil {
		return 0, err
	}

	return counter.Seq, nil
}

func (r *messageRepository) Create(ctx context.Context, message entity.Message) error {
	collection := r.db.Collection("messages")
	_, err := collection.InsertOne(ctx, message)
	return err
}

func (r *messageRepository) Get(ctx context.Context, chatId string, messageId int64) (entity.Message, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{"_id": messageId, "chatId": chatId}

	var message entity.Message
	err := collection.FindOne(ctx, filter).Decode(&message)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.Message{}, ErrMessageNotFound
		}
		return entity.Message{}, err
	}

	return message, nil
}

func (r *messageRepository) GetById(ctx context.Context, messageId int64) (entity.Message, error) {
	collection := r.db.Collection("messages")

	var message entity.Message
	err := collection.FindOne(ctx, bson.M{"_id": messageId}).Decode(&message)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.Message{}, ErrMessageNotFound
		}
		return entity.Message{}, err
	}

	return message, nil
}

// GetLatest returns the most recent non-deleted message in a chat.
func (r *messageRepository) GetLatest(ctx context.Context, chatId string) (entity.Message, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{"chatId": chatId, "isDeleted": false}
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})

	var message entity.Message
	err := collection.FindOne(ctx, filter, opts).Decode(&message)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.Message{}, ErrMessageNotFound
		}
		return entity.Message{}, err
	}

	return message, nil
}

func (r *messageRepository) Count(ctx context.Context, chatId string) (int64, error) {
	collection := r.db.Collection("messages")
	return collection.CountDocuments(ctx, bson.M{"chatId": chatId, "isDeleted": false})
}

func (r *messageRepository) find(ctx context.Context, filter bson.M, sort bson.D, limit, offset int) ([]entity.Message, error) {
	collection := r.db.Collection("messages")

	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var messages []entity.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *messageRepository) FindPage(ctx context.Context, chatId string, limit, offset int) ([]entity.Message, error) {
	filter := bson.M{"chatId": chatId, "isDeleted": false}
	return r.find(ctx, filter, bson.D{{Key: "_id", Value: -1}}, limit, offset)
}

func (r *messageRepository) FindAtOrBefore(ctx context.Context, chatId string, messageId int64, limit int) ([]entity.Message, error) {
	filter := bson.M{"chatId": chatId, "isDeleted": false, "_id": bson.M{"$lte": messageId}}
	return r.find(ctx, filter, bson.D{{Key: "_id", Value: -1}}, limit, 0)
}

func (r *messageRepository) FindBefore(ctx context.Context, chatId string, messageId int64, limit int) ([]entity.Message, error) {
	filter := bson.M{"chatId": chatId, "isDeleted": false, "_id": bson.M{"$lt": messageId}}
	return r.find(ctx, filter, bson.D{{Key: "_id", Value: -1}}, limit, 0)
}

func (r *messageRepository) FindAfter(ctx context.Context, chatId string, messageId int64, limit int) ([]entity.Message, error) {
	filter := bson.M{"chatId": chatId, "isDeleted": false, "_id": bson.M{"$gt": messageId}}
	return r.find(ctx, filter, bson.D{{Key: "_id", Value: 1}}, limit, 0)
}

func (r *messageRepository) ExistsBefore(ctx context.Context, chatId string, messageId int64) (bool, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{"chatId": chatId, "isDeleted": false, "_id": bson.M{"$lt": messageId}}

	count, err := collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *messageRepository) ExistsAfter(ctx context.Context, chatId string, messageId int64) (bool, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{"chatId": chatId, "isDeleted": false, "_id": bson.M{"$gt": messageId}}

	count, err := collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *messageRepository) CountAfter(ctx context.Context, chatId string, afterId int64, excludeSender string) (int64, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{
		"chatId":    chatId,
		"isDeleted": false,
		"_id":       bson.M{"$gt": afterId},
		"senderId":  bson.M{"$ne": excludeSender},
	}
	return collection.CountDocuments(ctx, filter)
}

// CountAfterGrouped computes unread counts for many chats in a single
// grouped query instead of one query per chat.
func (r *messageRepository) CountAfterGrouped(ctx context.Context, excludeSender string, cursors map[string]int64) (map[string]int64, error) {
	counts := make(map[string]int64, len(cursors))
	if len(cursors) == 0 {
		return counts, nil
	}

	ranges := bson.A{}
	for chatId, cursor := range cursors {
		ranges = append(ranges, bson.M{"chatId": chatId, "_id": bson.M{"$gt": cursor}})
	}

	matchStage := bson.D{{Key: "$match", Value: bson.M{
		"$or":       ranges,
		"isDeleted": false,
		"senderId":  bson.M{"$ne": excludeSender},
	}}}
	groupStage := bson.D{{Key: "$group", Value: bson.M{
		"_id":   "$chatId",
		"count": bson.M{"$sum": 1},
	}}}

	collection := r.db.Collection("messages")
	cursor, err := collection.Aggregate(ctx, mongo.Pipeline{matchStage, groupStage})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ChatId string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.ChatId] = row.Count
	}

	return counts, nil
}

// Search matches a case-insensitive substring of content, newest first by
// creation time. Returns the page of matches and the total match count.
func (r *messageRepository) Search(ctx context.Context, chatId, query string, limit, offset int) ([]entity.Message, int64, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{
		"chatId":    chatId,
		"isDeleted": false,
		"content": bson.M{"$regex": primitive.Regex{
			Pattern: regexp.QuoteMeta(query),
			Options: "i",
		}},
	}

	total, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	messages, err := r.find(ctx, filter, bson.D{{Key: "createdAt", Value: -1}}, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

func (r *messageRepository) UpdateContent(ctx context.Context, chatId string, messageId int64, content string, editedAt time.Time) error {
	collection := r.db.Collection("messages")
	filter := bson.M{"_id": messageId, "chatId": chatId, "isDeleted": false}
	update := bson.M{"$set": bson.M{
		"content":  content,
		"editedAt": editedAt,
	}}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrMessageNotFound
	}

	return nil
}

// SoftDelete clears the content but keeps the row as a tombstone so the
// id range stays contiguous for cursor pagination.
func (r *messageRepository) SoftDelete(ctx context.Context, chatId string, messageId int64) error {
	collection := r.db.Collection("messages")
	filter := bson.M{"_id": messageId, "chatId": chatId, "isDeleted": false}
	update := bson.M{"$set": bson.M{
		"isDeleted": true,
		"content":   nil,
	}}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrMessageNotFound
	}

	return nil
}

func (r *messageRepository) SetTranscriptionStatus(ctx context.Context, messageId int64, status entity.TranscriptionStatus) error {
	collection := r.db.Collection("messages")
	filter := bson.M{"_id": messageId}
	update := bson.M{"$set": bson.M{"transcriptionStatus": status}}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrMessageNotFound
	}

	return nil
}

func (r *messageRepository) SetTranscription(ctx context.Context, messageId int64, text string) error {
	collection := r.db.Collection("messages")
	filter := bson.M{"_id": messageId}
	update := bson.M{"$set": bson.M{
		"content":             text,
		"transcriptionStatus": entity.TranscriptionCompleted,
	}}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrMessageNotFound
	}

	return nil
}

// VotePoll records a vote for one option, retracting any previous vote by
// the same user first so a user holds at most one vote per poll.
func (r *messageRepository) VotePoll(ctx context.Context, chatId string, messageId int64, optionIndex int, userId string) error {
	message, err := r.Get(ctx, chatId, messageId)
	if err != nil {
		return err
	}
	if message.Poll == nil {
		return ErrMessageNotFound
	}
	if optionIndex < 0 || optionIndex >= len(message.Poll.Options) {
		return ErrOptionNotFound
	}

	if err := r.RetractPollVote(ctx, chatId, messageId, userId); err != nil {
		return err
	}

	collection := r.db.Collection("messages")
	filter := bson.M{"_id": messageId, "chatId": chatId}
	update := bson.M{"$addToSet": bson.M{
		"poll.options." + strconv.Itoa(optionIndex) + ".voterIds": userId,
	}}

	_, err = collection.UpdateOne(ctx, filter, update)
	return err
}

func (r *messageRepository) RetractPollVote(ctx context.Context, chatId string, messageId int64, userId string) error {
	collection := r.db.Collection("messages")
	filter := bson.M{"_id": messageId, "chatId": chatId}
	update := bson.M{"$pull": bson.M{"poll.options.$[].voterIds": userId}}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrMessageNotFound
	}

	return nil
}


package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chatline/internal/entity"
	"chatline/internal/repository"
)

// fakeMessageRepo keeps messages in an id-ordered slice and mirrors the
// mongo repository's filtering: range queries skip deleted rows, direct
// lookups do not.
type fakeMessageRepo struct {
	mu       sync.Mutex
	lastId   int64
	messages []entity.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{}
}

// seed inserts n plain text messages from sender and returns nothing;
// ids are allocated sequentially starting after the last one.
func (f *fakeMessageRepo) seed(chatId, sender string, n int) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		id, _ := f.NextId(ctx)
		content := "message " + chatId
		f.Create(ctx, entity.Message{
			Id:        id,
			ChatId:    chatId,
			SenderId:  sender,
			Content:   &content,
			CreatedAt: time.Now(),
		})
	}
}

func (f *fakeMessageRepo) NextId(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastId++
	return f.lastId, nil
}

func (f *fakeMessageRepo) Create(ctx context.Context, message entity.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	sort.Slice(f.messages, func(i, j int) bool { return f.messages[i].Id < f.messages[j].Id })
	return nil
}

func (f *fakeMessageRepo) liveAsc(chatId string) []entity.Message {
	var out []entity.Message
	for _, m := range f.messages {
		if m.ChatId == chatId && !m.IsDeleted {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeMessageRepo) Get(ctx context.Context, chatId string, messageId int64) (entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.Id == messageId && m.ChatId == chatId {
			return m, nil
		}
	}
	return entity.Message{}, repository.ErrMessageNotFound
}

func (f *fakeMessageRepo) GetById(ctx context.Context, messageId int64) (entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.Id == messageId {
			return m, nil
		}
	}
	return entity.Message{}, repository.ErrMessageNotFound
}

func (f *fakeMessageRepo) GetLatest(ctx context.Context, chatId string) (entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	live := f.liveAsc(chatId)
	if len(live) == 0 {
		return entity.Message{}, repository.ErrMessageNotFound
	}
	return live[len(live)-1], nil
}

func (f *fakeMessageRepo) Count(ctx context.Context, chatId string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.liveAsc(chatId))), nil
}

func (f *fakeMessageRepo) FindPage(ctx context.Context, chatId string, limit, offset int) ([]entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	live := f.liveAsc(chatId)
	reverseMessages(live)
	if offset >= len(live) {
		return nil, nil
	}
	live = live[offset:]
	if limit > 0 && len(live) > limit {
		live = live[:limit]
	}
	return live, nil
}

func (f *fakeMessageRepo) FindAtOrBefore(ctx context.Context, chatId string, messageId int64, limit int) ([]entity.Message, error) {
	return f.findDesc(chatId, func(id int64) bool { return id <= messageId }, limit)
}

func (f *fakeMessageRepo) FindBefore(ctx context.Context, chatId string, messageId int64, limit int) ([]entity.Message, error) {
	return f.findDesc(chatId, func(id int64) bool { return id < messageId }, limit)
}

func (f *fakeMessageRepo) findDesc(chatId string, match func(int64) bool, limit int) ([]entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Message
	live := f.liveAsc(chatId)
	for i := len(live) - 1; i >= 0; i-- {
		if !match(live[i].Id) {
			continue
		}
		out = append(out, live[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) FindAfter(ctx context.Context, chatId string, messageId int64, limit int) ([]entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Message
	for _, m := range f.liveAsc(chatId) {
		if m.Id <= messageId {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) ExistsBefore(ctx context.Context, chatId string, messageId int64) (bool, error) {
	rows, _ := f.FindBefore(ctx, chatId, messageId, 1)
	return len(rows) > 0, nil
}

func (f *fakeMessageRepo) ExistsAfter(ctx context.Context, chatId string, messageId int64) (bool, error) {
	rows, _ := f.FindAfter(ctx, chatId, messageId, 1)
	return len(rows) > 0, nil
}

func (f *fakeMessageRepo) CountAfter(ctx context.Context, chatId string, afterId int64, excludeSender string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, m := range f.liveAsc(chatId) {
		if m.Id > afterId && m.SenderId != excludeSender {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageRepo) CountAfterGrouped(ctx context.Context, excludeSender string, cursors map[string]int64) (map[string]int64, error) {
	counts := make(map[string]int64, len(cursors))
	for chatId, cursor := range cursors {
		count, _ := f.CountAfter(ctx, chatId, cursor, excludeSender)
		if count > 0 {
			counts[chatId] = count
		}
	}
	return counts, nil
}

func (f *fakeMessageRepo) Search(ctx context.Context, chatId, query string, limit, offset int) ([]entity.Message, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matches []entity.Message
	for _, m := range f.liveAsc(chatId) {
		if m.Content != nil && strings.Contains(strings.ToLower(*m.Content), strings.ToLower(query)) {
			matches = append(matches, m)
		}
	}
	reverseMessages(matches)
	total := int64(len(matches))
	if offset >= len(matches) {
		return nil, total, nil
	}
	matches = matches[offset:]
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, total, nil
}

func (f *fakeMessageRepo) update(messageId int64, mutate func(*entity.Message) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].Id == messageId {
			return mutate(&f.messages[i])
		}
	}
	return repository.ErrMessageNotFound
}

func (f *fakeMessageRepo) UpdateContent(ctx context.Context, chatId string, messageId int64, content string, editedAt time.Time) error {
	return f.update(messageId, func(m *entity.Message) error {
		if m.ChatId != chatId || m.IsDeleted {
			return repository.ErrMessageNotFound
		}
		m.Content = &content
		m.EditedAt = &editedAt
		return nil
	})
}

func (f *fakeMessageRepo) SoftDelete(ctx context.Context, chatId string, messageId int64) error {
	return f.update(messageId, func(m *entity.Message) error {
		if m.ChatId != chatId || m.IsDeleted {
			return repository.ErrMessageNotFound
		}
		m.IsDeleted = true
		m.Content = nil
		return nil
	})
}

func (f *fakeMessageRepo) SetTranscriptionStatus(ctx context.Context, messageId int64, status entity.TranscriptionStatus) error {
	return f.update(messageId, func(m *entity.Message) error {
		m.TranscriptionStatus = &status
		return nil
	})
}

func (f *fakeMessageRepo) SetTranscription(ctx context.Context, messageId int64, text string) error {
	return f.update(messageId, func(m *entity.Message) error {
		m.Content = &text
		status := entity.TranscriptionCompleted
		m.TranscriptionStatus = &status
		return nil
	})
}

func (f *fakeMessageRepo) VotePoll(ctx context.Context, chatId string, messageId int64, optionIndex int, userId string) error {
	return f.update(messageId, func(m *entity.Message) error {
		if m.ChatId != chatId || m.Poll == nil {
			return repository.ErrMessageNotFound
		}
		if optionIndex < 0 || optionIndex >= len(m.Poll.Options) {
			return repository.ErrOptionNotFound
		}
		retractVote(m.Poll, userId)
		option := &m.Poll.Options[optionIndex]
		option.VoterIds = append(option.VoterIds, userId)
		return nil
	})
}

func (f *fakeMessageRepo) RetractPollVote(ctx context.Context, chatId string, messageId int64, userId string) error {
	return f.update(messageId, func(m *entity.Message) error {
		if m.ChatId != chatId {
			return repository.ErrMessageNotFound
		}
		if m.Poll != nil {
			retractVote(m.Poll, userId)
		}
		return nil
	})
}

func retractVote(poll *entity.Poll, userId string) {
	for i := range poll.Options {
		voters := poll.Options[i].VoterIds[:0]
		for _, voter := range poll.Options[i].VoterIds {
			if voter != userId {
				voters = append(voters, voter)
			}
		}
		poll.Options[i].VoterIds = voters
	}
}

type fakeMemberRepo struct {
	mu      sync.Mutex
	members []entity.ChatMember
}

func newFakeMemberRepo() *fakeMemberRepo {
	return &fakeMemberRepo{}
}

func (f *fakeMemberRepo) Get(ctx context.Context, chatId, userId string) (entity.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.ChatId == chatId && m.UserId == userId {
			return m, nil
		}
	}
	return entity.ChatMember{}, repository.ErrMemberNotFound
}

func (f *fakeMemberRepo) Add(ctx context.Context, member entity.ChatMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members = append(f.members, member)
	return nil
}

func (f *fakeMemberRepo) Remove(ctx context.Context, chatId, userId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.members {
		if m.ChatId != chatId || m.UserId != userId {
			continue
		}
		if m.Role == entity.RoleOwner {
			return repository.ErrOwnerCannotLeave
		}
		f.members = append(f.members[:i], f.members[i+1:]...)
		return nil
	}
	return repository.ErrMemberNotFound
}

func (f *fakeMemberRepo) List(ctx context.Context, chatId string) ([]entity.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.ChatMember
	for _, m := range f.members {
		if m.ChatId == chatId {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMemberRepo) ListUserIds(ctx context.Context, chatId string) ([]string, error) {
	members, _ := f.List(ctx, chatId)
	userIds := make([]string, 0, len(members))
	for _, m := range members {
		userIds = append(userIds, m.UserId)
	}
	return userIds, nil
}

func (f *fakeMemberRepo) ListChatIds(ctx context.Context, userId string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.members {
		if m.UserId == userId {
			out = append(out, m.ChatId)
		}
	}
	return out, nil
}

func (f *fakeMemberRepo) ListForUser(ctx context.Context, userId string, chatIds []string) ([]entity.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[string]bool, len(chatIds))
	for _, chatId := range chatIds {
		wanted[chatId] = true
	}
	var out []entity.ChatMember
	for _, m := range f.members {
		if m.UserId == userId && wanted[m.ChatId] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMemberRepo) SetNotifications(ctx context.Context, chatId, userId string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.members {
		if m.ChatId == chatId && m.UserId == userId {
			f.members[i].NotificationsEnabled = enabled
			return nil
		}
	}
	return repository.ErrMemberNotFound
}

func (f *fakeMemberRepo) AdvanceReadCursor(ctx context.Context, chatId, userId string, messageId int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.members {
		if m.ChatId != chatId || m.UserId != userId {
			continue
		}
		if m.LastReadMessageId == nil || *m.LastReadMessageId < messageId {
			id := messageId
			ts := at
			f.members[i].LastReadMessageId = &id
			f.members[i].LastReadAt = &ts
		}
		return nil
	}
	return nil
}

type pushedEvent struct {
	ChatId  string
	UserId  string
	Event   string
	Payload any
}

type fakeNotifier struct {
	mu     sync.Mutex
	pushes []pushedEvent
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{}
}

func (f *fakeNotifier) PushToChat(ctx context.Context, chatId, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, pushedEvent{ChatId: chatId, Event: event, Payload: payload})
	return nil
}

func (f *fakeNotifier) PushToUser(ctx context.Context, userId, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, pushedEvent{UserId: userId, Event: event, Payload: payload})
	return nil
}

func (f *fakeNotifier) events(name string) []pushedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []pushedEvent
	for _, p := range f.pushes {
		if p.Event == name {
			out = append(out, p)
		}
	}
	return out
}

type fakeProducer struct {
	mu       sync.Mutex
	produced []int64
}

func (f *fakeProducer) Produce(ctx context.Context, messageId int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.produced = append(f.produced, messageId)
	return nil
}

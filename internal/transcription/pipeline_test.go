package transcription

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chatline/internal/entity"
	"chatline/internal/repository"
)

// messageStore is the minimal in-memory stand-in for the message
// repository: lookups and transcription writes work, range queries are
// unused here.
type messageStore struct {
	mu       sync.Mutex
	messages map[int64]*entity.Message
}

func newMessageStore(messages ...entity.Message) *messageStore {
	s := &messageStore{messages: make(map[int64]*entity.Message)}
	for i := range messages {
		m := messages[i]
		s.messages[m.Id] = &m
	}
	return s
}

func (s *messageStore) get(id int64) entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.messages[id]
}

func (s *messageStore) GetById(ctx context.Context, messageId int64) (entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageId]
	if !ok {
		return entity.Message{}, repository.ErrMessageNotFound
	}
	return *m, nil
}

func (s *messageStore) SetTranscriptionStatus(ctx context.Context, messageId int64, status entity.TranscriptionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageId]
	if !ok {
		return repository.ErrMessageNotFound
	}
	m.TranscriptionStatus = &status
	return nil
}

func (s *messageStore) SetTranscription(ctx context.Context, messageId int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageId]
	if !ok {
		return repository.ErrMessageNotFound
	}
	m.Content = &text
	status := entity.TranscriptionCompleted
	m.TranscriptionStatus = &status
	return nil
}

func (s *messageStore) NextId(ctx context.Context) (int64, error) { return 0, nil }
func (s *messageStore) Create(ctx context.Context, message entity.Message) error {
	return nil
}
func (s *messageStore) Get(ctx context.Context, chatId string, messageId int64) (entity.Message, error) {
	return s.GetById(ctx, messageId)
}
func (s *messageStore) GetLatest(ctx context.Context, chatId string) (entity.Message, error) {
	return entity.Message{}, repository.ErrMessageNotFound
}
func (s *messageStore) Count(ctx context.Context, chatId string) (int64, error) { return 0, nil }
func (s *messageStore) FindPage(ctx context.Context, chatId string, limit, offset int) ([]entity.Message, error) {
	return nil, nil
}
func (s *messageStore) FindAtOrBefore(ctx context.Context, chatId string, messageId int64, limit int) ([]entity.Message, error) {
	return nil, nil
}
func (s *messageStore) FindBefore(ctx context.Context, chatId string, messageId int64, limit int) ([]entity.Message, error) {
	return nil, nil
}
func (s *messageStore) FindAfter(ctx context.Context, chatId string, messageId int64, limit int) ([]entity.Message, error) {
	return nil, nil
}
func (s *messageStore) ExistsBefore(ctx context.Context, chatId string, messageId int64) (bool, error) {
	return false, nil
}
func (s *messageStore) ExistsAfter(ctx context.Context, chatId string, messageId int64) (bool, error) {
	return false, nil
}
func (s *messageStore) CountAfter(ctx context.Context, chatId string, afterId int64, excludeSender string) (int64, error) {
	return 0, nil
}
func (s *messageStore) CountAfterGrouped(ctx context.Context, excludeSender string, cursors map[string]int64) (map[string]int64, error) {
	return nil, nil
}
func (s *messageStore) Search(ctx context.Context, chatId, query string, limit, offset int) ([]entity.Message, int64, error) {
	return nil, 0, nil
}
func (s *messageStore) UpdateContent(ctx context.Context, chatId string, messageId int64, content string, editedAt time.Time) error {
	return nil
}
func (s *messageStore) SoftDelete(ctx context.Context, chatId string, messageId int64) error {
	return nil
}
func (s *messageStore) VotePoll(ctx context.Context, chatId string, messageId int64, optionIndex int, userId string) error {
	return nil
}
func (s *messageStore) RetractPollVote(ctx context.Context, chatId string, messageId int64, userId string) error {
	return nil
}

type recordedPush struct {
	ChatId  string
	Event   string
	Payload entity.TranscriptionEvent
}

type pushRecorder struct {
	mu     sync.Mutex
	pushes []recordedPush
}

func (r *pushRecorder) PushToChat(ctx context.Context, chatId, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	te, _ := payload.(entity.TranscriptionEvent)
	r.pushes = append(r.pushes, recordedPush{ChatId: chatId, Event: event, Payload: te})
	return nil
}

func (r *pushRecorder) PushToUser(ctx context.Context, userId, event string, payload any) error {
	return nil
}

func (r *pushRecorder) byEvent(event string) []recordedPush {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedPush
	for _, p := range r.pushes {
		if p.Event == event {
			out = append(out, p)
		}
	}
	return out
}

type stubRecognizer struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []string
}

func (s *stubRecognizer) Recognize(ctx context.Context, audioPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, audioPath)
	return s.text, s.err
}

func voiceMessage(id int64, chatId, audioPath string) entity.Message {
	pending := entity.TranscriptionPending
	return entity.Message{
		Id:                  id,
		ChatId:              chatId,
		SenderId:            "alice",
		IsVoiceMessage:      true,
		TranscriptionStatus: &pending,
		Attachments: []entity.Attachment{
			{FileId: "f1", FilePath: audioPath, MimeType: "audio/ogg", IsAudio: true},
		},
	}
}

// writeAudio drops a placeholder audio file so jobs get past the
// on-disk existence check.
func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f1.ogg")
	if err := os.WriteFile(path, []byte("not really ogg"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestProcessCompletesVoiceMessage(t *testing.T) {
	audioPath := writeAudio(t)
	store := newMessageStore(voiceMessage(1, "c1", audioPath))
	recorder := &pushRecorder{}
	recognizer := &stubRecognizer{text: "hello from voice"}
	pipeline := NewPipeline(NewMemoryQueue(), recognizer, store, recorder)

	pipeline.runJob(context.Background(), 1)

	stored := store.get(1)
	if stored.Content == nil || *stored.Content != "hello from voice" {
		t.Fatalf("transcript must land in content, got %v", stored.Content)
	}
	if *stored.TranscriptionStatus != entity.TranscriptionCompleted {
		t.Fatalf("expected completed, got %s", *stored.TranscriptionStatus)
	}
	if len(recognizer.calls) != 1 || recognizer.calls[0] != audioPath {
		t.Fatalf("recognizer must receive the audio path, got %v", recognizer.calls)
	}

	statuses := recorder.byEvent(entity.EventTranscriptionStatusChanged)
	if len(statuses) != 1 || statuses[0].Payload.Status != entity.TranscriptionProcessing {
		t.Fatalf("expected a single processing status push, got %v", statuses)
	}

	completions := recorder.byEvent(entity.EventTranscriptionCompleted)
	if len(completions) != 1 {
		t.Fatalf("expected one completion push, got %d", len(completions))
	}
	payload := completions[0].Payload
	if payload.MessageId != 1 || payload.ChatId != "c1" {
		t.Fatalf("unexpected completion payload %+v", payload)
	}
	if payload.Transcription == nil || *payload.Transcription != "hello from voice" {
		t.Fatalf("completion must carry the transcript, got %v", payload.Transcription)
	}
}

func TestProcessFailsWithoutAudio(t *testing.T) {
	message := voiceMessage(1, "c1", "")
	message.Attachments = nil
	store := newMessageStore(message)
	recorder := &pushRecorder{}
	pipeline := NewPipeline(NewMemoryQueue(), &stubRecognizer{text: "unused"}, store, recorder)

	pipeline.runJob(context.Background(), 1)

	stored := store.get(1)
	if *stored.TranscriptionStatus != entity.TranscriptionFailed {
		t.Fatalf("expected failed, got %s", *stored.TranscriptionStatus)
	}
	if stored.Content != nil {
		t.Fatalf("failure must not touch content, got %v", stored.Content)
	}

	statuses := recorder.byEvent(entity.EventTranscriptionStatusChanged)
	if len(statuses) != 1 || statuses[0].Payload.Status != entity.TranscriptionFailed {
		t.Fatalf("expected exactly one failed status push, got %v", statuses)
	}
	if got := recorder.byEvent(entity.EventTranscriptionCompleted); len(got) != 0 {
		t.Fatalf("no completion push on failure, got %v", got)
	}
}

func TestProcessFailsWhenAudioMissingOnDisk(t *testing.T) {
	// The attachment record exists but the file does not; the job must
	// fail before ever reporting processing.
	missing := filepath.Join(t.TempDir(), "gone.ogg")
	store := newMessageStore(voiceMessage(1, "c1", missing))
	recorder := &pushRecorder{}
	recognizer := &stubRecognizer{text: "unused"}
	pipeline := NewPipeline(NewMemoryQueue(), recognizer, store, recorder)

	pipeline.runJob(context.Background(), 1)

	stored := store.get(1)
	if *stored.TranscriptionStatus != entity.TranscriptionFailed {
		t.Fatalf("expected failed, got %s", *stored.TranscriptionStatus)
	}
	if stored.Content != nil {
		t.Fatalf("failure must not touch content, got %v", stored.Content)
	}
	if len(recognizer.calls) != 0 {
		t.Fatalf("recognizer must not run for a missing file, got %v", recognizer.calls)
	}

	statuses := recorder.byEvent(entity.EventTranscriptionStatusChanged)
	if len(statuses) != 1 || statuses[0].Payload.Status != entity.TranscriptionFailed {
		t.Fatalf("expected exactly one failed status push, got %v", statuses)
	}
}

func TestProcessFailsOnRecognizerError(t *testing.T) {
	store := newMessageStore(voiceMessage(1, "c1", writeAudio(t)))
	recorder := &pushRecorder{}
	recognizer := &stubRecognizer{err: errors.New("model crashed")}
	pipeline := NewPipeline(NewMemoryQueue(), recognizer, store, recorder)

	pipeline.runJob(context.Background(), 1)

	stored := store.get(1)
	if *stored.TranscriptionStatus != entity.TranscriptionFailed {
		t.Fatalf("expected failed, got %s", *stored.TranscriptionStatus)
	}

	statuses := recorder.byEvent(entity.EventTranscriptionStatusChanged)
	// processing first, then failed.
	if len(statuses) != 2 || statuses[1].Payload.Status != entity.TranscriptionFailed {
		t.Fatalf("expected processing then failed, got %v", statuses)
	}
}

func TestRunSurvivesFailedJobs(t *testing.T) {
	bad := voiceMessage(1, "c1", "")
	bad.Attachments = nil
	store := newMessageStore(bad, voiceMessage(2, "c1", writeAudio(t)))
	recorder := &pushRecorder{}
	queue := NewMemoryQueue()
	pipeline := NewPipeline(queue, &stubRecognizer{text: "ok"}, store, recorder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pipeline.Run(ctx)

	queue.Enqueue(1)
	queue.Enqueue(2)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(recorder.byEvent(entity.EventTranscriptionCompleted)) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if len(recorder.byEvent(entity.EventTranscriptionCompleted)) != 1 {
		t.Fatal("job 2 must complete after job 1 fails")
	}
	if *store.get(1).TranscriptionStatus != entity.TranscriptionFailed {
		t.Fatal("job 1 must end failed")
	}
	if *store.get(2).TranscriptionStatus != entity.TranscriptionCompleted {
		t.Fatal("job 2 must end completed")
	}
}

func TestRetryOnlyVoiceMessages(t *testing.T) {
	content := "plain text"
	store := newMessageStore(
		entity.Message{Id: 1, ChatId: "c1", SenderId: "alice", Content: &content},
		voiceMessage(2, "c1", writeAudio(t)),
	)
	recorder := &pushRecorder{}
	queue := NewMemoryQueue()
	defer queue.Close()
	pipeline := NewPipeline(queue, &stubRecognizer{}, store, recorder)
	ctx := context.Background()

	if err := pipeline.Retry(ctx, 1); !errors.Is(err, repository.ErrMessageNotFound) {
		t.Fatalf("text messages cannot be retried, got %v", err)
	}

	failed := entity.TranscriptionFailed
	store.SetTranscriptionStatus(ctx, 2, failed)

	if err := pipeline.Retry(ctx, 2); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if *store.get(2).TranscriptionStatus != entity.TranscriptionPending {
		t.Fatal("retry must reset the message to pending")
	}

	statuses := recorder.byEvent(entity.EventTranscriptionStatusChanged)
	if len(statuses) != 1 || statuses[0].Payload.Status != entity.TranscriptionPending {
		t.Fatalf("expected a pending status push, got %v", statuses)
	}

	select {
	case id := <-queue.Jobs():
		if id != 2 {
			t.Fatalf("expected message 2 enqueued, got %d", id)
		}
	case <-time.After(time.Second):
		t.Fatal("retry must enqueue the job")
	}
}

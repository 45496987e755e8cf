package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"chatline/internal/entity"
	"chatline/internal/metrics"
	"chatline/internal/notify"
	"chatline/internal/repository"
	"chatline/pkg/logger"
)

const defaultJobTimeout = 2 * time.Minute

// Pipeline drives voice messages through
// pending -> processing -> {completed | failed}. The consumer is a
// single goroutine on purpose: it caps concurrency against the external
// recognizer at one job at a time.
type Pipeline struct {
	queue      JobQueue
	recognizer Recognizer
	messages   repository.MessageRepository
	notifier   notify.Notifier
	jobTimeout time.Duration
}

func NewPipeline(queue JobQueue, recognizer Recognizer, messages repository.MessageRepository, notifier notify.Notifier) *Pipeline {
	return &Pipeline{
		queue:      queue,
		recognizer: recognizer,
		messages:   messages,
		notifier:   notifier,
		jobTimeout: defaultJobTimeout,
	}
}

// Produce marks the message pending and enqueues it. Called on the
// request path when a voice message is created, so it must not block.
func (p *Pipeline) Produce(ctx context.Context, messageId int64) error {
	if err := p.messages.SetTranscriptionStatus(ctx, messageId, entity.TranscriptionPending); err != nil {
		return err
	}
	p.queue.Enqueue(messageId)
	return nil
}

// Retry resets a message to pending and re-enqueues it. It does not
// inspect why the previous attempt failed.
func (p *Pipeline) Retry(ctx context.Context, messageId int64) error {
	message, err := p.messages.GetById(ctx, messageId)
	if err != nil {
		return err
	}
	if !message.IsVoiceMessage {
		return repository.ErrMessageNotFound
	}

	if err := p.messages.SetTranscriptionStatus(ctx, messageId, entity.TranscriptionPending); err != nil {
		return err
	}
	p.pushStatus(ctx, message.Id, message.ChatId, entity.TranscriptionPending)
	p.queue.Enqueue(messageId)

	return nil
}

// Run drains the queue in FIFO order until ctx is cancelled. One job's
// failure never stops the loop.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case messageId, ok := <-p.queue.Jobs():
			if !ok {
				return
			}
			p.runJob(ctx, messageId)
		}
	}
}

func (p *Pipeline) runJob(ctx context.Context, messageId int64) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("transcription job panicked", "message", messageId, "panic", r)
			p.failQuietly(ctx, messageId)
		}
	}()

	if err := p.process(ctx, messageId); err != nil {
		logger.Log.Warn("transcription job failed", "message", messageId, "err", err)
	}
}

func (p *Pipeline) process(ctx context.Context, messageId int64) error {
	message, err := p.messages.GetById(ctx, messageId)
	if err != nil {
		// No message means no chat to notify; record the failure and
		// move on.
		metrics.TranscriptionJobs.WithLabelValues(string(entity.TranscriptionFailed)).Inc()
		return fmt.Errorf("locate message %d: %w", messageId, err)
	}

	audio := message.AudioAttachment()
	if audio == nil {
		p.fail(ctx, message, errors.New("voice message has no audio attachment"))
		return nil
	}
	// Fail fast on a missing file so the chat sees a single failed
	// event instead of a processing transition that cannot succeed.
	if _, err := os.Stat(audio.FilePath); err != nil {
		p.fail(ctx, message, fmt.Errorf("audio file: %w", err))
		return nil
	}

	if err := p.messages.SetTranscriptionStatus(ctx, messageId, entity.TranscriptionProcessing); err != nil {
		p.fail(ctx, message, err)
		return nil
	}
	p.pushStatus(ctx, message.Id, message.ChatId, entity.TranscriptionProcessing)

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	text, err := p.recognizer.Recognize(jobCtx, audio.FilePath)
	cancel()
	if err != nil {
		p.fail(ctx, message, err)
		return nil
	}

	if err := p.messages.SetTranscription(ctx, messageId, text); err != nil {
		p.fail(ctx, message, err)
		return nil
	}

	metrics.TranscriptionJobs.WithLabelValues(string(entity.TranscriptionCompleted)).Inc()

	payload := entity.TranscriptionEvent{
		MessageId:     message.Id,
		ChatId:        message.ChatId,
		Transcription: &text,
		Status:        entity.TranscriptionCompleted,
	}
	if err := p.notifier.PushToChat(ctx, message.ChatId, entity.EventTranscriptionCompleted, payload); err != nil {
		logger.Log.Warn("transcription completion push failed", "message", message.Id, "err", err)
	}

	return nil
}

// fail moves the message to the terminal failed status and pushes a
// single status event. Content is left untouched.
func (p *Pipeline) fail(ctx context.Context, message entity.Message, cause error) {
	logger.Log.Warn("transcription failed", "message", message.Id, "err", cause)

	if err := p.messages.SetTranscriptionStatus(ctx, message.Id, entity.TranscriptionFailed); err != nil {
		logger.Log.Warn("set failed status", "message", message.Id, "err", err)
	}

	metrics.TranscriptionJobs.WithLabelValues(string(entity.TranscriptionFailed)).Inc()
	p.pushStatus(ctx, message.Id, message.ChatId, entity.TranscriptionFailed)
}

func (p *Pipeline) failQuietly(ctx context.Context, messageId int64) {
	message, err := p.messages.GetById(ctx, messageId)
	if err != nil {
		return
	}
	p.fail(ctx, message, errors.New("job aborted"))
}

func (p *Pipeline) pushStatus(ctx context.Context, messageId int64, chatId string, status entity.TranscriptionStatus) {
	payload := entity.TranscriptionEvent{
		MessageId: messageId,
		ChatId:    chatId,
		Status:    status,
	}
	if err := p.notifier.PushToChat(ctx, chatId, entity.EventTranscriptionStatusChanged, payload); err != nil {
		logger.Log.Warn("transcription status push failed", "message", messageId, "err", err)
	}
}

package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/chaweee/BEventique-sub000/internal/models"
	"github.com/chaweee/BEventique-sub000/internal/repository"
	"go.uber.org/zap"
)

const (
	maxBodyRunes              = 10000
	DefaultMaxAttachmentBytes = 256 * 1024
)

// InquiryStore is implemented by repository.InquiryStore.
type InquiryStore interface {
	CreateThread(ctx context.Context, input repository.CreateThreadInput, first repository.CreateMessageInput) (*models.Thread, *models.Message, error)
	AppendMessage(ctx context.Context, input repository.CreateMessageInput) (*models.Message, *models.Thread, error)
	UpdateStatus(ctx context.Context, threadID int64, nextStatus models.ThreadStatus) (*models.Thread, error)
	AssignDesigner(ctx context.Context, threadID int64, designerID int64) (*models.Thread, error)
	MarkRead(ctx context.Context, threadID int64, reader models.Party) (*models.Thread, bool, error)
	GetThread(ctx context.Context, threadID int64) (*models.Thread, error)
	ListThreads(ctx context.Context, filter repository.ThreadListFilter) ([]models.Thread, error)
	ListMessages(ctx context.Context, threadID int64) ([]models.Message, error)
	FindThreadByAttachment(ctx context.Context, ref string) (*models.Thread, error)
}

// Notifier receives events after a write has committed. Implementations
// must not block and have no way to fail the write.
type Notifier interface {
	EmitNewMessage(threadID int64, message models.Message)
	EmitThreadUpdated(threadID int64)
}

type MessageService struct {
	store              InquiryStore
	notifier           Notifier
	logger             *zap.Logger
	maxAttachmentBytes int
}

type SendMessageInput struct {
	ThreadID   int64
	Body       string
	Attachment *string
}

func NewMessageService(
	store InquiryStore,
	notifier Notifier,
	logger *zap.Logger,
	maxAttachmentBytes int,
) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttachmentBytes <= 0 {
		maxAttachmentBytes = DefaultMaxAttachmentBytes
	}
	return &MessageService{
		store:              store,
		notifier:           notifier,
		logger:             logger,
		maxAttachmentBytes: maxAttachmentBytes,
	}
}

func (s *MessageService) SendMessage(
	ctx context.Context,
	caller Caller,
	input SendMessageInput,
) (*models.Message, error) {
	if err := authorize(caller, OpSendMessage, nil); err != nil {
		return nil, err
	}
	if input.ThreadID <= 0 {
		return nil, validationError("invalid thread id")
	}

	body, attachment, err := s.normalizeContent(input.Body, input.Attachment)
	if err != nil {
		return nil, err
	}

	thread, err := s.loadThread(ctx, input.ThreadID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, OpSendMessage, thread); err != nil {
		return nil, err
	}
	if thread.Status == models.StatusClosed {
		return nil, ErrThreadClosed
	}

	message, _, err := s.store.AppendMessage(ctx, repository.CreateMessageInput{
		ThreadID:   input.ThreadID,
		SenderID:   caller.UserID,
		SenderRole: caller.Role,
		Body:       body,
		Attachment: attachment,
	})
	if err != nil {
		return nil, s.mapStoreError("append_message", err)
	}

	messagesAppended.WithLabelValues(string(caller.Role)).Inc()
	s.publishMessage(*message)
	return message, nil
}

func (s *MessageService) ListMessages(
	ctx context.Context,
	caller Caller,
	threadID int64,
) ([]models.Message, error) {
	if err := authorize(caller, OpViewThread, nil); err != nil {
		return nil, err
	}
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, OpViewThread, thread); err != nil {
		return nil, err
	}

	messages, err := s.store.ListMessages(ctx, threadID)
	if err != nil {
		return nil, s.mapStoreError("list_messages", err)
	}
	return messages, nil
}

// MarkRead zeroes the caller party's unread counter. A second call finds the
// counter at zero and publishes nothing.
func (s *MessageService) MarkRead(
	ctx context.Context,
	caller Caller,
	threadID int64,
) (*models.Thread, error) {
	if err := authorize(caller, OpMarkRead, nil); err != nil {
		return nil, err
	}
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, OpMarkRead, thread); err != nil {
		return nil, err
	}

	updated, changed, err := s.store.MarkRead(ctx, threadID, caller.Role.Party())
	if err != nil {
		return nil, s.mapStoreError("mark_read", err)
	}
	if changed {
		s.notifier.EmitThreadUpdated(threadID)
	}
	return updated, nil
}

type openThreadInput struct {
	CustomerID int64
	DesignerID *int64
	BookingID  *int64
	Subject    string
	Sender     Caller
	Body       string
	Attachment *string
}

// openThread persists a thread together with its first message.
func (s *MessageService) openThread(ctx context.Context, input openThreadInput) (*models.Thread, error) {
	body, attachment, err := s.normalizeContent(input.Body, input.Attachment)
	if err != nil {
		return nil, err
	}

	thread, message, err := s.store.CreateThread(
		ctx,
		repository.CreateThreadInput{
			CustomerID: input.CustomerID,
			DesignerID: input.DesignerID,
			BookingID:  input.BookingID,
			Subject:    input.Subject,
		},
		repository.CreateMessageInput{
			SenderID:   input.Sender.UserID,
			SenderRole: input.Sender.Role,
			Body:       body,
			Attachment: attachment,
		},
	)
	if err != nil {
		return nil, s.mapStoreError("create_thread", err)
	}

	messagesAppended.WithLabelValues(string(input.Sender.Role)).Inc()
	s.publishMessage(*message)
	return thread, nil
}

func (s *MessageService) normalizeContent(body string, attachment *string) (string, *string, error) {
	trimmed := strings.TrimSpace(body)
	if utf8.RuneCountInString(trimmed) > maxBodyRunes {
		return "", nil, validationError("body exceeds %d characters", maxBodyRunes)
	}

	var normalized *string
	if attachment != nil {
		if value := strings.TrimSpace(*attachment); value != "" {
			if len(value) > s.maxAttachmentBytes {
				return "", nil, validationError("attachment exceeds %d bytes", s.maxAttachmentBytes)
			}
			normalized = &value
		}
	}

	if trimmed == "" && normalized == nil {
		return "", nil, validationError("body must not be empty")
	}
	return trimmed, normalized, nil
}

func (s *MessageService) loadThread(ctx context.Context, threadID int64) (*models.Thread, error) {
	if threadID <= 0 {
		return nil, validationError("invalid thread id")
	}
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, s.mapStoreError("get_thread", err)
	}
	return thread, nil
}

func (s *MessageService) publishMessage(message models.Message) {
	s.notifier.EmitNewMessage(message.ThreadID, message)
	s.notifier.EmitThreadUpdated(message.ThreadID)
}

func (s *MessageService) mapStoreError(op string, err error) error {
	return mapStoreError(s.logger, op, err)
}

func mapStoreError(logger *zap.Logger, op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrThreadNotFound
	case errors.Is(err, repository.ErrThreadClosed):
		return ErrThreadClosed
	case errors.Is(err, context.Canceled):
		return err
	default:
		storageFailures.WithLabelValues(op).Inc()
		logger.Error("inquiry store failure", zap.String("op", op), zap.Error(err))
		return &StorageError{Op: op, Err: err}
	}
}

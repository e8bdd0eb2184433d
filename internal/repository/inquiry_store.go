package repository

import (
	"context"
	"errors"

	"github.com/chaweee/BEventique-sub000/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InquiryStore groups the thread and message writes that must land in a
// single transaction: a message never exists without its counter update.
type InquiryStore struct {
	db       *pgxpool.Pool
	threads  *ThreadRepository
	messages *MessageRepository
}

func NewInquiryStore(db *pgxpool.Pool) *InquiryStore {
	return &InquiryStore{
		db:       db,
		threads:  NewThreadRepository(db),
		messages: NewMessageRepository(db),
	}
}

func (s *InquiryStore) CreateThread(
	ctx context.Context,
	input CreateThreadInput,
	first CreateMessageInput,
) (*models.Thread, *models.Message, error) {
	var (
		thread  *models.Thread
		message *models.Message
	)
	err := s.inTx(ctx, func(threads *ThreadRepository, messages *MessageRepository) error {
		created, err := threads.Create(ctx, input)
		if err != nil {
			return err
		}

		first.ThreadID = created.ID
		message, err = messages.Create(ctx, first)
		if err != nil {
			return err
		}

		thread, err = threads.IncrementUnread(ctx, created.ID, first.SenderRole.Party().Opposite())
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return thread, message, nil
}

// AppendMessage locks the thread row so a concurrent close cannot slip in
// between the status check and the insert.
func (s *InquiryStore) AppendMessage(
	ctx context.Context,
	input CreateMessageInput,
) (*models.Message, *models.Thread, error) {
	var (
		thread  *models.Thread
		message *models.Message
	)
	err := s.inTx(ctx, func(threads *ThreadRepository, messages *MessageRepository) error {
		current, err := threads.GetByIDForUpdate(ctx, input.ThreadID)
		if err != nil {
			return err
		}
		if current.Status == models.StatusClosed {
			return ErrThreadClosed
		}

		message, err = messages.Create(ctx, input)
		if err != nil {
			return err
		}

		thread, err = threads.IncrementUnread(ctx, input.ThreadID, input.SenderRole.Party().Opposite())
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return message, thread, nil
}

func (s *InquiryStore) UpdateStatus(
	ctx context.Context,
	threadID int64,
	nextStatus models.ThreadStatus,
) (*models.Thread, error) {
	thread, err := s.threads.UpdateStatusIfNotClosed(ctx, threadID, nextStatus)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if _, err := s.threads.GetByID(ctx, threadID); err != nil {
		return nil, err
	}
	return nil, ErrThreadClosed
}

func (s *InquiryStore) AssignDesigner(
	ctx context.Context,
	threadID int64,
	designerID int64,
) (*models.Thread, error) {
	return s.threads.AssignDesigner(ctx, threadID, designerID)
}

// MarkRead reports changed=false when the party's counter was already zero.
func (s *InquiryStore) MarkRead(
	ctx context.Context,
	threadID int64,
	reader models.Party,
) (*models.Thread, bool, error) {
	var (
		thread  *models.Thread
		changed bool
	)
	err := s.inTx(ctx, func(threads *ThreadRepository, messages *MessageRepository) error {
		reset, err := threads.ResetUnread(ctx, threadID, reader)
		switch {
		case err == nil:
			thread = reset
			changed = true
		case errors.Is(err, ErrNotFound):
			thread, err = threads.GetByID(ctx, threadID)
			if err != nil {
				return err
			}
		default:
			return err
		}

		return messages.MarkReadForParty(ctx, threadID, reader)
	})
	if err != nil {
		return nil, false, err
	}
	return thread, changed, nil
}

func (s *InquiryStore) GetThread(ctx context.Context, threadID int64) (*models.Thread, error) {
	return s.threads.GetByID(ctx, threadID)
}

func (s *InquiryStore) ListThreads(ctx context.Context, filter ThreadListFilter) ([]models.Thread, error) {
	return s.threads.List(ctx, filter)
}

func (s *InquiryStore) FindThreadByAttachment(ctx context.Context, ref string) (*models.Thread, error) {
	return s.threads.GetByAttachmentRef(ctx, ref)
}

func (s *InquiryStore) ListMessages(ctx context.Context, threadID int64) ([]models.Message, error) {
	if _, err := s.threads.GetByID(ctx, threadID); err != nil {
		return nil, err
	}
	return s.messages.ListByThread(ctx, threadID)
}

func (s *InquiryStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *InquiryStore) inTx(
	ctx context.Context,
	fn func(threads *ThreadRepository, messages *MessageRepository) error,
) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(NewThreadRepository(tx), NewMessageRepository(tx)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

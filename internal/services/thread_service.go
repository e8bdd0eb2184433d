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

const maxSubjectRunes = 200

type ThreadService struct {
	store      InquiryStore
	messages   *MessageService
	notifier   Notifier
	assignment *AssignmentPolicy
	logger     *zap.Logger
}

type CreateThreadInput struct {
	BookingID     *int64
	Subject       string
	RecipientType string
	Body          string
	Attachment    *string
}

type EscalateInput struct {
	CustomerID int64
	CreateThreadInput
}

func NewThreadService(
	store InquiryStore,
	messages *MessageService,
	notifier Notifier,
	assignment *AssignmentPolicy,
	logger *zap.Logger,
) *ThreadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThreadService{
		store:      store,
		messages:   messages,
		notifier:   notifier,
		assignment: assignment,
		logger:     logger,
	}
}

// CreateThread opens a thread owned by the calling customer.
func (s *ThreadService) CreateThread(
	ctx context.Context,
	caller Caller,
	input CreateThreadInput,
) (*models.Thread, error) {
	if err := authorize(caller, OpCreateThread, nil); err != nil {
		return nil, err
	}
	return s.open(ctx, caller.UserID, caller, input)
}

// Escalate synthesizes a thread on a customer's behalf. The admin authors
// the first message, so the customer side starts with one unread.
func (s *ThreadService) Escalate(
	ctx context.Context,
	caller Caller,
	input EscalateInput,
) (*models.Thread, error) {
	if err := authorize(caller, OpEscalate, nil); err != nil {
		return nil, err
	}
	if input.CustomerID <= 0 {
		return nil, validationError("invalid customer id")
	}
	return s.open(ctx, input.CustomerID, caller, input.CreateThreadInput)
}

func (s *ThreadService) open(
	ctx context.Context,
	customerID int64,
	sender Caller,
	input CreateThreadInput,
) (*models.Thread, error) {
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return nil, validationError("subject must not be empty")
	}
	if utf8.RuneCountInString(subject) > maxSubjectRunes {
		return nil, validationError("subject exceeds %d characters", maxSubjectRunes)
	}
	recipient, ok := models.ParseRecipientType(input.RecipientType)
	if !ok {
		return nil, validationError("recipient_type must be admin or designer")
	}
	if input.BookingID != nil && *input.BookingID <= 0 {
		return nil, validationError("invalid booking id")
	}

	thread, err := s.messages.openThread(ctx, openThreadInput{
		CustomerID: customerID,
		DesignerID: s.assignment.Pick(recipient),
		BookingID:  input.BookingID,
		Subject:    subject,
		Sender:     sender,
		Body:       input.Body,
		Attachment: input.Attachment,
	})
	if err != nil {
		return nil, err
	}

	threadsCreated.WithLabelValues(string(recipient)).Inc()
	s.logger.Info("inquiry thread opened",
		zap.Int64("thread_id", thread.ID),
		zap.Int64("customer_id", thread.CustomerID),
		zap.String("recipient", string(recipient)),
		zap.String("opened_by", string(sender.Role)),
	)
	return thread, nil
}

func (s *ThreadService) ListThreads(
	ctx context.Context,
	caller Caller,
	statusFilter string,
) ([]models.Thread, error) {
	if err := authorize(caller, OpListThreads, nil); err != nil {
		return nil, err
	}

	var filter repository.ThreadListFilter
	if raw := strings.TrimSpace(statusFilter); raw != "" {
		status, ok := models.ParseThreadStatus(raw)
		if !ok {
			return nil, validationError("unknown status %q", raw)
		}
		filter.Status = &status
	}

	switch caller.Role {
	case models.RoleCustomer:
		filter.CustomerID = &caller.UserID
	case models.RoleDesigner:
		filter.DesignerID = &caller.UserID
	}

	threads, err := s.store.ListThreads(ctx, filter)
	if err != nil {
		return nil, mapStoreError(s.logger, "list_threads", err)
	}
	return threads, nil
}

func (s *ThreadService) GetThread(ctx context.Context, caller Caller, threadID int64) (*models.Thread, error) {
	if err := authorize(caller, OpViewThread, nil); err != nil {
		return nil, err
	}
	thread, err := s.messages.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, OpViewThread, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

// AuthorizeJoin applies the viewing rule to realtime room joins.
func (s *ThreadService) AuthorizeJoin(ctx context.Context, caller Caller, threadID int64) error {
	_, err := s.GetThread(ctx, caller, threadID)
	return err
}

func (s *ThreadService) UpdateStatus(
	ctx context.Context,
	caller Caller,
	threadID int64,
	requestedStatus string,
) (*models.Thread, error) {
	if err := authorize(caller, OpUpdateStatus, nil); err != nil {
		return nil, err
	}
	nextStatus, ok := models.ParseThreadStatus(requestedStatus)
	if !ok {
		return nil, validationError("unknown status %q", strings.TrimSpace(requestedStatus))
	}
	if nextStatus == models.StatusClosed {
		if err := authorize(caller, OpCloseThread, nil); err != nil {
			return nil, err
		}
	}

	thread, err := s.messages.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, OpUpdateStatus, thread); err != nil {
		return nil, err
	}
	if err := validateStatusTransition(thread.Status, nextStatus); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateStatus(ctx, threadID, nextStatus)
	if err != nil {
		if errors.Is(err, repository.ErrThreadClosed) {
			return nil, ErrInvalidTransition
		}
		return nil, mapStoreError(s.logger, "update_status", err)
	}

	statusTransitions.WithLabelValues(string(nextStatus)).Inc()
	s.logger.Info("inquiry thread status changed",
		zap.Int64("thread_id", threadID),
		zap.String("from", string(thread.Status)),
		zap.String("to", string(nextStatus)),
		zap.String("by_role", string(caller.Role)),
	)
	s.notifier.EmitThreadUpdated(threadID)
	return updated, nil
}

func (s *ThreadService) AssignDesigner(
	ctx context.Context,
	caller Caller,
	threadID int64,
	designerID int64,
) (*models.Thread, error) {
	if err := authorize(caller, OpAssignDesigner, nil); err != nil {
		return nil, err
	}
	if designerID <= 0 {
		return nil, validationError("invalid designer id")
	}
	if threadID <= 0 {
		return nil, validationError("invalid thread id")
	}

	updated, err := s.store.AssignDesigner(ctx, threadID, designerID)
	if err != nil {
		return nil, mapStoreError(s.logger, "assign_designer", err)
	}

	s.notifier.EmitThreadUpdated(threadID)
	return updated, nil
}

// validateStatusTransition: the three live states form a free lattice and
// closed is terminal. Role rules for closing are checked by the caller.
func validateStatusTransition(current, next models.ThreadStatus) error {
	if current == models.StatusClosed {
		return ErrInvalidTransition
	}
	if !next.IsLive() && next != models.StatusClosed {
		return ErrInvalidTransition
	}
	return nil
}

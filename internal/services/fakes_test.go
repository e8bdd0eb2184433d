package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chaweee/BEventique-sub000/internal/models"
	"github.com/chaweee/BEventique-sub000/internal/repository"
)

// memoryStore mirrors the transactional rules of repository.InquiryStore.
type memoryStore struct {
	mu       sync.Mutex
	threads  map[int64]*models.Thread
	messages map[int64][]models.Message
	nextID   int64
	clock    time.Time
	failWith error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		threads:  make(map[int64]*models.Thread),
		messages: make(map[int64][]models.Message),
		clock:    time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (s *memoryStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memoryStore) CreateThread(
	_ context.Context,
	input repository.CreateThreadInput,
	first repository.CreateMessageInput,
) (*models.Thread, *models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, nil, s.failWith
	}

	now := s.tick()
	thread := &models.Thread{
		ID:         s.id(),
		CustomerID: input.CustomerID,
		DesignerID: input.DesignerID,
		BookingID:  input.BookingID,
		Subject:    input.Subject,
		Status:     models.StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.threads[thread.ID] = thread

	first.ThreadID = thread.ID
	message := s.appendLocked(first)
	copied := *thread
	return &copied, &message, nil
}

func (s *memoryStore) AppendMessage(
	_ context.Context,
	input repository.CreateMessageInput,
) (*models.Message, *models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, nil, s.failWith
	}

	thread, ok := s.threads[input.ThreadID]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	if thread.Status == models.StatusClosed {
		return nil, nil, repository.ErrThreadClosed
	}

	message := s.appendLocked(input)
	copied := *thread
	return &message, &copied, nil
}

func (s *memoryStore) appendLocked(input repository.CreateMessageInput) models.Message {
	now := s.tick()
	message := models.Message{
		ID:         s.id(),
		ThreadID:   input.ThreadID,
		SenderID:   input.SenderID,
		SenderRole: input.SenderRole,
		Body:       input.Body,
		Attachment: input.Attachment,
		CreatedAt:  now,
	}
	s.messages[input.ThreadID] = append(s.messages[input.ThreadID], message)

	thread := s.threads[input.ThreadID]
	if input.SenderRole.Party() == models.PartyCustomer {
		thread.UnreadForStaff++
	} else {
		thread.UnreadForCustomer++
	}
	thread.UpdatedAt = now
	return message
}

func (s *memoryStore) UpdateStatus(
	_ context.Context,
	threadID int64,
	nextStatus models.ThreadStatus,
) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	thread, ok := s.threads[threadID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if thread.Status == models.StatusClosed {
		return nil, repository.ErrThreadClosed
	}
	thread.Status = nextStatus
	thread.UpdatedAt = s.tick()
	copied := *thread
	return &copied, nil
}

func (s *memoryStore) AssignDesigner(_ context.Context, threadID int64, designerID int64) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	thread, ok := s.threads[threadID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	thread.DesignerID = &designerID
	copied := *thread
	return &copied, nil
}

func (s *memoryStore) MarkRead(_ context.Context, threadID int64, reader models.Party) (*models.Thread, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, false, s.failWith
	}

	thread, ok := s.threads[threadID]
	if !ok {
		return nil, false, repository.ErrNotFound
	}

	changed := false
	if reader == models.PartyCustomer && thread.UnreadForCustomer != 0 {
		thread.UnreadForCustomer = 0
		changed = true
	}
	if reader == models.PartyStaff && thread.UnreadForStaff != 0 {
		thread.UnreadForStaff = 0
		changed = true
	}
	for i := range s.messages[threadID] {
		if s.messages[threadID][i].SenderRole.Party() != reader {
			s.messages[threadID][i].IsRead = true
		}
	}

	copied := *thread
	return &copied, changed, nil
}

func (s *memoryStore) GetThread(_ context.Context, threadID int64) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	thread, ok := s.threads[threadID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *thread
	return &copied, nil
}

func (s *memoryStore) ListThreads(_ context.Context, filter repository.ThreadListFilter) ([]models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	var out []models.Thread
	for _, thread := range s.threads {
		if filter.CustomerID != nil && thread.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.DesignerID != nil && (thread.DesignerID == nil || *thread.DesignerID != *filter.DesignerID) {
			continue
		}
		if filter.Status != nil && thread.Status != *filter.Status {
			continue
		}
		out = append(out, *thread)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *memoryStore) ListMessages(_ context.Context, threadID int64) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	if _, ok := s.threads[threadID]; !ok {
		return nil, repository.ErrNotFound
	}
	return append([]models.Message(nil), s.messages[threadID]...), nil
}

func (s *memoryStore) FindThreadByAttachment(_ context.Context, ref string) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	var owner *models.Message
	for threadID := range s.messages {
		for i := range s.messages[threadID] {
			message := &s.messages[threadID][i]
			if message.Attachment == nil || *message.Attachment != ref {
				continue
			}
			if owner == nil || message.ID < owner.ID {
				owner = message
			}
		}
	}
	if owner == nil {
		return nil, repository.ErrNotFound
	}
	copied := *s.threads[owner.ThreadID]
	return &copied, nil
}

func (s *memoryStore) thread(threadID int64) models.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.threads[threadID]
}

type recordedEvent struct {
	Type     string
	ThreadID int64
	Message  *models.Message
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) EmitNewMessage(threadID int64, message models.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{Type: "new_message", ThreadID: threadID, Message: &message})
}

func (n *recordingNotifier) EmitThreadUpdated(threadID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{Type: "thread_updated", ThreadID: threadID})
}

func (n *recordingNotifier) take() []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.events
	n.events = nil
	return out
}

type inquiryFixture struct {
	store    *memoryStore
	notifier *recordingNotifier
	messages *MessageService
	threads  *ThreadService
}

func newInquiryFixture(designers ...int64) *inquiryFixture {
	store := newMemoryStore()
	notifier := &recordingNotifier{}
	assignment, err := NewAssignmentPolicy("", designers)
	if err != nil {
		panic(err)
	}
	messages := NewMessageService(store, notifier, nil, 0)
	return &inquiryFixture{
		store:    store,
		notifier: notifier,
		messages: messages,
		threads:  NewThreadService(store, messages, notifier, assignment, nil),
	}
}

var (
	customer      = Caller{UserID: 100, Role: models.RoleCustomer}
	otherCustomer = Caller{UserID: 101, Role: models.RoleCustomer}
	designer      = Caller{UserID: 7, Role: models.RoleDesigner}
	otherDesigner = Caller{UserID: 8, Role: models.RoleDesigner}
	admin         = Caller{UserID: 1, Role: models.RoleAdmin}
)

func stringPtr(value string) *string {
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

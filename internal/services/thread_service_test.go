package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chaweee/BEventique-sub000/internal/models"
)

func TestInquiryLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newInquiryFixture()
	customer7 := Caller{UserID: 7, Role: models.RoleCustomer}
	designer3 := Caller{UserID: 3, Role: models.RoleDesigner}

	thread, err := f.threads.CreateThread(ctx, customer7, CreateThreadInput{
		BookingID:     int64Ptr(42),
		Subject:       "Layout question",
		RecipientType: "admin",
		Body:          "Can we change the tent color?",
	})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if thread.Status != models.StatusOpen || thread.UnreadForStaff != 1 || thread.UnreadForCustomer != 0 {
		t.Fatalf("unexpected new thread: %+v", thread)
	}
	if thread.BookingID == nil || *thread.BookingID != 42 || thread.DesignerID != nil {
		t.Fatalf("unexpected references: %+v", thread)
	}

	if _, err := f.messages.SendMessage(ctx, admin, SendMessageInput{ThreadID: thread.ID, Body: "Sure, what color?"}); err != nil {
		t.Fatalf("admin SendMessage: %v", err)
	}
	current := f.store.thread(thread.ID)
	if current.UnreadForCustomer != 1 || current.UnreadForStaff != 1 {
		t.Fatalf("replying must not reset the sender side: %+v", current)
	}

	read, err := f.messages.MarkRead(ctx, customer7, thread.ID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if read.UnreadForCustomer != 0 || read.UnreadForStaff != 1 {
		t.Fatalf("unexpected counters after mark read: %+v", read)
	}

	assigned, err := f.threads.AssignDesigner(ctx, admin, thread.ID, 3)
	if err != nil {
		t.Fatalf("AssignDesigner: %v", err)
	}
	if assigned.DesignerID == nil || *assigned.DesignerID != 3 || assigned.Status != models.StatusOpen {
		t.Fatalf("unexpected assignment: %+v", assigned)
	}

	inProgress, err := f.threads.UpdateStatus(ctx, designer3, thread.ID, "in_progress")
	if err != nil {
		t.Fatalf("designer UpdateStatus: %v", err)
	}
	if inProgress.Status != models.StatusInProgress {
		t.Fatalf("expected in_progress, got %q", inProgress.Status)
	}

	closed, err := f.threads.UpdateStatus(ctx, admin, thread.ID, "closed")
	if err != nil {
		t.Fatalf("admin close: %v", err)
	}
	if closed.Status != models.StatusClosed {
		t.Fatalf("expected closed, got %q", closed.Status)
	}

	_, err = f.messages.SendMessage(ctx, customer7, SendMessageInput{ThreadID: thread.ID, Body: "One more thing"})
	if !errors.Is(err, ErrThreadClosed) {
		t.Fatalf("expected ErrThreadClosed, got %v", err)
	}
}

func TestCreateThreadValidation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateThreadInput
	}{
		{name: "blank subject", input: CreateThreadInput{Subject: "   ", RecipientType: "admin", Body: "hi"}},
		{name: "long subject", input: CreateThreadInput{Subject: strings.Repeat("s", maxSubjectRunes+1), RecipientType: "admin", Body: "hi"}},
		{name: "unknown recipient", input: CreateThreadInput{Subject: "Tent", RecipientType: "florist", Body: "hi"}},
		{name: "blank body", input: CreateThreadInput{Subject: "Tent", RecipientType: "admin", Body: " \n\t"}},
		{name: "bad booking", input: CreateThreadInput{Subject: "Tent", RecipientType: "admin", Body: "hi", BookingID: int64Ptr(0)}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newInquiryFixture()
			_, err := f.threads.CreateThread(context.Background(), customer, tc.input)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if len(f.store.threads) != 0 {
				t.Fatalf("rejected thread must not be persisted")
			}
			if len(f.notifier.take()) != 0 {
				t.Fatalf("rejected thread must not publish")
			}
		})
	}
}

func TestCreateThreadOnlyForCustomers(t *testing.T) {
	f := newInquiryFixture()
	for _, caller := range []Caller{designer, admin} {
		_, err := f.threads.CreateThread(context.Background(), caller, CreateThreadInput{
			Subject: "Tent", RecipientType: "admin", Body: "hi",
		})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden for %s, got %v", caller.Role, err)
		}
	}
}

func TestCreateThreadPublishesFirstMessage(t *testing.T) {
	f := newInquiryFixture()
	thread, err := f.threads.CreateThread(context.Background(), customer, CreateThreadInput{
		Subject: "  Tent colors  ", RecipientType: "admin", Body: " blue? ",
	})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if thread.Subject != "Tent colors" {
		t.Fatalf("expected trimmed subject, got %q", thread.Subject)
	}

	events := f.notifier.take()
	if len(events) != 2 || events[0].Type != "new_message" || events[1].Type != "thread_updated" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].Message.Body != "blue?" || events[0].ThreadID != thread.ID {
		t.Fatalf("unexpected first message event: %+v", events[0].Message)
	}
}

func TestCreateThreadAssignsDesignerRoundRobin(t *testing.T) {
	f := newInquiryFixture(7, 8)
	ctx := context.Background()
	var assigned []int64
	for i := 0; i < 3; i++ {
		thread, err := f.threads.CreateThread(ctx, customer, CreateThreadInput{
			Subject: "Layout", RecipientType: "designer", Body: "hi",
		})
		if err != nil {
			t.Fatalf("CreateThread: %v", err)
		}
		if thread.DesignerID == nil {
			t.Fatalf("expected a designer to be assigned")
		}
		assigned = append(assigned, *thread.DesignerID)
	}
	if assigned[0] != 7 || assigned[1] != 8 || assigned[2] != 7 {
		t.Fatalf("unexpected rotation: %v", assigned)
	}

	adminThread, err := f.threads.CreateThread(ctx, customer, CreateThreadInput{
		Subject: "Billing", RecipientType: "admin", Body: "hi",
	})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if adminThread.DesignerID != nil {
		t.Fatalf("admin-bound threads start unassigned")
	}
}

func TestEscalateCreatesThreadOnCustomerBehalf(t *testing.T) {
	f := newInquiryFixture()
	thread, err := f.threads.Escalate(context.Background(), admin, EscalateInput{
		CustomerID: customer.UserID,
		CreateThreadInput: CreateThreadInput{
			Subject: "Venue change", RecipientType: "admin", Body: "Your venue moved to Hall B.",
		},
	})
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if thread.CustomerID != customer.UserID || thread.UnreadForCustomer != 1 || thread.UnreadForStaff != 0 {
		t.Fatalf("unexpected escalated thread: %+v", thread)
	}

	threads, err := f.threads.ListThreads(context.Background(), customer, "")
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("customer should see the escalated thread")
	}

	if _, err := f.threads.Escalate(context.Background(), designer, EscalateInput{CustomerID: 1}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for designer, got %v", err)
	}
	if _, err := f.threads.Escalate(context.Background(), admin, EscalateInput{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation without customer, got %v", err)
	}
}

func TestListThreadsScopesByRole(t *testing.T) {
	ctx := context.Background()
	f := newInquiryFixture(designer.UserID)

	mine, err := f.threads.CreateThread(ctx, customer, CreateThreadInput{Subject: "A", RecipientType: "designer", Body: "a"})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	theirs, err := f.threads.CreateThread(ctx, otherCustomer, CreateThreadInput{Subject: "B", RecipientType: "admin", Body: "b"})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	customerThreads, err := f.threads.ListThreads(ctx, customer, "")
	if err != nil {
		t.Fatalf("ListThreads customer: %v", err)
	}
	if len(customerThreads) != 1 || customerThreads[0].ID != mine.ID {
		t.Fatalf("customer must only see own threads: %+v", customerThreads)
	}

	designerThreads, err := f.threads.ListThreads(ctx, designer, "")
	if err != nil {
		t.Fatalf("ListThreads designer: %v", err)
	}
	if len(designerThreads) != 1 || designerThreads[0].ID != mine.ID {
		t.Fatalf("designer must only see assigned threads: %+v", designerThreads)
	}

	adminThreads, err := f.threads.ListThreads(ctx, admin, "")
	if err != nil {
		t.Fatalf("ListThreads admin: %v", err)
	}
	if len(adminThreads) != 2 || adminThreads[0].ID != theirs.ID {
		t.Fatalf("admin sees everything, most recent first: %+v", adminThreads)
	}

	filtered, err := f.threads.ListThreads(ctx, admin, "in-progress")
	if err != nil {
		t.Fatalf("ListThreads filtered: %v", err)
	}
	if len(filtered) != 0 {
		t.Fatalf("expected no in_progress threads, got %d", len(filtered))
	}
	if _, err := f.threads.ListThreads(ctx, admin, "archived"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown status, got %v", err)
	}
}

func TestGetThreadRequiresScope(t *testing.T) {
	ctx := context.Background()
	f := newInquiryFixture()
	thread, err := f.threads.CreateThread(ctx, customer, CreateThreadInput{Subject: "A", RecipientType: "admin", Body: "a"})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	if _, err := f.threads.GetThread(ctx, otherCustomer, thread.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for other customer, got %v", err)
	}
	if _, err := f.threads.GetThread(ctx, designer, thread.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for unassigned designer, got %v", err)
	}
	if _, err := f.threads.GetThread(ctx, admin, thread.ID+100); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}
	if err := f.threads.AuthorizeJoin(ctx, customer, thread.ID); err != nil {
		t.Fatalf("owner should be able to join: %v", err)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		caller  Caller
		steps   []string
		wantErr error
	}{
		{name: "designer moves freely among live states", caller: designer, steps: []string{"in_progress", "resolved", "open", "resolved"}},
		{name: "same status is accepted", caller: designer, steps: []string{"open"}},
		{name: "designer cannot close", caller: designer, steps: []string{"closed"}, wantErr: ErrForbidden},
		{name: "customer cannot change status", caller: customer, steps: []string{"resolved"}, wantErr: ErrForbidden},
		{name: "unknown status", caller: admin, steps: []string{"archived"}, wantErr: ErrValidation},
		{name: "customer with unknown status is forbidden", caller: customer, steps: []string{"archived"}, wantErr: ErrForbidden},
		{name: "closed is terminal", caller: admin, steps: []string{"closed", "open"}, wantErr: ErrInvalidTransition},
		{name: "closed to closed is rejected", caller: admin, steps: []string{"closed", "closed"}, wantErr: ErrInvalidTransition},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newInquiryFixture(designer.UserID)
			thread, err := f.threads.CreateThread(ctx, customer, CreateThreadInput{Subject: "A", RecipientType: "designer", Body: "a"})
			if err != nil {
				t.Fatalf("CreateThread: %v", err)
			}
			f.notifier.take()

			var lastErr error
			for _, step := range tc.steps {
				before := f.store.thread(thread.ID)
				updated, err := f.threads.UpdateStatus(ctx, tc.caller, thread.ID, step)
				lastErr = err
				if err != nil {
					break
				}
				if !updated.UpdatedAt.After(before.UpdatedAt) {
					t.Fatalf("status change must bump updated_at")
				}
			}

			if tc.wantErr == nil && lastErr != nil {
				t.Fatalf("unexpected error: %v", lastErr)
			}
			if tc.wantErr != nil && !errors.Is(lastErr, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, lastErr)
			}
		})
	}
}

func TestUpdateStatusEmitsThreadUpdated(t *testing.T) {
	ctx := context.Background()
	f := newInquiryFixture(designer.UserID)
	thread, err := f.threads.CreateThread(ctx, customer, CreateThreadInput{Subject: "A", RecipientType: "designer", Body: "a"})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	f.notifier.take()

	if _, err := f.threads.UpdateStatus(ctx, otherDesigner, thread.ID, "resolved"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for unassigned designer, got %v", err)
	}
	if len(f.notifier.take()) != 0 {
		t.Fatalf("rejected change must not publish")
	}

	if _, err := f.threads.UpdateStatus(ctx, designer, thread.ID, "resolved"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	events := f.notifier.take()
	if len(events) != 1 || events[0].Type != "thread_updated" || events[0].ThreadID != thread.ID {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestAssignDesignerIsAdminOnlyAndKeepsStatus(t *testing.T) {
	ctx := context.Background()
	f := newInquiryFixture()
	thread, err := f.threads.CreateThread(ctx, customer, CreateThreadInput{Subject: "A", RecipientType: "admin", Body: "a"})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if _, err := f.threads.UpdateStatus(ctx, admin, thread.ID, "closed"); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := f.threads.AssignDesigner(ctx, designer, thread.ID, 7); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.threads.AssignDesigner(ctx, admin, thread.ID, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := f.threads.AssignDesigner(ctx, admin, thread.ID+50, 7); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}

	updated, err := f.threads.AssignDesigner(ctx, admin, thread.ID, 7)
	if err != nil {
		t.Fatalf("AssignDesigner: %v", err)
	}
	if updated.Status != models.StatusClosed || *updated.DesignerID != 7 {
		t.Fatalf("assignment must not touch status: %+v", updated)
	}
}

func TestStoreFailureSurfacesAsStorageError(t *testing.T) {
	f := newInquiryFixture()
	f.store.failWith = errors.New("connection reset")

	_, err := f.threads.CreateThread(context.Background(), customer, CreateThreadInput{Subject: "A", RecipientType: "admin", Body: "a"})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	var storageErr *StorageError
	if !errors.As(err, &storageErr) || storageErr.Op != "create_thread" {
		t.Fatalf("expected StorageError with op, got %#v", err)
	}
	if len(f.notifier.take()) != 0 {
		t.Fatalf("failed writes must not publish")
	}
}

func TestValidateStatusTransition(t *testing.T) {
	if err := validateStatusTransition(models.StatusResolved, models.StatusOpen); err != nil {
		t.Fatalf("expected live transition to pass: %v", err)
	}
	if err := validateStatusTransition(models.StatusClosed, models.StatusClosed); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected closed to be terminal, got %v", err)
	}
}

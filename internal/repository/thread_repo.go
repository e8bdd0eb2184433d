package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/chaweee/BEventique-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

const threadColumns = `id, customer_id, designer_id, booking_id, subject, status,
	unread_for_customer, unread_for_staff, created_at, updated_at`

type CreateThreadInput struct {
	CustomerID int64
	DesignerID *int64
	BookingID  *int64
	Subject    string
}

type ThreadListFilter struct {
	CustomerID *int64
	DesignerID *int64
	Status     *models.ThreadStatus
}

type ThreadRepository struct {
	db DBTX
}

func NewThreadRepository(db DBTX) *ThreadRepository {
	return &ThreadRepository{db: db}
}

func (r *ThreadRepository) Create(ctx context.Context, input CreateThreadInput) (*models.Thread, error) {
	query := `
		INSERT INTO threads (customer_id, designer_id, booking_id, subject, status)
		VALUES ($1, $2, $3, $4, 'open')
		RETURNING ` + threadColumns

	return scanThread(r.db.QueryRow(
		ctx,
		query,
		input.CustomerID,
		input.DesignerID,
		input.BookingID,
		input.Subject,
	))
}

func (r *ThreadRepository) GetByID(ctx context.Context, threadID int64) (*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE id = $1`

	thread, err := scanThread(r.db.QueryRow(ctx, query, threadID))
	if err != nil {
		return nil, normalizeNotFound(err)
	}
	return thread, nil
}

// GetByAttachmentRef returns the thread of the earliest message carrying ref.
// Later messages repeating the same ref do not change the owner.
func (r *ThreadRepository) GetByAttachmentRef(ctx context.Context, ref string) (*models.Thread, error) {
	query := `
		SELECT ` + threadColumns + `
		FROM threads
		WHERE id = (
			SELECT thread_id FROM messages
			WHERE attachment_ref = $1
			ORDER BY created_at, id
			LIMIT 1
		)`

	thread, err := scanThread(r.db.QueryRow(ctx, query, ref))
	if err != nil {
		return nil, normalizeNotFound(err)
	}
	return thread, nil
}

func (r *ThreadRepository) GetByIDForUpdate(ctx context.Context, threadID int64) (*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE id = $1 FOR UPDATE`

	thread, err := scanThread(r.db.QueryRow(ctx, query, threadID))
	if err != nil {
		return nil, normalizeNotFound(err)
	}
	return thread, nil
}

func (r *ThreadRepository) List(ctx context.Context, filter ThreadListFilter) ([]models.Thread, error) {
	args := []any{}
	whereParts := []string{"TRUE"}

	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		whereParts = append(whereParts, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.DesignerID != nil {
		args = append(args, *filter.DesignerID)
		whereParts = append(whereParts, fmt.Sprintf("designer_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM threads
		WHERE %s
		ORDER BY updated_at DESC, id DESC
	`, threadColumns, strings.Join(whereParts, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	threads := make([]models.Thread, 0)
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, *thread)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return threads, nil
}

// IncrementUnread bumps the counter owned by party and touches updated_at.
// updated_at never moves backwards even if the clock does.
func (r *ThreadRepository) IncrementUnread(
	ctx context.Context,
	threadID int64,
	party models.Party,
) (*models.Thread, error) {
	column := unreadColumn(party)
	query := fmt.Sprintf(`
		UPDATE threads
		SET %[1]s = %[1]s + 1,
		    updated_at = GREATEST(updated_at, clock_timestamp())
		WHERE id = $1
		RETURNING %[2]s
	`, column, threadColumns)

	thread, err := scanThread(r.db.QueryRow(ctx, query, threadID))
	if err != nil {
		return nil, normalizeNotFound(err)
	}
	return thread, nil
}

// UpdateStatusIfNotClosed returns ErrNotFound when the thread is missing or
// already closed; callers disambiguate with GetByID.
func (r *ThreadRepository) UpdateStatusIfNotClosed(
	ctx context.Context,
	threadID int64,
	nextStatus models.ThreadStatus,
) (*models.Thread, error) {
	query := `
		UPDATE threads
		SET status = $2,
		    updated_at = GREATEST(updated_at, clock_timestamp())
		WHERE id = $1 AND status <> 'closed'
		RETURNING ` + threadColumns

	thread, err := scanThread(r.db.QueryRow(ctx, query, threadID, string(nextStatus)))
	if err != nil {
		return nil, normalizeNotFound(err)
	}
	return thread, nil
}

func (r *ThreadRepository) AssignDesigner(
	ctx context.Context,
	threadID int64,
	designerID int64,
) (*models.Thread, error) {
	query := `
		UPDATE threads
		SET designer_id = $2
		WHERE id = $1
		RETURNING ` + threadColumns

	thread, err := scanThread(r.db.QueryRow(ctx, query, threadID, designerID))
	if err != nil {
		return nil, normalizeNotFound(err)
	}
	return thread, nil
}

// ResetUnread zeroes the party's counter. It returns ErrNotFound when the
// thread is missing or the counter was already zero.
func (r *ThreadRepository) ResetUnread(
	ctx context.Context,
	threadID int64,
	party models.Party,
) (*models.Thread, error) {
	column := unreadColumn(party)
	query := fmt.Sprintf(`
		UPDATE threads
		SET %[1]s = 0
		WHERE id = $1 AND %[1]s <> 0
		RETURNING %[2]s
	`, column, threadColumns)

	thread, err := scanThread(r.db.QueryRow(ctx, query, threadID))
	if err != nil {
		return nil, normalizeNotFound(err)
	}
	return thread, nil
}

func unreadColumn(party models.Party) string {
	if party == models.PartyCustomer {
		return "unread_for_customer"
	}
	return "unread_for_staff"
}

func scanThread(row pgx.Row) (*models.Thread, error) {
	var thread models.Thread
	var status string
	if err := row.Scan(
		&thread.ID,
		&thread.CustomerID,
		&thread.DesignerID,
		&thread.BookingID,
		&thread.Subject,
		&status,
		&thread.UnreadForCustomer,
		&thread.UnreadForStaff,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	); err != nil {
		return nil, err
	}
	thread.Status = models.ThreadStatus(status)
	return &thread, nil
}

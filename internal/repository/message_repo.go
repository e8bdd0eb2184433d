package repository

import (
	"context"

	"github.com/chaweee/BEventique-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

const messageColumns = `id, thread_id, sender_id, sender_role, body, attachment_ref, is_read, created_at`

type CreateMessageInput struct {
	ThreadID   int64
	SenderID   int64
	SenderRole models.Role
	Body       string
	Attachment *string
}

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create stamps created_at with clock_timestamp() so that messages written
// inside one long transaction still get distinct, increasing timestamps.
func (r *MessageRepository) Create(ctx context.Context, input CreateMessageInput) (*models.Message, error) {
	query := `
		INSERT INTO messages (thread_id, sender_id, sender_role, body, attachment_ref, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, clock_timestamp())
		RETURNING ` + messageColumns

	return scanMessage(r.db.QueryRow(
		ctx,
		query,
		input.ThreadID,
		input.SenderID,
		string(input.SenderRole),
		input.Body,
		input.Attachment,
	))
}

func (r *MessageRepository) ListByThread(ctx context.Context, threadID int64) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE thread_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// MarkReadForParty flags every unread message the reader's party did not
// author. Staff roles read each other's messages as their own.
func (r *MessageRepository) MarkReadForParty(
	ctx context.Context,
	threadID int64,
	reader models.Party,
) error {
	query := `
		UPDATE messages
		SET is_read = TRUE
		WHERE thread_id = $1
		  AND is_read = FALSE
		  AND sender_role <> 'customer'
	`
	if reader == models.PartyStaff {
		query = `
			UPDATE messages
			SET is_read = TRUE
			WHERE thread_id = $1
			  AND is_read = FALSE
			  AND sender_role = 'customer'
		`
	}

	_, err := r.db.Exec(ctx, query, threadID)
	return err
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var message models.Message
	var role string
	if err := row.Scan(
		&message.ID,
		&message.ThreadID,
		&message.SenderID,
		&role,
		&message.Body,
		&message.Attachment,
		&message.IsRead,
		&message.CreatedAt,
	); err != nil {
		return nil, err
	}
	message.SenderRole = models.Role(role)
	return &message, nil
}

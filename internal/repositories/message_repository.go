package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, conversation_id, sender_id, body, attachments, client_msg_id, created_at`

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, bool, error)
	ListMessages(ctx context.Context, conversationID int, beforeID int64, limit int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message. When the sender already stored a message with
// the same client_msg_id in this conversation, that message is returned and the
// created flag is false.
func (r *MessageRepo) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, bool, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, body, attachments, client_msg_id)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (conversation_id, sender_id, client_msg_id) WHERE client_msg_id IS NOT NULL DO NOTHING
        RETURNING `+messageColumns,
		in.ConversationID, in.SenderID, in.Body, in.Attachments, in.ClientMsgID).StructScan(&msg)
	if err == nil {
		return msg, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) || in.ClientMsgID == nil {
		return models.Message{}, false, err
	}

	err = r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_id=$1 AND sender_id=$2 AND client_msg_id=$3`, in.ConversationID, in.SenderID, *in.ClientMsgID)
	if err != nil {
		return models.Message{}, false, err
	}
	return msg, false, nil
}

// ListMessages returns up to limit messages, newest first. A positive beforeID
// restricts the page to ids strictly lower than it.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID int, beforeID int64, limit int) ([]models.Message, error) {
	var msgs []models.Message
	var err error
	if beforeID > 0 {
		err = r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
            WHERE conversation_id=$1 AND id < $2
            ORDER BY id DESC LIMIT $3`, conversationID, beforeID, limit)
	} else {
		err = r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
            WHERE conversation_id=$1
            ORDER BY id DESC LIMIT $2`, conversationID, limit)
	}
	return msgs, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrParticipantNotFound  = errors.New("participant not found")
)

const uniqueViolation = "23505"

// ConversationRepository abstracts conversation and participant persistence.
type ConversationRepository interface {
	FindOrCreateDirect(ctx context.Context, userID int, peerID int) (models.Conversation, bool, error)
	CreateGroup(ctx context.Context, ownerID int, title *string, memberIDs []int) (models.Conversation, error)
	AddMembers(ctx context.Context, conversationID int, memberIDs []int) (int, error)
	GetConversation(ctx context.Context, conversationID int) (models.Conversation, error)
	GetParticipant(ctx context.Context, conversationID int, userID int) (models.Participant, error)
	IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error)
	ListParticipantIDs(ctx context.Context, conversationID int) ([]int, error)
	ListForUser(ctx context.Context, userID int) ([]models.ConversationRow, error)
	DeleteConversation(ctx context.Context, conversationID int) error
	UpdateReadCursor(ctx context.Context, conversationID int, userID int, lastMessageID int64) (int64, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// DirectKey is the order-independent identity of a direct conversation.
func DirectKey(userID, peerID int) string {
	pair := []int{userID, peerID}
	sort.Ints(pair)
	return fmt.Sprintf("%d:%d", pair[0], pair[1])
}

// FindOrCreateDirect returns the direct conversation between the two users,
// creating it when absent. Concurrent callers for the same pair are serialized
// by a transaction-scoped advisory lock; the unique direct_key is the backstop.
func (r *ConversationRepo) FindOrCreateDirect(ctx context.Context, userID int, peerID int) (models.Conversation, bool, error) {
	if userID == peerID {
		return models.Conversation{}, false, errors.New("cannot create conversation with self")
	}
	key := DirectKey(userID, peerID)

	conv, created, err := r.findOrCreateDirectTx(ctx, key, userID, peerID)
	if err != nil && isUniqueViolation(err) {
		// lost the race against a writer that bypassed the lock; read the winner
		conv, err = r.getDirect(ctx, r.db, key)
		return conv, false, err
	}
	return conv, created, err
}

func (r *ConversationRepo) findOrCreateDirectTx(ctx context.Context, key string, userID, peerID int) (conv models.Conversation, created bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return models.Conversation{}, false, fmt.Errorf("lock direct pair: %w", err)
	}

	conv, err = r.getDirect(ctx, tx, key)
	switch {
	case err == nil:
		if err = tx.Commit(); err != nil {
			return models.Conversation{}, false, err
		}
		return conv, false, nil
	case !errors.Is(err, ErrConversationNotFound):
		return models.Conversation{}, false, err
	}

	if err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (is_group, direct_key) VALUES (FALSE, $1)
        RETURNING id, is_group, title, created_at`, key).StructScan(&conv); err != nil {
		return models.Conversation{}, false, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, role)
        VALUES ($1, $2, 'member'), ($1, $3, 'member')`, conv.ID, userID, peerID); err != nil {
		return models.Conversation{}, false, err
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, false, err
	}
	return conv, true, nil
}

func (r *ConversationRepo) getDirect(ctx context.Context, q sqlx.QueryerContext, key string) (models.Conversation, error) {
	var conv models.Conversation
	err := sqlx.GetContext(ctx, q, &conv, `SELECT id, is_group, title, created_at FROM conversations WHERE direct_key=$1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// CreateGroup creates a group and its members atomically. The owner becomes admin.
func (r *ConversationRepo) CreateGroup(ctx context.Context, ownerID int, title *string, memberIDs []int) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var conv models.Conversation
	if err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (is_group, title) VALUES (TRUE, $1)
        RETURNING id, is_group, title, created_at`, title).StructScan(&conv); err != nil {
		return models.Conversation{}, err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, role) VALUES ($1, $2, 'admin')`, conv.ID, ownerID); err != nil {
		return models.Conversation{}, err
	}
	for _, id := range memberIDs {
		if id == ownerID {
			continue
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, role) VALUES ($1, $2, 'member')
            ON CONFLICT (conversation_id, user_id) DO NOTHING`, conv.ID, id); err != nil {
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// AddMembers inserts new member rows and skips users already present.
func (r *ConversationRepo) AddMembers(ctx context.Context, conversationID int, memberIDs []int) (int, error) {
	if len(memberIDs) == 0 {
		return 0, nil
	}
	ids := make([]int64, 0, len(memberIDs))
	for _, id := range memberIDs {
		ids = append(ids, int64(id))
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, role)
        SELECT $1, unnest($2::int[]), 'member'
        ON CONFLICT (conversation_id, user_id) DO NOTHING`, conversationID, pq.Int64Array(ids))
	if err != nil {
		return 0, err
	}
	added, err := res.RowsAffected()
	return int(added), err
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT id, is_group, title, created_at FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// GetParticipant fetches a membership row.
func (r *ConversationRepo) GetParticipant(ctx context.Context, conversationID int, userID int) (models.Participant, error) {
	var p models.Participant
	err := r.db.GetContext(ctx, &p, `SELECT conversation_id, user_id, role, last_read_message_id, joined_at
        FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, ErrParticipantNotFound
	}
	return p, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`, conversationID, userID)
	return exists, err
}

// ListParticipantIDs returns the user ids of every participant.
func (r *ConversationRepo) ListParticipantIDs(ctx context.Context, conversationID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM conversation_participants WHERE conversation_id=$1 ORDER BY user_id`, conversationID)
	return ids, err
}

// ListForUser returns one row per conversation of the user with its latest
// message, direct peer, favorite flag and unread count.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int) ([]models.ConversationRow, error) {
	query := `SELECT c.id, c.is_group, c.title, c.created_at,
            peer.user_id AS peer_id,
            (cf.user_id IS NOT NULL) AS is_favorite,
            (SELECT COUNT(*) FROM messages u
                WHERE u.conversation_id = c.id
                AND u.id > COALESCE(me.last_read_message_id, 0)
                AND u.sender_id <> $1) AS unread_count,
            lm.id AS lm_id, lm.sender_id AS lm_sender_id, lm.body AS lm_body,
            lm.attachments AS lm_attachments, lm.created_at AS lm_created_at
        FROM conversations c
        JOIN conversation_participants me ON me.conversation_id = c.id AND me.user_id = $1
        LEFT JOIN LATERAL (
            SELECT m.id, m.sender_id, m.body, m.attachments, m.created_at
            FROM messages m WHERE m.conversation_id = c.id
            ORDER BY m.id DESC LIMIT 1
        ) lm ON TRUE
        LEFT JOIN conversation_participants peer
            ON peer.conversation_id = c.id AND peer.user_id <> $1 AND c.is_group = FALSE
        LEFT JOIN conversation_favorites cf ON cf.conversation_id = c.id AND cf.user_id = $1
        ORDER BY is_favorite DESC, (lm.id IS NULL) ASC, lm.created_at DESC NULLS LAST, c.created_at DESC, c.id DESC`
	var rows []models.ConversationRow
	err := r.db.SelectContext(ctx, &rows, query, userID)
	return rows, err
}

// DeleteConversation removes messages, participants and favorites, then the conversation.
func (r *ConversationRepo) DeleteConversation(ctx context.Context, conversationID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		`DELETE FROM messages WHERE conversation_id=$1`,
		`DELETE FROM conversation_participants WHERE conversation_id=$1`,
		`DELETE FROM conversation_favorites WHERE conversation_id=$1`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, conversationID); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id=$1`, conversationID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		err = ErrConversationNotFound
		return err
	}
	return tx.Commit()
}

// UpdateReadCursor moves the read cursor forward, never backward, and returns its value.
func (r *ConversationRepo) UpdateReadCursor(ctx context.Context, conversationID int, userID int, lastMessageID int64) (int64, error) {
	var cursor int64
	err := r.db.GetContext(ctx, &cursor, `UPDATE conversation_participants
        SET last_read_message_id = GREATEST(COALESCE(last_read_message_id, 0), $3)
        WHERE conversation_id=$1 AND user_id=$2
        RETURNING last_read_message_id`, conversationID, userID, lastMessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrParticipantNotFound
	}
	return cursor, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

// Message origins, used as a metrics label.
const (
	OriginREST   = "rest"
	OriginSocket = "socket"
	OriginUpload = "upload"
)

// SendInput is everything needed to append a message.
type SendInput struct {
	ConversationID int
	SenderID       int
	Body           *string
	Attachments    models.Attachments
	ClientMsgID    *string
	Origin         string
	Headers        map[string]string
}

// SendResult is the stored message; Created is false for a repeated client_msg_id.
type SendResult struct {
	Message models.Message
	Created bool
}

// Ledger appends and pages messages and maintains read cursors.
type Ledger struct {
	convRepo repositories.ConversationRepository
	msgRepo  repositories.MessageRepository
	delivery *Delivery
}

// NewLedger constructs a Ledger.
func NewLedger(convRepo repositories.ConversationRepository, msgRepo repositories.MessageRepository, delivery *Delivery) *Ledger {
	return &Ledger{convRepo: convRepo, msgRepo: msgRepo, delivery: delivery}
}

// Send validates and stores a message, then hands it to delivery.
func (l *Ledger) Send(ctx context.Context, in SendInput) (SendResult, error) {
	body := trimmedOrNil(in.Body)
	clientMsgID := trimmedOrNil(in.ClientMsgID)

	if body == nil && len(in.Attachments) == 0 {
		return SendResult{}, ErrInvalidMessage
	}
	for _, att := range in.Attachments {
		if !att.Type.Valid() || strings.TrimSpace(att.URL) == "" {
			return SendResult{}, ErrInvalidMessage
		}
	}

	if err := requireParticipant(ctx, l.convRepo, in.ConversationID, in.SenderID); err != nil {
		return SendResult{}, err
	}

	msg, created, err := l.msgRepo.CreateMessage(ctx, models.NewMessage{
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Body:           body,
		Attachments:    in.Attachments,
		ClientMsgID:    clientMsgID,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("store message: %w", err)
	}

	if created {
		observability.IncMessageStored(originOrDefault(in.Origin))
		l.delivery.MessageStored(ctx, msg, in.Headers)
	}
	return SendResult{Message: msg, Created: created}, nil
}

// Page returns up to limit messages older than before, ascending by id.
func (l *Ledger) Page(ctx context.Context, conversationID, requester, limit int, before int64) ([]models.Message, error) {
	if err := requireParticipant(ctx, l.convRepo, conversationID, requester); err != nil {
		return nil, err
	}

	msgs, err := l.msgRepo.ListMessages(ctx, conversationID, before, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// MarkRead advances the user's read cursor and announces the effective value.
func (l *Ledger) MarkRead(ctx context.Context, conversationID, userID int, lastMessageID int64) (int64, error) {
	if err := requireParticipant(ctx, l.convRepo, conversationID, userID); err != nil {
		return 0, err
	}
	if lastMessageID < 0 {
		lastMessageID = 0
	}

	cursor, err := l.convRepo.UpdateReadCursor(ctx, conversationID, userID, lastMessageID)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return 0, ErrForbidden
		}
		return 0, fmt.Errorf("update read cursor: %w", err)
	}

	l.delivery.ReadReceipt(conversationID, userID, cursor)
	return cursor, nil
}

// Authorize reports whether userID may act on the conversation.
func (l *Ledger) Authorize(ctx context.Context, conversationID, userID int) error {
	return requireParticipant(ctx, l.convRepo, conversationID, userID)
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	if limit < 1 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func originOrDefault(origin string) string {
	if origin == "" {
		return OriginREST
	}
	return origin
}

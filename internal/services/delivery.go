package services

import (
	"context"
	"log"
	"time"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

const RoutingKeyMessageCreated = "chat.message.created"

// Fanout emits socket events to every session in a room.
type Fanout interface {
	EmitToRoom(room string, event models.SocketEvent, exceptSessionID string) (delivered, dropped int)
}

// Delivery turns stored messages and receipts into realtime events.
// Failures are logged and counted, never returned.
type Delivery struct {
	fanout   Fanout
	convRepo repositories.ConversationRepository
	events   *observability.EventBus
}

// NewDelivery constructs a Delivery. A nil fanout or event bus disables that output.
func NewDelivery(fanout Fanout, convRepo repositories.ConversationRepository, events *observability.EventBus) *Delivery {
	return &Delivery{fanout: fanout, convRepo: convRepo, events: events}
}

// MessageStored emits the flattened feed events and the full record for msg.
func (d *Delivery) MessageStored(ctx context.Context, msg models.Message, headers map[string]string) {
	if d == nil {
		return
	}

	convRoom := models.ConversationRoom(msg.ConversationID)
	for _, item := range FlattenMessage(msg) {
		d.emit(convRoom, models.EventMessageCreated, item, "")
	}

	full := models.MessageNewEvent{ConversationID: msg.ConversationID, Message: msg}
	d.emit(convRoom, models.EventMessageNew, full, "")

	if d.convRepo != nil {
		participants, err := d.convRepo.ListParticipantIDs(ctx, msg.ConversationID)
		if err != nil {
			log.Printf("delivery: list participants failed: conversation_id=%d err=%v", msg.ConversationID, err)
		}
		for _, userID := range participants {
			d.emit(models.UserRoom(userID), models.EventMessageNew, full, "")
		}
	}

	_ = d.events.Publish(ctx, RoutingKeyMessageCreated, models.EventMessageCreated, msg, headers)
}

// ReadReceipt announces a participant's effective read cursor to the conversation room.
func (d *Delivery) ReadReceipt(conversationID, userID int, lastMessageID int64) {
	if d == nil {
		return
	}
	d.emit(models.ConversationRoom(conversationID), models.EventMessagesRead, models.ReadReceiptEvent{
		ConversationID: conversationID,
		UserID:         userID,
		LastMessageID:  lastMessageID,
	}, "")
}

// Typing rebroadcasts a typing indicator to everyone in the room except the sender's session.
func (d *Delivery) Typing(conversationID, userID int, isTyping bool, exceptSessionID string) {
	if d == nil {
		return
	}
	d.emit(models.ConversationRoom(conversationID), models.EventTyping, models.TypingEvent{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	}, exceptSessionID)
}

func (d *Delivery) emit(room, event string, data interface{}, exceptSessionID string) {
	if d.fanout == nil {
		return
	}
	delivered, dropped := d.fanout.EmitToRoom(room, models.SocketEvent{Event: event, Data: data}, exceptSessionID)
	observability.AddFanoutDeliveries(event, delivered, dropped)
	if dropped > 0 {
		log.Printf("delivery: dropped events: room=%s event=%s dropped=%d", room, event, dropped)
	}
}

// FlattenMessage splits a message into one feed item per logical unit: the text
// body when present, then each attachment in order.
func FlattenMessage(msg models.Message) []models.MessageCreatedEvent {
	createdAt := msg.CreatedAt.UTC().Format(time.RFC3339)
	items := make([]models.MessageCreatedEvent, 0, len(msg.Attachments)+1)

	if msg.Body != nil && *msg.Body != "" {
		items = append(items, models.MessageCreatedEvent{
			ID:             msg.ID,
			SenderID:       msg.SenderID,
			ConversationID: msg.ConversationID,
			Type:           "text",
			Text:           *msg.Body,
			CreatedAt:      createdAt,
			ClientMsgID:    msg.ClientMsgID,
		})
	}
	for _, att := range msg.Attachments {
		items = append(items, models.MessageCreatedEvent{
			ID:             msg.ID,
			SenderID:       msg.SenderID,
			ConversationID: msg.ConversationID,
			Type:           string(att.Type),
			URL:            att.URL,
			Name:           att.Name,
			Mime:           att.Mime,
			Size:           att.Size,
			CreatedAt:      createdAt,
			ClientMsgID:    msg.ClientMsgID,
		})
	}
	return items
}

package models

import (
	"encoding/json"
	"fmt"
)

// Client to server socket events.
const (
	EventJoinConversation       = "conversation.join"
	EventJoinConversationLegacy = "join_conversation"
	EventLeaveConversation      = "conversation.leave"
	EventSendMessage            = "message.send"
)

// Events flowing in both directions or server to client only.
const (
	EventTyping         = "typing"
	EventMessagesRead   = "messages.read"
	EventMessageCreated = "message.created"
	EventMessageNew     = "message.new"
	EventError          = "error"
)

// SocketEvent is the frame written to websocket clients.
type SocketEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// InboundFrame is a frame read from a websocket client.
type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// MessageCreatedEvent is the flattened, one-item-per-unit feed event.
type MessageCreatedEvent struct {
	ID             int64   `json:"id"`
	SenderID       int     `json:"sender_id"`
	ConversationID int     `json:"conversation_id"`
	Type           string  `json:"type"`
	Text           string  `json:"text,omitempty"`
	URL            string  `json:"url,omitempty"`
	Name           string  `json:"name,omitempty"`
	Mime           string  `json:"mime,omitempty"`
	Size           int64   `json:"size,omitempty"`
	CreatedAt      string  `json:"created_at"`
	ClientMsgID    *string `json:"client_msg_id"`
}

// MessageNewEvent carries the complete stored record.
type MessageNewEvent struct {
	ConversationID int     `json:"conversation_id"`
	Message        Message `json:"message"`
}

// TypingEvent is rebroadcast to the other sessions of a conversation room.
type TypingEvent struct {
	ConversationID int  `json:"conversation_id"`
	UserID         int  `json:"user_id"`
	IsTyping       bool `json:"is_typing"`
}

// ReadReceiptEvent announces a participant's read cursor.
type ReadReceiptEvent struct {
	ConversationID int   `json:"conversation_id"`
	UserID         int   `json:"user_id"`
	LastMessageID  int64 `json:"last_message_id"`
}

// ErrorEvent is sent to the session whose frame was rejected.
type ErrorEvent struct {
	Code        string  `json:"code"`
	Message     string  `json:"message"`
	ClientMsgID *string `json:"client_msg_id,omitempty"`
}

// UserRoom is the personal room every session of a user joins.
func UserRoom(userID int) string {
	return fmt.Sprintf("user:%d", userID)
}

// ConversationRoom is the room of active viewers of a conversation.
func ConversationRoom(conversationID int) string {
	return fmt.Sprintf("conv:%d", conversationID)
}

package models

import "time"

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Conversation is either a direct (two-user) conversation or a group.
type Conversation struct {
	ID        int       `db:"id" json:"id"`
	IsGroup   bool      `db:"is_group" json:"is_group"`
	Title     *string   `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Participant is a user's membership in a conversation.
type Participant struct {
	ConversationID    int       `db:"conversation_id" json:"conversation_id"`
	UserID            int       `db:"user_id" json:"user_id"`
	Role              string    `db:"role" json:"role"`
	LastReadMessageID *int64    `db:"last_read_message_id" json:"last_read_message_id"`
	JoinedAt          time.Time `db:"joined_at" json:"joined_at"`
}

// IsAdmin reports whether the participant may manage the group.
func (p Participant) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// ConversationRow is one row of a user's conversation listing as read from the store.
type ConversationRow struct {
	ID              int         `db:"id"`
	IsGroup         bool        `db:"is_group"`
	Title           *string     `db:"title"`
	CreatedAt       time.Time   `db:"created_at"`
	PeerID          *int        `db:"peer_id"`
	IsFavorite      bool        `db:"is_favorite"`
	UnreadCount     int         `db:"unread_count"`
	LastMessageID   *int64      `db:"lm_id"`
	LastSenderID    *int        `db:"lm_sender_id"`
	LastBody        *string     `db:"lm_body"`
	LastAttachments Attachments `db:"lm_attachments"`
	LastCreatedAt   *time.Time  `db:"lm_created_at"`
}

// LastMessage is the preview of the most recent message in a conversation.
type LastMessage struct {
	ID          int64       `json:"id"`
	SenderID    int         `json:"sender_id"`
	Body        *string     `json:"body"`
	Attachments Attachments `json:"attachments"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ConversationSummary is the API view of a conversation for one user.
type ConversationSummary struct {
	ID          int          `json:"id"`
	IsGroup     bool         `json:"is_group"`
	Title       *string      `json:"title"`
	Peer        *UserProfile `json:"peer"`
	DisplayName string       `json:"display_name"`
	IsFavorite  bool         `json:"is_favorite"`
	UnreadCount int          `json:"unread_count"`
	LastMessage *LastMessage `json:"last_message"`
	CreatedAt   time.Time    `json:"created_at"`
}

// UserProfile is the public part of an account, owned by the account service.
type UserProfile struct {
	ID        int     `db:"id" json:"id"`
	FirstName string  `db:"first_name" json:"first_name"`
	LastName  string  `db:"last_name" json:"last_name"`
	Phone     string  `db:"phone" json:"phone"`
	PhotoURL  *string `db:"photo_url" json:"photo_url"`
}

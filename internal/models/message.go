package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AttachmentType classifies an attachment for rendering.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
	AttachmentFile  AttachmentType = "file"
)

// Valid reports whether t is a known attachment type.
func (t AttachmentType) Valid() bool {
	switch t {
	case AttachmentImage, AttachmentVideo, AttachmentFile:
		return true
	}
	return false
}

// AttachmentTypeForMime maps a MIME type to an attachment type.
func AttachmentTypeForMime(mime string) AttachmentType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return AttachmentImage
	case strings.HasPrefix(mime, "video/"):
		return AttachmentVideo
	default:
		return AttachmentFile
	}
}

// Attachment describes a media reference carried by a message.
type Attachment struct {
	Type AttachmentType `json:"type"`
	URL  string         `json:"url"`
	Name string         `json:"name"`
	Size int64          `json:"size"`
	Mime string         `json:"mime"`
}

// Attachments is stored as a JSONB array; nil maps to SQL NULL.
type Attachments []Attachment

// Value implements driver.Valuer.
func (a Attachments) Value() (driver.Value, error) {
	if len(a) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal([]Attachment(a))
	if err != nil {
		return nil, err
	}
	// string, not []byte: lib/pq would send bytes as bytea
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (a *Attachments) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		return a.unmarshal(v)
	case string:
		return a.unmarshal([]byte(v))
	default:
		return fmt.Errorf("attachments: unsupported source %T", src)
	}
}

func (a *Attachments) unmarshal(data []byte) error {
	var out []Attachment
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("attachments: %w", err)
	}
	if len(out) == 0 {
		out = nil
	}
	*a = out
	return nil
}

// Message is an immutable entry in a conversation.
type Message struct {
	ID             int64       `db:"id" json:"id"`
	ConversationID int         `db:"conversation_id" json:"conversation_id"`
	SenderID       int         `db:"sender_id" json:"sender_id"`
	Body           *string     `db:"body" json:"body"`
	Attachments    Attachments `db:"attachments" json:"attachments"`
	ClientMsgID    *string     `db:"client_msg_id" json:"client_msg_id,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// NewMessage is the input to the message store.
type NewMessage struct {
	ConversationID int
	SenderID       int
	Body           *string
	Attachments    Attachments
	ClientMsgID    *string
}

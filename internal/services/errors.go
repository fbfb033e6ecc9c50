package services

import "errors"

var (
	ErrForbidden        = errors.New("not a conversation participant")
	ErrNotFound         = errors.New("conversation not found")
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	ErrPeerNotFound     = errors.New("peer not found")
	ErrInvalidPhone     = errors.New("invalid phone number")
	ErrInvalidMessage   = errors.New("message requires a body or attachments")
	ErrNotAGroup        = errors.New("conversation is not a group")
	ErrAlreadyFavorite  = errors.New("conversation already in favorites")
)

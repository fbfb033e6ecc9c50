package services

import (
	"context"
	"errors"
	"fmt"

	"messaging-service/internal/repositories"
)

// requireParticipant returns nil for members, ErrNotFound when the conversation
// does not exist, and ErrForbidden otherwise.
func requireParticipant(ctx context.Context, repo repositories.ConversationRepository, conversationID, userID int) error {
	if conversationID <= 0 {
		return ErrNotFound
	}
	member, err := repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if member {
		return nil
	}
	if _, err := repo.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load conversation: %w", err)
	}
	return ErrForbidden
}

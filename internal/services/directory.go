package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"messaging-service/internal/models"
	"messaging-service/internal/phone"
	"messaging-service/internal/repositories"
)

// DirectResult describes the outcome of resolving a direct conversation.
type DirectResult struct {
	Conversation models.Conversation `json:"conversation"`
	Created      bool                `json:"created"`
	Peer         models.UserProfile  `json:"peer"`
	DisplayName  string              `json:"display_name"`
}

// Directory resolves, creates, lists and deletes conversations.
type Directory struct {
	convRepo    repositories.ConversationRepository
	favRepo     repositories.FavoriteRepository
	users       repositories.UserDirectory
	phoneRegion string
}

// NewDirectory constructs a Directory.
func NewDirectory(convRepo repositories.ConversationRepository, favRepo repositories.FavoriteRepository, users repositories.UserDirectory, phoneRegion string) *Directory {
	return &Directory{
		convRepo:    convRepo,
		favRepo:     favRepo,
		users:       users,
		phoneRegion: phoneRegion,
	}
}

// FindOrCreateDirect returns the unique direct conversation between me and peer.
func (d *Directory) FindOrCreateDirect(ctx context.Context, me, peerID int) (DirectResult, error) {
	if me == peerID {
		return DirectResult{}, ErrSelfConversation
	}
	peer, err := d.users.GetUser(ctx, peerID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return DirectResult{}, ErrPeerNotFound
		}
		return DirectResult{}, fmt.Errorf("load peer: %w", err)
	}
	return d.findOrCreateDirect(ctx, me, peer)
}

// FindOrCreateDirectByPhone resolves the peer by phone number first.
func (d *Directory) FindOrCreateDirectByPhone(ctx context.Context, me int, rawPhone string) (DirectResult, error) {
	number, err := phone.Normalize(rawPhone, d.phoneRegion)
	if err != nil {
		return DirectResult{}, ErrInvalidPhone
	}
	peer, err := d.users.FindByPhone(ctx, number)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return DirectResult{}, ErrPeerNotFound
		}
		return DirectResult{}, fmt.Errorf("find peer by phone: %w", err)
	}
	if peer.ID == me {
		return DirectResult{}, ErrSelfConversation
	}
	return d.findOrCreateDirect(ctx, me, peer)
}

func (d *Directory) findOrCreateDirect(ctx context.Context, me int, peer models.UserProfile) (DirectResult, error) {
	conv, created, err := d.convRepo.FindOrCreateDirect(ctx, me, peer.ID)
	if err != nil {
		return DirectResult{}, fmt.Errorf("find or create direct: %w", err)
	}
	return DirectResult{
		Conversation: conv,
		Created:      created,
		Peer:         peer,
		DisplayName:  directDisplayName(conv.ID, &peer),
	}, nil
}

// CreateGroup creates a group with the creator as admin and the deduplicated members.
func (d *Directory) CreateGroup(ctx context.Context, me int, title *string, memberIDs []int) (models.Conversation, error) {
	if title != nil {
		trimmed := strings.TrimSpace(*title)
		if trimmed == "" {
			title = nil
		} else {
			title = &trimmed
		}
	}

	conv, err := d.convRepo.CreateGroup(ctx, me, title, dedupeMembers(me, memberIDs))
	if err != nil {
		return models.Conversation{}, fmt.Errorf("create group: %w", err)
	}
	return conv, nil
}

// AddMembers adds users to a group. Only admins may add members.
func (d *Directory) AddMembers(ctx context.Context, conversationID, requester int, memberIDs []int) (int, error) {
	participant, err := d.convRepo.GetParticipant(ctx, conversationID, requester)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return 0, requireParticipant(ctx, d.convRepo, conversationID, requester)
		}
		return 0, fmt.Errorf("load participant: %w", err)
	}

	conv, err := d.convRepo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("load conversation: %w", err)
	}
	if !conv.IsGroup {
		return 0, ErrNotAGroup
	}
	if !participant.IsAdmin() {
		return 0, ErrForbidden
	}

	added, err := d.convRepo.AddMembers(ctx, conversationID, dedupeMembers(requester, memberIDs))
	if err != nil {
		return 0, fmt.Errorf("add members: %w", err)
	}
	return added, nil
}

// Delete removes a conversation for everyone. Any participant may delete.
func (d *Directory) Delete(ctx context.Context, conversationID, requester int) error {
	if err := requireParticipant(ctx, d.convRepo, conversationID, requester); err != nil {
		return err
	}
	if err := d.convRepo.DeleteConversation(ctx, conversationID); err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// ListForUser returns the user's conversations in display order.
func (d *Directory) ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	rows, err := d.convRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	peerIDs := make([]int, 0, len(rows))
	seen := map[int]struct{}{}
	for _, row := range rows {
		if row.PeerID == nil {
			continue
		}
		if _, ok := seen[*row.PeerID]; !ok {
			seen[*row.PeerID] = struct{}{}
			peerIDs = append(peerIDs, *row.PeerID)
		}
	}

	peers := map[int]models.UserProfile{}
	if len(peerIDs) > 0 {
		users, err := d.users.BulkUsers(ctx, peerIDs)
		if err != nil {
			return nil, fmt.Errorf("load peers: %w", err)
		}
		for _, u := range users {
			peers[u.ID] = u
		}
	}

	out := make([]models.ConversationSummary, 0, len(rows))
	for _, row := range rows {
		summary := models.ConversationSummary{
			ID:          row.ID,
			IsGroup:     row.IsGroup,
			Title:       row.Title,
			IsFavorite:  row.IsFavorite,
			UnreadCount: row.UnreadCount,
			CreatedAt:   row.CreatedAt,
		}
		if row.PeerID != nil {
			if peer, ok := peers[*row.PeerID]; ok {
				summary.Peer = &peer
			}
		}
		if row.LastMessageID != nil && row.LastCreatedAt != nil {
			last := &models.LastMessage{
				ID:          *row.LastMessageID,
				Body:        row.LastBody,
				Attachments: row.LastAttachments,
				CreatedAt:   *row.LastCreatedAt,
			}
			if row.LastSenderID != nil {
				last.SenderID = *row.LastSenderID
			}
			summary.LastMessage = last
		}
		summary.DisplayName = DisplayName(summary)
		out = append(out, summary)
	}

	SortSummaries(out)
	return out, nil
}

// ListFavorites returns the user's favorited conversation ids, newest first.
func (d *Directory) ListFavorites(ctx context.Context, userID int) ([]int, error) {
	ids, err := d.favRepo.ListFavoriteIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return ids, nil
}

// ToggleFavorite flips the bookmark and reports whether it is now set.
func (d *Directory) ToggleFavorite(ctx context.Context, userID, conversationID int) (bool, error) {
	if err := requireParticipant(ctx, d.convRepo, conversationID, userID); err != nil {
		return false, err
	}
	favorited, err := d.favRepo.ToggleFavorite(ctx, userID, conversationID)
	if err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	return favorited, nil
}

// AddFavorite bookmarks a conversation the user participates in.
func (d *Directory) AddFavorite(ctx context.Context, userID, conversationID int) error {
	if err := requireParticipant(ctx, d.convRepo, conversationID, userID); err != nil {
		return err
	}
	if err := d.favRepo.AddFavorite(ctx, userID, conversationID); err != nil {
		if errors.Is(err, repositories.ErrAlreadyFavorite) {
			return ErrAlreadyFavorite
		}
		return fmt.Errorf("add favorite: %w", err)
	}
	return nil
}

// RemoveFavorite deletes the bookmark; removing an absent bookmark succeeds.
func (d *Directory) RemoveFavorite(ctx context.Context, userID, conversationID int) error {
	if err := d.favRepo.RemoveFavorite(ctx, userID, conversationID); err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	return nil
}

// DisplayName picks the label shown for a conversation.
func DisplayName(s models.ConversationSummary) string {
	if s.IsGroup {
		if s.Title != nil && strings.TrimSpace(*s.Title) != "" {
			return *s.Title
		}
		return fmt.Sprintf("Group #%d", s.ID)
	}
	return directDisplayName(s.ID, s.Peer)
}

func directDisplayName(conversationID int, peer *models.UserProfile) string {
	if peer != nil {
		if name := strings.TrimSpace(strings.TrimSpace(peer.FirstName) + " " + strings.TrimSpace(peer.LastName)); name != "" {
			return name
		}
		if p := strings.TrimSpace(peer.Phone); p != "" {
			return p
		}
	}
	return fmt.Sprintf("Conversation #%d", conversationID)
}

// SortSummaries orders favorites first, then conversations with messages, then
// by last message time, conversation creation time and id, all descending.
func SortSummaries(list []models.ConversationSummary) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.IsFavorite != b.IsFavorite {
			return a.IsFavorite
		}
		aHas, bHas := a.LastMessage != nil, b.LastMessage != nil
		if aHas != bHas {
			return aHas
		}
		if aHas && !a.LastMessage.CreatedAt.Equal(b.LastMessage.CreatedAt) {
			return a.LastMessage.CreatedAt.After(b.LastMessage.CreatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// dedupeMembers drops duplicates, non-positive ids and the owner, keeping input order.
func dedupeMembers(ownerID int, memberIDs []int) []int {
	seen := map[int]struct{}{ownerID: {}}
	out := make([]int, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

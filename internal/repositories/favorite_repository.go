package repositories

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrAlreadyFavorite = errors.New("conversation already in favorites")

// FavoriteRepository stores per-user conversation bookmarks.
type FavoriteRepository interface {
	ListFavoriteIDs(ctx context.Context, userID int) ([]int, error)
	AddFavorite(ctx context.Context, userID int, conversationID int) error
	RemoveFavorite(ctx context.Context, userID int, conversationID int) error
	ToggleFavorite(ctx context.Context, userID int, conversationID int) (bool, error)
}

// FavoriteRepo is a sqlx implementation of FavoriteRepository.
type FavoriteRepo struct {
	db *sqlx.DB
}

// NewFavoriteRepo constructs a FavoriteRepo.
func NewFavoriteRepo(db *sqlx.DB) *FavoriteRepo {
	return &FavoriteRepo{db: db}
}

// ListFavoriteIDs returns favorited conversation ids, newest first.
func (r *FavoriteRepo) ListFavoriteIDs(ctx context.Context, userID int) ([]int, error) {
	ids := []int{}
	err := r.db.SelectContext(ctx, &ids, `SELECT conversation_id FROM conversation_favorites
        WHERE user_id=$1 ORDER BY created_at DESC, conversation_id DESC`, userID)
	return ids, err
}

// AddFavorite bookmarks a conversation; a duplicate yields ErrAlreadyFavorite.
func (r *FavoriteRepo) AddFavorite(ctx context.Context, userID int, conversationID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO conversation_favorites (user_id, conversation_id) VALUES ($1, $2)`, userID, conversationID)
	if isUniqueViolation(err) {
		return ErrAlreadyFavorite
	}
	return err
}

// RemoveFavorite deletes the bookmark if present.
func (r *FavoriteRepo) RemoveFavorite(ctx context.Context, userID int, conversationID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM conversation_favorites WHERE user_id=$1 AND conversation_id=$2`, userID, conversationID)
	return err
}

// ToggleFavorite flips the bookmark and reports whether it is now set.
func (r *FavoriteRepo) ToggleFavorite(ctx context.Context, userID int, conversationID int) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM conversation_favorites WHERE user_id=$1 AND conversation_id=$2`, userID, conversationID)
	if err != nil {
		return false, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if removed == 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_favorites (user_id, conversation_id) VALUES ($1, $2)
            ON CONFLICT (user_id, conversation_id) DO NOTHING`, userID, conversationID); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return removed == 0, nil
}

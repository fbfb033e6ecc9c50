package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

const userColumns = `id, COALESCE(first_name, '') AS first_name, COALESCE(last_name, '') AS last_name,
    COALESCE(phone, '') AS phone, photo_url`

// UserDirectory is a read-only view of the account service's users.
type UserDirectory interface {
	GetUser(ctx context.Context, userID int) (models.UserProfile, error)
	FindByPhone(ctx context.Context, phone string) (models.UserProfile, error)
	BulkUsers(ctx context.Context, ids []int) ([]models.UserProfile, error)
}

// UserRepo reads profiles from the shared users table.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches one profile.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.UserProfile, error) {
	var u models.UserProfile
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserProfile{}, ErrUserNotFound
	}
	return u, err
}

// FindByPhone looks a user up by E.164 phone number.
func (r *UserRepo) FindByPhone(ctx context.Context, phone string) (models.UserProfile, error) {
	var u models.UserProfile
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE phone=$1 LIMIT 1`, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserProfile{}, ErrUserNotFound
	}
	return u, err
}

// BulkUsers fetches multiple profiles in one query. Unknown ids are skipped.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []int) ([]models.UserProfile, error) {
	if len(ids) == 0 {
		return []models.UserProfile{}, nil
	}
	id64s := make([]int64, 0, len(ids))
	for _, id := range ids {
		id64s = append(id64s, int64(id))
	}

	var users []models.UserProfile
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, pq.Int64Array(id64s))
	return users, err
}

package postgres

import (
	"context"
	"database/sql"
	"errors"

	"todoflow/application/ports"
	"todoflow/domain/core/entities"
	pkgerrors "todoflow/pkg/errors"
)

// UserRepository implements ports.UserRepository on PostgreSQL.
type UserRepository struct {
	db *sql.DB
}

var _ ports.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Get(ctx context.Context, uid string) (*entities.User, error) {
	var (
		u         entities.User
		photo     sql.NullString
		lastLogin sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT uid, email, display_name, photo_url, created_at, last_login_at
		FROM users WHERE uid = $1`, uid,
	).Scan(&u.UID, &u.Email, &u.DisplayName, &photo, &u.CreatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("user")
	}
	if err != nil {
		return nil, dbError("get user", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	if photo.Valid {
		u.PhotoURL = &photo.String
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		u.LastLoginAt = &t
	}
	return &u, nil
}

func (r *UserRepository) Save(ctx context.Context, user *entities.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (uid, email, display_name, photo_url, created_at, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (uid) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			photo_url = EXCLUDED.photo_url,
			last_login_at = EXCLUDED.last_login_at`,
		user.UID, user.Email, user.DisplayName, user.PhotoURL, user.CreatedAt, user.LastLoginAt,
	)
	if err != nil {
		return dbError("save user", err)
	}
	return nil
}

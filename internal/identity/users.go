package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dimitrije/shopfront-api/internal/database"
	"github.com/dimitrije/shopfront-api/internal/models"
	"github.com/dimitrije/shopfront-api/internal/oauth"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, email, display_name, photo_url, provider, provider_id, password_hash, created_at, updated_at`

type UserStore struct {
	db *database.DB
}

func NewUserStore(db *database.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.PhotoURL,
		&u.Provider, &u.ProviderID, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) FindOrCreateFromProfile(ctx context.Context, p *oauth.Profile) (*models.User, error) {
	user, err := scanUser(s.db.Pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE provider = $1 AND provider_id = $2
	`, p.Provider, p.ID))

	if err == nil {
		if user.Email != p.Email || user.DisplayName != p.DisplayName || (user.PhotoURL == nil && p.PhotoURL != "") {
			_, _ = s.db.Pool.Exec(ctx, `
				UPDATE users SET email = $1, display_name = $2, photo_url = COALESCE($3, photo_url), updated_at = NOW()
				WHERE id = $4
			`, p.Email, p.DisplayName, nullableString(p.PhotoURL), user.ID)
			user.Email = p.Email
			user.DisplayName = p.DisplayName
			if p.PhotoURL != "" {
				user.PhotoURL = &p.PhotoURL
			}
		}
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	user, err = scanUser(s.db.Pool.QueryRow(ctx, `
		INSERT INTO users (email, display_name, photo_url, provider, provider_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		p.Email, p.DisplayName, nullableString(p.PhotoURL), p.Provider, p.ID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (s *UserStore) CreateWithPassword(ctx context.Context, email, displayName, passwordHash string) (*models.User, error) {
	user, err := scanUser(s.db.Pool.QueryRow(ctx, `
		INSERT INTO users (email, display_name, provider, provider_id, password_hash)
		VALUES ($1, $2, $3, $1, $4)
		RETURNING `+userColumns,
		email, displayName, models.PasswordProvider, passwordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(s.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (s *UserStore) UpdateProfile(ctx context.Context, id uuid.UUID, displayName string, photoURL *string) (*models.User, error) {
	return scanUser(s.db.Pool.QueryRow(ctx, `
		UPDATE users SET display_name = $1, photo_url = COALESCE($2, photo_url), updated_at = NOW()
		WHERE id = $3
		RETURNING `+userColumns,
		displayName, photoURL, id))
}

func (s *UserStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

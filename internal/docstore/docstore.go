// Package docstore keeps user, role and notification documents for the admin
// screens. The guard never reads roles from here; it asks the REST backend.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dimitrije/shopfront-api/internal/database"
	"github.com/dimitrije/shopfront-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidRole = errors.New("invalid role")
)

type Store struct {
	db *database.DB
}

func New(db *database.DB) *Store {
	return &Store{db: db}
}

// userDoc is the stored shape; the role lives in its own collection.
type userDoc struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UpsertUser writes the user document for p, merging into an existing one.
func (s *Store) UpsertUser(ctx context.Context, p *models.Principal) error {
	email := normalizeEmail(p.Email)
	data, err := json.Marshal(userDoc{
		ID:          p.ID,
		Email:       email,
		DisplayName: p.DisplayName,
		PhotoURL:    p.PhotoURL,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode user document: %w", err)
	}

	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO user_documents (email, doc)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE
		SET doc = user_documents.doc || (EXCLUDED.doc - 'created_at'), updated_at = NOW()
	`, email, data)
	if err != nil {
		return fmt.Errorf("failed to upsert user document: %w", err)
	}
	return nil
}

func decodeUser(raw []byte, role string, updatedAt time.Time) (models.UserDocument, error) {
	var doc userDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.UserDocument{}, fmt.Errorf("failed to decode user document: %w", err)
	}
	return models.UserDocument{
		ID:          doc.ID,
		Email:       doc.Email,
		DisplayName: doc.DisplayName,
		PhotoURL:    doc.PhotoURL,
		Role:        models.ParseRole(role),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.UserDocument, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT u.doc, COALESCE(r.role, ''), u.updated_at
		FROM user_documents u
		LEFT JOIN role_documents r ON r.email = u.email
		ORDER BY u.email
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.UserDocument
	for rows.Next() {
		var (
			raw       []byte
			role      string
			updatedAt time.Time
		)
		if err := rows.Scan(&raw, &role, &updatedAt); err != nil {
			return nil, err
		}
		doc, err := decodeUser(raw, role, updatedAt)
		if err != nil {
			return nil, err
		}
		users = append(users, doc)
	}
	return users, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, email string) (*models.UserDocument, error) {
	var (
		raw       []byte
		role      string
		updatedAt time.Time
	)
	err := s.db.Pool.QueryRow(ctx, `
		SELECT u.doc, COALESCE(r.role, ''), u.updated_at
		FROM user_documents u
		LEFT JOIN role_documents r ON r.email = u.email
		WHERE u.email = $1
	`, normalizeEmail(email)).Scan(&raw, &role, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	doc, err := decodeUser(raw, role, updatedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetRole returns RoleNone when no role document exists.
func (s *Store) GetRole(ctx context.Context, email string) (models.Role, error) {
	var role string
	err := s.db.Pool.QueryRow(ctx, `SELECT role FROM role_documents WHERE email = $1`, normalizeEmail(email)).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RoleNone, nil
		}
		return models.RoleNone, fmt.Errorf("failed to get role: %w", err)
	}
	return models.ParseRole(role), nil
}

// SetRole stores role for email and returns the role it replaced.
func (s *Store) SetRole(ctx context.Context, email string, role models.Role, updatedBy string) (models.Role, error) {
	if !role.Valid() {
		return models.RoleNone, ErrInvalidRole
	}

	var previous *string
	err := s.db.Pool.QueryRow(ctx, `
		WITH prev AS (SELECT role FROM role_documents WHERE email = $1)
		INSERT INTO role_documents (email, role, updated_by, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (email) DO UPDATE
		SET role = EXCLUDED.role, updated_by = EXCLUDED.updated_by, updated_at = NOW()
		RETURNING (SELECT role FROM prev)
	`, normalizeEmail(email), string(role), updatedBy).Scan(&previous)
	if err != nil {
		return models.RoleNone, fmt.Errorf("failed to set role: %w", err)
	}

	if previous == nil {
		return models.RoleNone, nil
	}
	return models.ParseRole(*previous), nil
}

// DeleteUser removes the user and role documents. Notifications are kept so
// the removal notice stays readable.
func (s *Store) DeleteUser(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM user_documents WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("failed to delete user document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := s.db.Pool.Exec(ctx, `DELETE FROM role_documents WHERE email = $1`, email); err != nil {
		return fmt.Errorf("failed to delete role document: %w", err)
	}
	return nil
}

func (s *Store) AddNotification(ctx context.Context, email, kind, message string) (*models.Notification, error) {
	var n models.Notification
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO notification_documents (user_email, kind, message)
		VALUES ($1, $2, $3)
		RETURNING id, user_email, kind, message, read, created_at
	`, normalizeEmail(email), kind, message).Scan(&n.ID, &n.UserEmail, &n.Kind, &n.Message, &n.Read, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add notification: %w", err)
	}
	return &n, nil
}

func (s *Store) ListNotifications(ctx context.Context, email string) ([]models.Notification, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, user_email, kind, message, read, created_at
		FROM notification_documents
		WHERE user_email = $1
		ORDER BY created_at DESC
	`, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserEmail, &n.Kind, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

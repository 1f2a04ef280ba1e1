package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/shared"
)

// CredentialRepository stores the Spotify account linked by each user.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new CredentialRepository with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Upsert links or relinks a user's Spotify account.
//
// An empty RefreshToken keeps the stored one, since refresh responses may omit it.
func (r *CredentialRepository) Upsert(ctx context.Context, c *models.SpotifyCredential) error {
	if c.UserID == "" || c.AccessToken == "" {
		return fmt.Errorf("%w: credential requires a user id and access token", models.ErrValidation)
	}

	ts := now()
	if c.ID == "" {
		c.ID = shared.GenerateID()
	}
	c.UpdatedAt = ts

	query := `
		INSERT INTO spotify_credentials (id, user_id, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token = '' THEN refresh_token ELSE excluded.refresh_token END,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, c.ID, c.UserID, c.AccessToken, c.RefreshToken, c.ExpiresAt.UTC(), ts, ts)
	if err != nil {
		return fmt.Errorf("failed to upsert spotify credential: %w", err)
	}
	return nil
}

// Get returns the user's linked credential or [shared.ErrNotConnected].
func (r *CredentialRepository) Get(ctx context.Context, userID string) (*models.SpotifyCredential, error) {
	query := `
		SELECT id, user_id, access_token, refresh_token, expires_at, updated_at
		FROM spotify_credentials
		WHERE user_id = ?
	`

	var c models.SpotifyCredential
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&c.ID, &c.UserID, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query spotify credential: %w", err)
	}
	return &c, nil
}

// Delete unlinks the user's Spotify account. Deleting a missing link is not an error.
func (r *CredentialRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM spotify_credentials WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete spotify credential: %w", err)
	}
	return nil
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/shared"
)

const playlistSelect = `
	SELECT p.id, p.owner_id, COALESCE(u.name, ''), p.name, p.provider, p.visibility, p.share_token,
		p.views, p.likes, p.dislikes, p.allow_dislikes, p.genre, p.mood,
		p.exported_at, p.external_playlist_id, p.external_playlist_url, p.created_at, p.updated_at
	FROM playlists p
	LEFT JOIN users u ON u.id = p.owner_id
`

// PlaylistRepository persists generated playlists and serves the community listings.
type PlaylistRepository struct {
	db    *sql.DB
	songs *SongRepository
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db, songs: NewSongRepository(db)}
}

// Create inserts a private playlist with zeroed counters and returns its id.
func (r *PlaylistRepository) Create(ctx context.Context, ownerID, name string, provider models.Provider, genre, mood string) (string, error) {
	ts := now()
	p := &models.Playlist{
		ID:         shared.GenerateID(),
		OwnerID:    ownerID,
		Name:       name,
		Provider:   provider,
		Visibility: models.VisibilityPrivate,
		Genre:      genre,
		Mood:       mood,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if err := p.Validate(); err != nil {
		return "", err
	}

	if err := insertPlaylist(ctx, r.db, p); err != nil {
		return "", err
	}
	return p.ID, nil
}

func insertPlaylist(ctx context.Context, q querier, p *models.Playlist) error {
	query := `
		INSERT INTO playlists (id, owner_id, name, provider, visibility, allow_dislikes, genre, mood, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		p.ID, p.OwnerID, p.Name, p.Provider, p.Visibility, p.AllowDislikes,
		nullString(p.Genre), nullString(p.Mood), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}
	return nil
}

// AddSongs stores tracks as generated songs of the playlist in one transaction.
func (r *PlaylistRepository) AddSongs(ctx context.Context, playlistID string, tracks []models.Track) error {
	songs := make([]models.Song, len(tracks))
	for i, t := range tracks {
		songs[i] = models.SongFromTrack(playlistID, i, t)
	}
	return r.songs.Add(ctx, songs)
}

// Songs returns the playlist's songs in position order.
func (r *PlaylistRepository) Songs(ctx context.Context, playlistID string) ([]models.Song, error) {
	return r.songs.ListByPlaylist(ctx, playlistID)
}

// Get retrieves a playlist by id.
func (r *PlaylistRepository) Get(ctx context.Context, id string) (*models.Playlist, error) {
	return getPlaylist(ctx, r.db, id)
}

func getPlaylist(ctx context.Context, q querier, id string) (*models.Playlist, error) {
	p, err := scanPlaylist(q.QueryRowContext(ctx, playlistSelect+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist: %w", err)
	}
	return p, nil
}

// ListByOwner returns every playlist owned by ownerID, newest first.
func (r *PlaylistRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Playlist, error) {
	return r.list(ctx, playlistSelect+` WHERE p.owner_id = ? ORDER BY p.created_at DESC`, ownerID)
}

// Delete removes the playlist and its songs. It does not check ownership.
func (r *PlaylistRepository) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM songs WHERE playlist_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete songs: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete playlist: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
		}
		return nil
	})
}

// UpdateVisibility changes the playlist's visibility when callerID owns it.
//
// The first transition to public assigns a share token. Later transitions reuse it,
// and going private keeps it, so a previously shared link resolves again once the
// playlist is public. The returned token is empty if none was ever assigned.
func (r *PlaylistRepository) UpdateVisibility(ctx context.Context, id, callerID string, visibility models.Visibility) (string, error) {
	if _, err := models.ParseVisibility(string(visibility)); err != nil {
		return "", err
	}

	var token string
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := ownedShareToken(ctx, tx, id, callerID)
		if err != nil {
			return err
		}

		token = current.String
		if visibility == models.VisibilityPublic && !current.Valid {
			if token, err = shared.NewShareToken(); err != nil {
				return fmt.Errorf("failed to generate share token: %w", err)
			}
		}

		query := `UPDATE playlists SET visibility = ?, share_token = ?, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query, visibility, nullString(token), now(), id); err != nil {
			return fmt.Errorf("failed to update visibility: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// UpdateDislikeSetting toggles whether viewers may dislike the playlist when callerID owns it.
func (r *PlaylistRepository) UpdateDislikeSetting(ctx context.Context, id, callerID string, allow bool) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := ownedShareToken(ctx, tx, id, callerID); err != nil {
			return err
		}

		query := `UPDATE playlists SET allow_dislikes = ?, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query, allow, now(), id); err != nil {
			return fmt.Errorf("failed to update dislike setting: %w", err)
		}
		return nil
	})
}

// ownedShareToken loads the share token of a playlist owned by callerID. Missing and
// foreign playlists produce the same error.
func ownedShareToken(ctx context.Context, q querier, id, callerID string) (sql.NullString, error) {
	var (
		ownerID string
		token   sql.NullString
	)
	err := q.QueryRowContext(ctx, `SELECT owner_id, share_token FROM playlists WHERE id = ?`, id).Scan(&ownerID, &token)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && ownerID != callerID) {
		return sql.NullString{}, fmt.Errorf("%w: %s", shared.ErrUnauthorized, id)
	}
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to query playlist: %w", err)
	}
	return token, nil
}

// ListPublic returns public playlists, oldest first.
func (r *PlaylistRepository) ListPublic(ctx context.Context, limit int) ([]*models.Playlist, error) {
	query := playlistSelect + ` WHERE p.visibility = 'public' ORDER BY p.created_at ASC, p.id ASC LIMIT ?`
	return r.list(ctx, query, limitOrDefault(limit, DefaultPublicLimit))
}

// ListTrending returns public playlists ordered by views, then likes.
func (r *PlaylistRepository) ListTrending(ctx context.Context, limit int) ([]*models.Playlist, error) {
	query := playlistSelect + ` WHERE p.visibility = 'public' ORDER BY p.views DESC, p.likes DESC LIMIT ?`
	return r.list(ctx, query, limitOrDefault(limit, DefaultTrendingLimit))
}

// ListFiltered fetches up to filter.Limit public playlists by views and then narrows
// them in memory by genre, mood and search text. Matches beyond the fetched page are
// not considered.
func (r *PlaylistRepository) ListFiltered(ctx context.Context, filter models.PlaylistFilter) ([]*models.Playlist, error) {
	query := playlistSelect + ` WHERE p.visibility = 'public' ORDER BY p.views DESC LIMIT ?`
	candidates, err := r.list(ctx, query, limitOrDefault(filter.Limit, DefaultFilterLimit))
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Playlist, 0, len(candidates))
	for _, p := range candidates {
		if matchesFilter(p, filter) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

func matchesFilter(p *models.Playlist, f models.PlaylistFilter) bool {
	if f.Genre != "" && !strings.EqualFold(p.Genre, f.Genre) {
		return false
	}
	if f.Mood != "" && !strings.EqualFold(p.Mood, f.Mood) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(p.Name), needle) && !strings.Contains(strings.ToLower(p.OwnerName), needle) {
			return false
		}
	}
	return true
}

// GetByShareToken resolves a share link and counts the view. Visibility is not checked.
func (r *PlaylistRepository) GetByShareToken(ctx context.Context, token string) (*models.Playlist, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty share token", shared.ErrPlaylistNotFound)
	}

	var p *models.Playlist
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE playlists SET views = views + 1 WHERE share_token = ?`, token)
		if err != nil {
			return fmt.Errorf("failed to record view: %w", err)
		}
		if rows, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		} else if rows == 0 {
			return fmt.Errorf("%w: unknown share token", shared.ErrPlaylistNotFound)
		}

		p, err = scanPlaylist(tx.QueryRowContext(ctx, playlistSelect+` WHERE p.share_token = ?`, token))
		if err != nil {
			return fmt.Errorf("failed to query playlist: %w", err)
		}
		return nil
	})
	return p, err
}

// Clone copies a playlist and its songs to newOwnerID. Provider, genre and mood carry
// over; visibility, counters and export state do not, and copied songs are marked as
// not generated. Private sources can be cloned.
func (r *PlaylistRepository) Clone(ctx context.Context, sourceID, newOwnerID, newName string) (string, error) {
	var id string
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		source, err := getPlaylist(ctx, tx, sourceID)
		if err != nil {
			return err
		}

		name := strings.TrimSpace(newName)
		if name == "" {
			name = "Copy of " + source.Name
		}

		ts := now()
		clone := &models.Playlist{
			ID:         shared.GenerateID(),
			OwnerID:    newOwnerID,
			Name:       name,
			Provider:   source.Provider,
			Visibility: models.VisibilityPrivate,
			Genre:      source.Genre,
			Mood:       source.Mood,
			CreatedAt:  ts,
			UpdatedAt:  ts,
		}
		if err := clone.Validate(); err != nil {
			return err
		}
		if err := insertPlaylist(ctx, tx, clone); err != nil {
			return err
		}

		songs, err := listSongs(ctx, tx, sourceID)
		if err != nil {
			return err
		}
		for i := range songs {
			songs[i].PlaylistID = clone.ID
			songs[i].IsGenerated = false
		}
		if err := insertSongs(ctx, tx, songs); err != nil {
			return err
		}

		id = clone.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecordExport stores the provenance of a successful export in a single update.
func (r *PlaylistRepository) RecordExport(ctx context.Context, id string, exportedAt time.Time, externalID, externalURL string) error {
	query := `
		UPDATE playlists
		SET exported_at = ?, external_playlist_id = ?, external_playlist_url = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query, exportedAt.UTC(), externalID, externalURL, now(), id)
	if err != nil {
		return fmt.Errorf("failed to record export: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	return nil
}

func (r *PlaylistRepository) list(ctx context.Context, query string, args ...any) ([]*models.Playlist, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	playlists := []*models.Playlist{}
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playlists: %w", err)
	}
	return playlists, nil
}

func scanPlaylist(s scanner) (*models.Playlist, error) {
	var (
		p                     models.Playlist
		provider, visibility  string
		shareToken            sql.NullString
		genre, mood           sql.NullString
		exportedAt            sql.NullTime
		externalID, externURL sql.NullString
	)

	err := s.Scan(
		&p.ID, &p.OwnerID, &p.OwnerName, &p.Name, &provider, &visibility, &shareToken,
		&p.Views, &p.Likes, &p.Dislikes, &p.AllowDislikes, &genre, &mood,
		&exportedAt, &externalID, &externURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Provider = models.Provider(provider)
	p.Visibility = models.Visibility(visibility)
	p.ShareToken = shareToken.String
	p.Genre = genre.String
	p.Mood = mood.String
	p.ExternalPlaylistID = externalID.String
	p.ExternalPlaylistURL = externURL.String
	if exportedAt.Valid {
		t := exportedAt.Time
		p.ExportedAt = &t
	}
	return &p, nil
}

package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/shared"
)

// SongRepository stores the ordered contents of playlists.
type SongRepository struct {
	db *sql.DB
}

// NewSongRepository creates a new SongRepository with the given database connection
func NewSongRepository(db *sql.DB) *SongRepository {
	return &SongRepository{db: db}
}

// Add inserts songs in one transaction. Empty batches are a no-op.
func (r *SongRepository) Add(ctx context.Context, songs []models.Song) error {
	if len(songs) == 0 {
		return nil
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return insertSongs(ctx, tx, songs)
	})
}

// ListByPlaylist returns a playlist's songs in position order.
func (r *SongRepository) ListByPlaylist(ctx context.Context, playlistID string) ([]models.Song, error) {
	return listSongs(ctx, r.db, playlistID)
}

// Count returns the number of songs stored for a playlist.
func (r *SongRepository) Count(ctx context.Context, playlistID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs WHERE playlist_id = ?`, playlistID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count songs: %w", err)
	}
	return n, nil
}

func insertSongs(ctx context.Context, tx *sql.Tx, songs []models.Song) error {
	if len(songs) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO songs (id, playlist_id, position, title, artist, external_id, preview_url, album_art_url, provider, is_generated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare song insert: %w", err)
	}
	defer stmt.Close()

	ts := now()
	for i := range songs {
		s := &songs[i]
		s.ID = shared.GenerateID()
		s.CreatedAt = ts
		_, err := stmt.ExecContext(ctx,
			s.ID, s.PlaylistID, s.Position, s.Title, s.Artist,
			nullString(s.ExternalID), nullString(s.PreviewURL), nullString(s.AlbumArtURL),
			s.Provider, s.IsGenerated, s.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert song %d: %w", s.Position, err)
		}
	}
	return nil
}

func listSongs(ctx context.Context, q querier, playlistID string) ([]models.Song, error) {
	query := `
		SELECT id, playlist_id, position, title, artist, external_id, preview_url, album_art_url, provider, is_generated, created_at
		FROM songs
		WHERE playlist_id = ?
		ORDER BY position ASC
	`
	rows, err := q.QueryContext(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()

	songs := []models.Song{}
	for rows.Next() {
		var (
			s                             models.Song
			provider                      string
			externalID, preview, albumArt sql.NullString
		)
		err := rows.Scan(&s.ID, &s.PlaylistID, &s.Position, &s.Title, &s.Artist,
			&externalID, &preview, &albumArt, &provider, &s.IsGenerated, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song: %w", err)
		}
		s.ExternalID = externalID.String
		s.PreviewURL = preview.String
		s.AlbumArtURL = albumArt.String
		s.Provider = models.Provider(provider)
		songs = append(songs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating songs: %w", err)
	}
	return songs, nil
}

// package tasks orchestrates playlist generation, export and backup with non-blocking progress reporting.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/services"
	"github.com/desertthunder/upbeat/internal/shared"
)

// PlaylistStore is the persistence the engine and exporter depend on.
// [repositories.PlaylistRepository] implements it.
type PlaylistStore interface {
	Create(ctx context.Context, ownerID, name string, provider models.Provider, genre, mood string) (string, error)
	AddSongs(ctx context.Context, playlistID string, tracks []models.Track) error
	Get(ctx context.Context, id string) (*models.Playlist, error)
	Songs(ctx context.Context, playlistID string) ([]models.Song, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Playlist, error)
	Delete(ctx context.Context, id string) error
	UpdateVisibility(ctx context.Context, id, callerID string, visibility models.Visibility) (string, error)
	UpdateDislikeSetting(ctx context.Context, id, callerID string, allow bool) error
	ListPublic(ctx context.Context, limit int) ([]*models.Playlist, error)
	ListTrending(ctx context.Context, limit int) ([]*models.Playlist, error)
	ListFiltered(ctx context.Context, filter models.PlaylistFilter) ([]*models.Playlist, error)
	GetByShareToken(ctx context.Context, token string) (*models.Playlist, error)
	Clone(ctx context.Context, sourceID, newOwnerID, newName string) (string, error)
	RecordExport(ctx context.Context, id string, exportedAt time.Time, externalID, externalURL string) error
}

// PopularitySource reports Spotify popularity scores for track ids.
// [services.SpotifyService] implements it.
type PopularitySource interface {
	Popularity(ctx context.Context, ids []string) ([]services.TrackPopularity, error)
}

// GenerateRequest describes a playlist to generate from a seed selection.
type GenerateRequest struct {
	OwnerID  string
	Name     string
	Provider models.Provider
	Seeds    []models.Track
	Genre    string
	Mood     string
}

// GenerateResult is the outcome of [PlaylistEngine.Generate].
type GenerateResult struct {
	PlaylistID string         `json:"playlistId"`
	Tracks     []models.Track `json:"tracks"`
}

// SongPopularity pairs a stored song with its current Spotify popularity.
type SongPopularity struct {
	Song       models.Song `json:"song"`
	Popularity int         `json:"popularity"`
}

// PlaylistEngine composes recommendation and persistence into the operations exposed
// by the API, CLI and TUI.
type PlaylistEngine struct {
	store      PlaylistStore
	aggregator *Aggregator
	popularity PopularitySource
	logger     *log.Logger
}

// EngineOption configures optional engine dependencies.
type EngineOption func(*PlaylistEngine)

// WithPopularity enables [PlaylistEngine.Popularity].
func WithPopularity(p PopularitySource) EngineOption {
	return func(e *PlaylistEngine) { e.popularity = p }
}

// NewPlaylistEngine creates a new PlaylistEngine.
func NewPlaylistEngine(store PlaylistStore, aggregator *Aggregator, logger *log.Logger, opts ...EngineOption) *PlaylistEngine {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	e := &PlaylistEngine{store: store, aggregator: aggregator, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Generate asks the provider for recommendations, creates the playlist and stores the
// songs, strictly in that order.
//
// Creation and song storage are separate writes. When storing songs fails the playlist
// remains with zero songs and its id is returned alongside the error.
func (e *PlaylistEngine) Generate(ctx context.Context, req GenerateRequest, progress chan<- ProgressUpdate) (*GenerateResult, error) {
	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: playlist name is required", shared.ErrInvalidInput)
	}

	sendProgress(progress, recommendUpdate(req.Provider, len(req.Seeds)))
	tracks, err := e.aggregator.Generate(ctx, req.Seeds, req.Provider)
	if err != nil {
		return nil, err
	}
	sendProgress(progress, recommendedUpdate(tracks))

	sendProgress(progress, createPlaylistUpdate(req.Name))
	id, err := e.store.Create(ctx, req.OwnerID, strings.TrimSpace(req.Name), req.Provider, req.Genre, req.Mood)
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	result := &GenerateResult{PlaylistID: id, Tracks: tracks}

	sendProgress(progress, saveSongsUpdate(id, len(tracks)))
	if err := e.store.AddSongs(ctx, id, tracks); err != nil {
		e.logger.Error("playlist saved without songs", "playlist", id, "tracks", len(tracks), "error", err)
		return result, fmt.Errorf("playlist %s created but songs were not saved: %w", id, err)
	}

	e.logger.Info("playlist generated", "playlist", id, "owner", req.OwnerID, "provider", req.Provider, "tracks", len(tracks))
	return result, nil
}

// Search looks up tracks on one provider.
func (e *PlaylistEngine) Search(ctx context.Context, provider models.Provider, query string) ([]models.Track, error) {
	return e.aggregator.Search(ctx, provider, query)
}

// Mine lists the caller's playlists.
func (e *PlaylistEngine) Mine(ctx context.Context, ownerID string) ([]*models.Playlist, error) {
	return e.store.ListByOwner(ctx, ownerID)
}

// Songs lists a playlist's songs.
func (e *PlaylistEngine) Songs(ctx context.Context, playlistID string) ([]models.Song, error) {
	return e.store.Songs(ctx, playlistID)
}

// Show loads a playlist together with its songs.
func (e *PlaylistEngine) Show(ctx context.Context, playlistID string) (*models.PlaylistExport, error) {
	p, err := e.store.Get(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	return e.withSongs(ctx, p)
}

func (e *PlaylistEngine) withSongs(ctx context.Context, p *models.Playlist) (*models.PlaylistExport, error) {
	songs, err := e.store.Songs(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &models.PlaylistExport{Playlist: *p, Songs: songs}, nil
}

// Delete removes a playlist owned by callerID. Missing and foreign playlists both
// fail with [shared.ErrUnauthorized].
func (e *PlaylistEngine) Delete(ctx context.Context, playlistID, callerID string) error {
	p, err := e.store.Get(ctx, playlistID)
	if errors.Is(err, shared.ErrPlaylistNotFound) || (err == nil && p.OwnerID != callerID) {
		return fmt.Errorf("%w: %s", shared.ErrUnauthorized, playlistID)
	}
	if err != nil {
		return err
	}

	if err := e.store.Delete(ctx, playlistID); err != nil {
		return err
	}
	e.logger.Info("playlist deleted", "playlist", playlistID, "owner", callerID)
	return nil
}

// SetVisibility publishes or hides a playlist and returns its share token, if any.
func (e *PlaylistEngine) SetVisibility(ctx context.Context, playlistID, callerID string, visibility models.Visibility) (string, error) {
	return e.store.UpdateVisibility(ctx, playlistID, callerID, visibility)
}

// SetAllowDislikes toggles whether viewers may dislike a playlist.
func (e *PlaylistEngine) SetAllowDislikes(ctx context.Context, playlistID, callerID string, allow bool) error {
	return e.store.UpdateDislikeSetting(ctx, playlistID, callerID, allow)
}

// Public lists public playlists, oldest first.
func (e *PlaylistEngine) Public(ctx context.Context, limit int) ([]*models.Playlist, error) {
	return e.store.ListPublic(ctx, limit)
}

// Trending lists public playlists by views, then likes.
func (e *PlaylistEngine) Trending(ctx context.Context, limit int) ([]*models.Playlist, error) {
	return e.store.ListTrending(ctx, limit)
}

// Filtered lists public playlists matching filter.
func (e *PlaylistEngine) Filtered(ctx context.Context, filter models.PlaylistFilter) ([]*models.Playlist, error) {
	return e.store.ListFiltered(ctx, filter)
}

// Shared resolves a share token into the playlist and its songs, counting one view.
func (e *PlaylistEngine) Shared(ctx context.Context, token string) (*models.PlaylistExport, error) {
	p, err := e.store.GetByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return e.withSongs(ctx, p)
}

// Clone copies a playlist into ownerID's library.
func (e *PlaylistEngine) Clone(ctx context.Context, sourceID, ownerID, name string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("%w: owner id is required", shared.ErrInvalidInput)
	}
	id, err := e.store.Clone(ctx, sourceID, ownerID, name)
	if err != nil {
		return "", err
	}
	e.logger.Info("playlist cloned", "source", sourceID, "playlist", id, "owner", ownerID)
	return id, nil
}

// Popularity returns current Spotify popularity for the playlist's Spotify songs, in
// playlist order. Songs from other providers are skipped.
func (e *PlaylistEngine) Popularity(ctx context.Context, playlistID string) ([]SongPopularity, error) {
	if e.popularity == nil {
		return nil, fmt.Errorf("%w: spotify popularity is not available", shared.ErrServiceUnavailable)
	}

	songs, err := e.store.Songs(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, s := range songs {
		if s.Provider == models.ProviderSpotify && s.ExternalID != "" {
			ids = append(ids, s.ExternalID)
		}
	}
	if len(ids) == 0 {
		return []SongPopularity{}, nil
	}

	scores, err := e.popularity.Popularity(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]int, len(scores))
	for _, s := range scores {
		byID[s.ID] = s.Popularity
	}

	out := make([]SongPopularity, 0, len(ids))
	for _, s := range songs {
		if score, ok := byID[s.ExternalID]; ok && s.Provider == models.ProviderSpotify {
			out = append(out, SongPopularity{Song: s, Popularity: score})
		}
	}
	return out, nil
}

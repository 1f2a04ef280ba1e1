package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/services"
	"github.com/desertthunder/upbeat/internal/shared"
	"golang.org/x/oauth2"
)

// userTokenSkew refreshes user tokens this long before they expire.
const userTokenSkew = time.Minute

// defaultUserTokenLifetime is assumed when a token response carries no expiry.
const defaultUserTokenLifetime = time.Hour

// CredentialStore persists linked Spotify accounts.
// [repositories.CredentialRepository] implements it.
type CredentialStore interface {
	Upsert(ctx context.Context, c *models.SpotifyCredential) error
	Get(ctx context.Context, userID string) (*models.SpotifyCredential, error)
	Delete(ctx context.Context, userID string) error
}

// SpotifyAccount is the user-scoped Spotify API used to link accounts and export playlists.
// [services.SpotifyUserClient] implements it.
type SpotifyAccount interface {
	AuthURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	Profile(ctx context.Context, token string) (*services.SpotifyUser, error)
	CreatePlaylist(ctx context.Context, token, userID, name, description string) (*services.SpotifyPlaylist, error)
	AddTracks(ctx context.Context, token, playlistID string, uris []string) error
}

// ExportResult reports how much of a playlist reached Spotify.
type ExportResult struct {
	ExternalPlaylistURL string `json:"playlistUrl"`
	ExternalPlaylistID  string `json:"playlistId"`
	TracksExported      int    `json:"tracksExported"`
	TotalTracks         int    `json:"totalTracks"`
}

// ConnectionStatus describes a user's linked Spotify account.
type ConnectionStatus struct {
	Connected bool       `json:"connected"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// TokenSource hands out valid user access tokens, refreshing and persisting them when
// they are about to expire.
type TokenSource struct {
	creds  CredentialStore
	client SpotifyAccount
	logger *log.Logger
	now    func() time.Time
}

// NewTokenSource creates a TokenSource.
func NewTokenSource(creds CredentialStore, client SpotifyAccount, logger *log.Logger) *TokenSource {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &TokenSource{creds: creds, client: client, logger: logger, now: time.Now}
}

// AccessToken returns a usable access token for userID or [shared.ErrNotConnected].
func (s *TokenSource) AccessToken(ctx context.Context, userID string) (string, error) {
	cred, err := s.creds.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if !cred.Expired(s.now(), userTokenSkew) {
		return cred.AccessToken, nil
	}

	s.logger.Debug("refreshing spotify user token", "user", userID, "expired_at", cred.ExpiresAt)
	tok, err := s.client.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return "", err
	}

	updated := credentialFromToken(userID, tok, s.now())
	if err := s.creds.Upsert(ctx, updated); err != nil {
		return "", fmt.Errorf("failed to store refreshed token: %w", err)
	}
	return updated.AccessToken, nil
}

func credentialFromToken(userID string, tok *oauth2.Token, now time.Time) *models.SpotifyCredential {
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = now.Add(defaultUserTokenLifetime)
	}
	return &models.SpotifyCredential{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiry,
	}
}

// Exporter pushes stored playlists to the caller's Spotify account and manages the
// account link.
type Exporter struct {
	playlists PlaylistStore
	creds     CredentialStore
	client    SpotifyAccount
	tokens    *TokenSource
	logger    *log.Logger
	now       func() time.Time
}

// NewExporter creates an Exporter.
func NewExporter(playlists PlaylistStore, creds CredentialStore, client SpotifyAccount, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Exporter{
		playlists: playlists,
		creds:     creds,
		client:    client,
		tokens:    NewTokenSource(creds, client, logger),
		logger:    logger,
		now:       time.Now,
	}
}

// ExportDescription is the description given to exported playlists.
func ExportDescription(total int) string {
	return fmt.Sprintf("Generated by upbeat - %d upbeat tracks", total)
}

// Export creates a new Spotify playlist on userID's account holding the playlist's
// Spotify songs, then records where it went.
//
// Songs from other providers are skipped and reported through the counts. Exporting
// again creates another Spotify playlist and overwrites the recorded provenance.
func (x *Exporter) Export(ctx context.Context, playlistID, userID string, progress chan<- ProgressUpdate) (*ExportResult, error) {
	sendProgress(progress, loadPlaylistUpdate(playlistID))
	playlist, err := x.playlists.Get(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	songs, err := x.playlists.Songs(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	sendProgress(progress, resolveTokenUpdate())
	token, err := x.tokens.AccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile, err := x.client.Profile(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to load spotify profile: %w", err)
	}

	uris := exportableURIs(songs)
	sendProgress(progress, exportTracksUpdate(playlist.Name, len(uris), len(songs)))

	created, err := x.client.CreatePlaylist(ctx, token, profile.ID, playlist.Name, ExportDescription(len(songs)))
	if err != nil {
		return nil, fmt.Errorf("failed to create spotify playlist: %w", err)
	}
	if len(uris) > 0 {
		if err := x.client.AddTracks(ctx, token, created.ID, uris); err != nil {
			return nil, fmt.Errorf("failed to add tracks to spotify playlist: %w", err)
		}
	}

	result := &ExportResult{
		ExternalPlaylistURL: created.URL(),
		ExternalPlaylistID:  created.ID,
		TracksExported:      len(uris),
		TotalTracks:         len(songs),
	}
	if err := x.playlists.RecordExport(ctx, playlistID, x.now(), result.ExternalPlaylistID, result.ExternalPlaylistURL); err != nil {
		return result, fmt.Errorf("exported to %s but failed to record it: %w", result.ExternalPlaylistURL, err)
	}

	x.logger.Info("playlist exported", "playlist", playlistID, "user", userID, "spotify_playlist", created.ID,
		"exported", result.TracksExported, "total", result.TotalTracks)
	return result, nil
}

func exportableURIs(songs []models.Song) []string {
	uris := make([]string, 0, len(songs))
	for _, s := range songs {
		if s.Provider == models.ProviderSpotify && s.ExternalID != "" {
			uris = append(uris, services.TrackURI(s.ExternalID))
		}
	}
	return uris
}

// Status reports whether userID has linked a Spotify account.
func (x *Exporter) Status(ctx context.Context, userID string) (*ConnectionStatus, error) {
	cred, err := x.creds.Get(ctx, userID)
	if errors.Is(err, shared.ErrNotConnected) {
		return &ConnectionStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	expires := cred.ExpiresAt
	return &ConnectionStatus{Connected: true, ExpiresAt: &expires}, nil
}

// Disconnect forgets userID's linked account.
func (x *Exporter) Disconnect(ctx context.Context, userID string) error {
	if err := x.creds.Delete(ctx, userID); err != nil {
		return err
	}
	x.logger.Info("spotify disconnected", "user", userID)
	return nil
}

// AuthURL returns the Spotify consent page URL for state.
func (x *Exporter) AuthURL(state string) (string, error) {
	return x.client.AuthURL(state)
}

// Connect completes account linking with the authorization code from the consent redirect.
func (x *Exporter) Connect(ctx context.Context, userID, code string) error {
	if userID == "" || code == "" {
		return fmt.Errorf("%w: user id and authorization code are required", shared.ErrInvalidInput)
	}

	tok, err := x.client.Exchange(ctx, code)
	if err != nil {
		return err
	}
	if err := x.creds.Upsert(ctx, credentialFromToken(userID, tok, x.now())); err != nil {
		return fmt.Errorf("failed to store spotify credential: %w", err)
	}

	x.logger.Info("spotify connected", "user", userID)
	return nil
}

// package models defines the data model for the upbeat playlist discovery service
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxGeneratedTracks caps every generated playlist.
const MaxGeneratedTracks = 20

// SeedSelectionSize is the number of tracks a user picks before generating.
const SeedSelectionSize = 20

var ErrValidation = errors.New("validation failed")

// Provider identifies an external music catalog.
type Provider string

const (
	ProviderSpotify Provider = "spotify"
	ProviderITunes  Provider = "itunes"
)

// ParseProvider converts a user supplied name into a [Provider].
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderSpotify, ProviderITunes:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown provider %q", ErrValidation, s)
	}
}

func (p Provider) String() string { return string(p) }

// Visibility controls whether a playlist appears in community listings.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// ParseVisibility converts a user supplied name into a [Visibility].
func ParseVisibility(s string) (Visibility, error) {
	switch v := Visibility(strings.ToLower(strings.TrimSpace(s))); v {
	case VisibilityPrivate, VisibilityPublic:
		return v, nil
	default:
		return "", fmt.Errorf("%w: unknown visibility %q", ErrValidation, s)
	}
}

// Track is a provider-normalized track. It is only built by provider adapters and
// copied by value between components.
type Track struct {
	ExternalID  string   `json:"externalId"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist"`
	AlbumArtURL string   `json:"albumArtUrl,omitempty"`
	PreviewURL  string   `json:"previewUrl,omitempty"`
	Provider    Provider `json:"provider"`
	Genre       string   `json:"genre,omitempty"`
}

// Playlist is a persisted, generated playlist.
//
// ShareToken is set the first time the playlist is made public and never changes.
// ExportedAt, ExternalPlaylistID and ExternalPlaylistURL are written together.
type Playlist struct {
	ID                  string     `json:"id"`
	OwnerID             string     `json:"ownerId"`
	OwnerName           string     `json:"ownerName,omitempty"`
	Name                string     `json:"name"`
	Provider            Provider   `json:"provider"`
	Visibility          Visibility `json:"visibility"`
	ShareToken          string     `json:"shareToken,omitempty"`
	Views               int        `json:"views"`
	Likes               int        `json:"likes"`
	Dislikes            int        `json:"dislikes"`
	AllowDislikes       bool       `json:"allowDislikes"`
	Genre               string     `json:"genre,omitempty"`
	Mood                string     `json:"mood,omitempty"`
	ExportedAt          *time.Time `json:"exportedAt,omitempty"`
	ExternalPlaylistID  string     `json:"externalPlaylistId,omitempty"`
	ExternalPlaylistURL string     `json:"externalPlaylistUrl,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Validate checks the fields required to insert a playlist.
func (p *Playlist) Validate() error {
	if p.OwnerID == "" {
		return fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if _, err := ParseProvider(string(p.Provider)); err != nil {
		return err
	}
	return nil
}

// IsPublic reports whether the playlist is listed publicly.
func (p *Playlist) IsPublic() bool { return p.Visibility == VisibilityPublic }

// Exported reports whether the playlist has been pushed to an external account.
func (p *Playlist) Exported() bool { return p.ExportedAt != nil }

// Song is a track stored inside a playlist.
type Song struct {
	ID          string    `json:"id"`
	PlaylistID  string    `json:"playlistId"`
	Position    int       `json:"position"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	ExternalID  string    `json:"externalId,omitempty"`
	PreviewURL  string    `json:"previewUrl,omitempty"`
	AlbumArtURL string    `json:"albumArtUrl,omitempty"`
	Provider    Provider  `json:"provider"`
	IsGenerated bool      `json:"isGenerated"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SongFromTrack converts a recommendation result into an unsaved generated song.
func SongFromTrack(playlistID string, position int, t Track) Song {
	return Song{
		PlaylistID:  playlistID,
		Position:    position,
		Title:       t.Title,
		Artist:      t.Artist,
		ExternalID:  t.ExternalID,
		PreviewURL:  t.PreviewURL,
		AlbumArtURL: t.AlbumArtURL,
		Provider:    t.Provider,
		IsGenerated: true,
	}
}

// Track converts a stored song back into its provider-normalized form.
func (s Song) Track() Track {
	return Track{
		ExternalID:  s.ExternalID,
		Title:       s.Title,
		Artist:      s.Artist,
		AlbumArtURL: s.AlbumArtURL,
		PreviewURL:  s.PreviewURL,
		Provider:    s.Provider,
	}
}

// SpotifyCredential holds a user's linked Spotify account tokens.
type SpotifyCredential struct {
	ID           string    `json:"-"`
	UserID       string    `json:"userId"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Expired reports whether the access token is expired or will be within skew.
func (c *SpotifyCredential) Expired(now time.Time, skew time.Duration) bool {
	return !now.Add(skew).Before(c.ExpiresAt)
}

// User is the minimal local record of a caller, used for owner display names.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PlaylistFilter narrows community listings.
//
// Limit bounds the candidate page fetched before Genre, Mood and Search are applied,
// so fewer than Limit results may come back even when more matches exist.
type PlaylistFilter struct {
	Genre  string
	Mood   string
	Search string
	Limit  int
}

// PlaylistExport is a playlist bundled with its songs for rendering and backups.
type PlaylistExport struct {
	Playlist Playlist `json:"playlist"`
	Songs    []Song   `json:"songs"`
}

// Generated counts the songs produced by recommendation rather than copied by a clone.
func (e *PlaylistExport) Generated() int {
	n := 0
	for _, s := range e.Songs {
		if s.IsGenerated {
			n++
		}
	}
	return n
}

// CoverURL returns the album art of the first song that has one.
func (e *PlaylistExport) CoverURL() string {
	for _, s := range e.Songs {
		if s.AlbumArtURL != "" {
			return s.AlbumArtURL
		}
	}
	return ""
}

// Spotify user-scoped API: account linking and playlist export
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/upbeat/internal/shared"
	"golang.org/x/oauth2"
)

// ExportScopes are requested when a user links their Spotify account.
var ExportScopes = []string{
	"playlist-modify-public",
	"playlist-modify-private",
	"user-read-private",
	"user-read-email",
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// SpotifyPlaylist represents a playlist created on a user's account.
type SpotifyPlaylist struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Public       bool         `json:"public"`
	ExternalURLs externalURLs `json:"external_urls"`
	URI          string       `json:"uri"`
}

// URL returns the open.spotify.com link for the playlist.
func (p *SpotifyPlaylist) URL() string {
	if p.ExternalURLs.Spotify != "" {
		return p.ExternalURLs.Spotify
	}
	return "https://open.spotify.com/playlist/" + p.ID
}

type createPlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

type addTracksRequest struct {
	URIs []string `json:"uris"`
}

// TrackURI builds the spotify:track URI for a track id.
func TrackURI(id string) string {
	return "spotify:track:" + id
}

// SpotifyUserClient calls the Spotify API on behalf of a linked user.
//
// Tokens are passed per call; persistence and refresh scheduling belong to the caller.
type SpotifyUserClient struct {
	config     *oauth2.Config
	baseURL    string
	httpClient *http.Client
}

// NewSpotifyUserClient creates a user-scoped Spotify client. Without client credentials
// every call fails with [shared.ErrConfiguration].
func NewSpotifyUserClient(opts SpotifyOptions) *SpotifyUserClient {
	opts = opts.withDefaults()

	c := &SpotifyUserClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
	}
	if opts.configured() {
		c.config = &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURI,
			Scopes:       ExportScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		}
	}
	return c
}

func (c *SpotifyUserClient) ready() error {
	if c.config == nil {
		return fmt.Errorf("%w: spotify client id and secret are required", shared.ErrConfiguration)
	}
	return nil
}

func (c *SpotifyUserClient) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// AuthURL returns the consent page URL for linking an account.
func (c *SpotifyUserClient) AuthURL(state string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Exchange trades an authorization code for user tokens.
func (c *SpotifyUserClient) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	tok, err := c.config.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrExternalProvider, err)
	}
	return tok, nil
}

// Refresh obtains a new access token with a refresh token. The returned token keeps
// refreshToken when Spotify does not rotate it.
func (c *SpotifyUserClient) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	src := c.config.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	return tok, nil
}

// Profile returns the profile of the token's owner.
func (c *SpotifyUserClient) Profile(ctx context.Context, token string) (*SpotifyUser, error) {
	var user SpotifyUser
	req := apiRequest{method: http.MethodGet, url: c.baseURL + "/me", token: token}
	if err := doJSON(ctx, c.httpClient, "spotify", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreatePlaylist creates a private playlist on userID's account.
func (c *SpotifyUserClient) CreatePlaylist(ctx context.Context, token, userID, name, description string) (*SpotifyPlaylist, error) {
	var playlist SpotifyPlaylist
	req := apiRequest{
		method: http.MethodPost,
		url:    fmt.Sprintf("%s/users/%s/playlists", c.baseURL, url.PathEscape(userID)),
		token:  token,
		body:   createPlaylistRequest{Name: name, Description: description, Public: false},
	}
	if err := doJSON(ctx, c.httpClient, "spotify", req, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// AddTracks appends uris to a playlist in a single request.
func (c *SpotifyUserClient) AddTracks(ctx context.Context, token, playlistID string, uris []string) error {
	req := apiRequest{
		method: http.MethodPost,
		url:    fmt.Sprintf("%s/playlists/%s/tracks", c.baseURL, url.PathEscape(playlistID)),
		token:  token,
		body:   addTracksRequest{URIs: uris},
	}
	return doJSON(ctx, c.httpClient, "spotify", req, nil)
}

// Spotify Web API client used for catalog search and upbeat recommendations
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// Upbeat recommendation policy sent with every Spotify recommendations request.
const (
	maxSeedTracks    = 5
	recommendLimit   = models.MaxGeneratedTracks
	targetEnergy     = 0.8
	targetValence    = 0.7
	minTempo         = 120
	searchLimit      = 10
	maxIDsPerRequest = 50
)

// tokenRefreshSkew is how long before expiry a cached app token is replaced.
const tokenRefreshSkew = 60 * time.Second

// defaultAppTokenLifetime is assumed when a token response carries no expiry.
const defaultAppTokenLifetime = time.Hour

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a simplified Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	Album        SpotifyAlbum    `json:"album"`
	PreviewURL   *string         `json:"preview_url"`
	Popularity   int             `json:"popularity"`
	ExternalURLs externalURLs    `json:"external_urls"`
	URI          string          `json:"uri"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

type spotifyTracksResponse struct {
	Tracks []*SpotifyTrack `json:"tracks"`
}

// TrackPopularity is the 0-100 popularity score of a Spotify track.
type TrackPopularity struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Popularity int    `json:"popularity"`
}

// SpotifyOptions configures the Spotify clients. Empty URLs default to the public endpoints.
type SpotifyOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	BaseURL      string
	AuthURL      string
	TokenURL     string
	HTTPClient   *http.Client
	Logger       *log.Logger
}

func (o SpotifyOptions) withDefaults() SpotifyOptions {
	if o.BaseURL == "" {
		o.BaseURL = spotifyBaseURL
	}
	if o.AuthURL == "" {
		o.AuthURL = spotifyAuthURL
	}
	if o.TokenURL == "" {
		o.TokenURL = spotifyTokenURL
	}
	o.HTTPClient = defaultHTTPClient(o.HTTPClient)
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	return o
}

func (o SpotifyOptions) configured() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

// cachedToken is one app access token and the instant it should be replaced.
type cachedToken struct {
	accessToken string
	refreshAt   time.Time
}

// tokenCache is a single-slot, lock-free token cache.
//
// Concurrent misses each fetch a token and the last store wins; every fetched token is
// equally valid.
type tokenCache struct {
	slot atomic.Pointer[cachedToken]
}

func (c *tokenCache) get(now time.Time) (string, bool) {
	t := c.slot.Load()
	if t == nil || !now.Before(t.refreshAt) {
		return "", false
	}
	return t.accessToken, true
}

func (c *tokenCache) put(tok *oauth2.Token, now time.Time) {
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = now.Add(defaultAppTokenLifetime)
	}
	c.slot.Store(&cachedToken{accessToken: tok.AccessToken, refreshAt: expiry.Add(-tokenRefreshSkew)})
}

// SpotifyService implements [TrackProvider] for Spotify using an app (client credentials) token.
//
// A service built without client credentials still constructs; every call then fails
// with [shared.ErrConfiguration] so other providers stay usable.
type SpotifyService struct {
	creds      *clientcredentials.Config
	tokens     tokenCache
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
	now        func() time.Time
}

// NewSpotifyService creates a Spotify catalog client.
func NewSpotifyService(opts SpotifyOptions) *SpotifyService {
	opts = opts.withDefaults()

	s := &SpotifyService{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		now:        time.Now,
	}
	if opts.configured() {
		s.creds = &clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
	}
	return s
}

// Name returns [models.ProviderSpotify].
func (s *SpotifyService) Name() models.Provider {
	return models.ProviderSpotify
}

// accessToken returns the cached app token, fetching a new one when it is within a minute of expiry.
func (s *SpotifyService) accessToken(ctx context.Context) (string, error) {
	if s.creds == nil {
		return "", fmt.Errorf("%w: spotify client id and secret are required", shared.ErrConfiguration)
	}

	if token, ok := s.tokens.get(s.now()); ok {
		return token, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	tok, err := s.creds.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: spotify token request failed: %v", shared.ErrExternalProvider, err)
	}
	s.tokens.put(tok, s.now())
	s.logger.Debug("fetched spotify app token", "expires", tok.Expiry)

	return tok.AccessToken, nil
}

func (s *SpotifyService) get(ctx context.Context, endpoint string, params url.Values, result any) error {
	token, err := s.accessToken(ctx)
	if err != nil {
		return err
	}

	u := s.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return doJSON(ctx, s.httpClient, "spotify", apiRequest{method: http.MethodGet, url: u, token: token}, result)
}

// Search returns up to ten tracks matching query.
func (s *SpotifyService) Search(ctx context.Context, query string) ([]models.Track, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(searchLimit))

	var response spotifySearchResponse
	if err := s.get(ctx, "/search", params, &response); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(response.Tracks.Items))
	for _, item := range response.Tracks.Items {
		tracks = append(tracks, spotifyToTrack(item))
	}
	return tracks, nil
}

// Recommend asks Spotify for upbeat tracks similar to the first five seeds. Extra seeds are dropped.
func (s *SpotifyService) Recommend(ctx context.Context, seeds []models.Track) ([]models.Track, error) {
	ids := seedIDs(seeds, maxSeedTracks)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one seed track id is required", shared.ErrInvalidInput)
	}

	var response spotifyTracksResponse
	if err := s.get(ctx, "/recommendations", recommendParams(ids), &response); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(response.Tracks))
	for _, item := range response.Tracks {
		if item == nil {
			continue
		}
		tracks = append(tracks, spotifyToTrack(*item))
	}
	return tracks, nil
}

// Popularity looks up popularity scores, 50 ids per request.
func (s *SpotifyService) Popularity(ctx context.Context, ids []string) ([]TrackPopularity, error) {
	var results []TrackPopularity
	for chunk := range chunkIDs(ids, maxIDsPerRequest) {
		params := url.Values{}
		params.Set("ids", strings.Join(chunk, ","))

		var response spotifyTracksResponse
		if err := s.get(ctx, "/tracks", params, &response); err != nil {
			return nil, err
		}
		for _, t := range response.Tracks {
			if t == nil {
				continue
			}
			results = append(results, TrackPopularity{ID: t.ID, Name: t.Name, Popularity: t.Popularity})
		}
	}
	return results, nil
}

func recommendParams(ids []string) url.Values {
	params := url.Values{}
	params.Set("seed_tracks", strings.Join(ids, ","))
	params.Set("limit", strconv.Itoa(recommendLimit))
	params.Set("target_energy", strconv.FormatFloat(targetEnergy, 'f', -1, 64))
	params.Set("target_valence", strconv.FormatFloat(targetValence, 'f', -1, 64))
	params.Set("min_tempo", strconv.Itoa(minTempo))
	return params
}

// seedIDs returns up to limit non-empty external ids in seed order.
func seedIDs(seeds []models.Track, limit int) []string {
	ids := make([]string, 0, limit)
	for _, seed := range seeds {
		if len(ids) == limit {
			break
		}
		if seed.ExternalID != "" {
			ids = append(ids, seed.ExternalID)
		}
	}
	return ids
}

// chunkIDs yields consecutive slices of at most size ids.
func chunkIDs(ids []string, size int) iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		for start := 0; start < len(ids); start += size {
			end := min(start+size, len(ids))
			if !yield(ids[start:end]) {
				return
			}
		}
	}
}

// spotifyToTrack maps a raw Spotify track into a [models.Track].
func spotifyToTrack(t SpotifyTrack) models.Track {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}

	track := models.Track{
		ExternalID: t.ID,
		Title:      t.Name,
		Artist:     strings.Join(names, ", "),
		Provider:   models.ProviderSpotify,
	}
	if len(t.Album.Images) > 0 {
		track.AlbumArtURL = t.Album.Images[0].URL
	}
	if t.PreviewURL != nil {
		track.PreviewURL = *t.PreviewURL
	}
	return track
}

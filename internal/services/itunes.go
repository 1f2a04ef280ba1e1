// iTunes Search API client
//
// See https://performance-partners.apple.com/search-api
package services

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/upbeat/internal/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const itunesSearchURL = "https://itunes.apple.com/search"

// Fan-out shape for iTunes recommendations: one search per top genre, then per top artist.
const (
	fanoutGenres  = 3
	fanoutArtists = 2
)

// ITunesTrack is a song result from the iTunes Search API.
type ITunesTrack struct {
	TrackID          int64  `json:"trackId"`
	TrackName        string `json:"trackName"`
	ArtistName       string `json:"artistName"`
	CollectionName   string `json:"collectionName"`
	ArtworkURL100    string `json:"artworkUrl100"`
	PreviewURL       string `json:"previewUrl"`
	TrackViewURL     string `json:"trackViewUrl"`
	PrimaryGenreName string `json:"primaryGenreName"`
}

type itunesSearchResponse struct {
	ResultCount int           `json:"resultCount"`
	Results     []ITunesTrack `json:"results"`
}

// ITunesOptions configures [ITunesService].
type ITunesOptions struct {
	SearchURL string
	// RequestsPerMinute and Burst pace outbound requests. Zero RequestsPerMinute disables pacing.
	RequestsPerMinute int
	Burst             int
	HTTPClient        *http.Client
	Logger            *log.Logger
}

// ITunesService implements [TrackProvider] for the public iTunes catalog.
//
// iTunes has no recommendations endpoint, so [ITunesService.Recommend] fans out
// searches over the seeds' genres and artists.
type ITunesService struct {
	searchURL   string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *log.Logger
}

// NewITunesService creates an iTunes client. Apple asks for about 20 requests per minute.
func NewITunesService(opts ITunesOptions) *ITunesService {
	if opts.SearchURL == "" {
		opts.SearchURL = itunesSearchURL
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerMinute > 0 {
		burst := max(opts.Burst, 1)
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), burst)
	}

	return &ITunesService{
		searchURL:   opts.SearchURL,
		httpClient:  defaultHTTPClient(opts.HTTPClient),
		rateLimiter: limiter,
		logger:      opts.Logger,
	}
}

// Name returns [models.ProviderITunes].
func (s *ITunesService) Name() models.Provider {
	return models.ProviderITunes
}

// search runs one term query and returns raw results.
func (s *ITunesService) search(ctx context.Context, term string) ([]ITunesTrack, error) {
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("term", term)
	params.Set("media", "music")
	params.Set("entity", "song")
	params.Set("limit", strconv.Itoa(searchLimit))

	var response itunesSearchResponse
	req := apiRequest{method: http.MethodGet, url: s.searchURL + "?" + params.Encode()}
	if err := doJSON(ctx, s.httpClient, "itunes", req, &response); err != nil {
		return nil, err
	}
	return response.Results, nil
}

// Search returns up to ten songs matching query.
func (s *ITunesService) Search(ctx context.Context, query string) ([]models.Track, error) {
	results, err := s.search(ctx, query)
	if err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(results))
	for _, r := range results {
		tracks = append(tracks, itunesToTrack(r))
	}
	return tracks, nil
}

// Recommend searches the first three distinct genres and the first two distinct artists
// of seeds concurrently, then merges the results in that order.
//
// Seed ids and earlier results are skipped, and the merged list is capped at
// [models.MaxGeneratedTracks]. A failed search is logged and contributes nothing; it
// never fails the whole call.
func (s *ITunesService) Recommend(ctx context.Context, seeds []models.Track) ([]models.Track, error) {
	terms := fanoutTerms(seeds)
	legs := make([][]ITunesTrack, len(terms))

	g, gctx := errgroup.WithContext(ctx)
	for i, term := range terms {
		g.Go(func() error {
			results, err := s.search(gctx, term)
			if err != nil {
				s.logger.Warn("itunes fan-out search failed", "term", term, "error", err)
				return nil
			}
			legs[i] = results
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool, len(seeds))
	for _, seed := range seeds {
		seen[seed.ExternalID] = true
	}

	tracks := make([]models.Track, 0, models.MaxGeneratedTracks)
	for _, results := range legs {
		for _, r := range results {
			track := itunesToTrack(r)
			if seen[track.ExternalID] {
				continue
			}
			seen[track.ExternalID] = true
			tracks = append(tracks, track)
		}
	}

	if len(tracks) > models.MaxGeneratedTracks {
		tracks = tracks[:models.MaxGeneratedTracks]
	}
	return tracks, nil
}

// fanoutTerms lists the search terms for a recommendation: distinct genres first,
// then distinct artists, each in first-seen order. Blank values are ignored.
func fanoutTerms(seeds []models.Track) []string {
	genres := distinct(seeds, fanoutGenres, func(t models.Track) string { return t.Genre })
	artists := distinct(seeds, fanoutArtists, func(t models.Track) string { return t.Artist })
	return append(genres, artists...)
}

func distinct(seeds []models.Track, limit int, field func(models.Track) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, seed := range seeds {
		v := field(seed)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}

// itunesToTrack maps a raw iTunes result into a [models.Track].
func itunesToTrack(t ITunesTrack) models.Track {
	return models.Track{
		ExternalID:  strconv.FormatInt(t.TrackID, 10),
		Title:       t.TrackName,
		Artist:      t.ArtistName,
		AlbumArtURL: t.ArtworkURL100,
		PreviewURL:  t.PreviewURL,
		Provider:    models.ProviderITunes,
		Genre:       t.PrimaryGenreName,
	}
}

package tasks

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/services"
	"github.com/desertthunder/upbeat/internal/shared"
)

// Aggregator routes searches and recommendation requests to the chosen provider.
//
// Every recommendation failure surfaces as [shared.ErrRecommendationFailed] and results
// never exceed [models.MaxGeneratedTracks]. Fewer tracks, including none, are valid.
type Aggregator struct {
	providers services.Registry
	logger    *log.Logger
}

// NewAggregator creates an Aggregator over the given providers.
func NewAggregator(providers services.Registry, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Aggregator{providers: providers, logger: logger}
}

// Provider returns the adapter registered for name.
func (a *Aggregator) Provider(name models.Provider) (services.TrackProvider, error) {
	p, ok := a.providers.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", shared.ErrServiceUnavailable, shared.ErrUnknownProvider, name)
	}
	return p, nil
}

// Search looks up tracks on one provider.
func (a *Aggregator) Search(ctx context.Context, provider models.Provider, query string) ([]models.Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query is required", shared.ErrInvalidInput)
	}

	p, err := a.Provider(provider)
	if err != nil {
		return nil, err
	}
	return p.Search(ctx, query)
}

// Generate asks provider for tracks similar to seeds. The seed count is not checked here.
func (a *Aggregator) Generate(ctx context.Context, seeds []models.Track, provider models.Provider) ([]models.Track, error) {
	p, err := a.Provider(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrRecommendationFailed, err)
	}

	tracks, err := p.Recommend(ctx, seeds)
	if err != nil {
		a.logger.Error("recommendation failed", "provider", provider, "seeds", len(seeds), "error", err)
		return nil, fmt.Errorf("%w: %s: %w", shared.ErrRecommendationFailed, provider, err)
	}

	if len(tracks) > models.MaxGeneratedTracks {
		tracks = tracks[:models.MaxGeneratedTracks]
	}
	a.logger.Debug("recommendations ready", "provider", provider, "seeds", len(seeds), "tracks", len(tracks))
	return tracks, nil
}

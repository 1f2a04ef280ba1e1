// package services wraps the external music catalogs used for search, recommendations and export
//
// Spotify (Web API) and iTunes (Search API)
package services

import (
	"context"

	"github.com/desertthunder/upbeat/internal/models"
)

// TrackProvider is a music catalog that can search tracks and recommend tracks from seeds.
//
// Implementations map their raw response schemas into [models.Track]; raw shapes never
// leave this package.
type TrackProvider interface {
	// Name identifies the catalog.
	Name() models.Provider

	// Search returns up to ten tracks matching query.
	Search(ctx context.Context, query string) ([]models.Track, error)

	// Recommend returns tracks similar to seeds, at most [models.MaxGeneratedTracks].
	Recommend(ctx context.Context, seeds []models.Track) ([]models.Track, error)
}

// Registry looks up a [TrackProvider] by name.
type Registry map[models.Provider]TrackProvider

// NewRegistry indexes providers by their [TrackProvider.Name].
func NewRegistry(providers ...TrackProvider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		if p != nil {
			r[p.Name()] = p
		}
	}
	return r
}

// Get returns the provider registered for name.
func (r Registry) Get(name models.Provider) (TrackProvider, bool) {
	p, ok := r[name]
	return p, ok
}

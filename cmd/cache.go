package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/upbeat/internal/shared"
	"github.com/urfave/cli/v3"
)

func (r *Runner) requireCache() error {
	if r.cache == nil {
		return fmt.Errorf("%w: search cache is disabled or could not be opened", shared.ErrServiceUnavailable)
	}
	return nil
}

// CacheStats prints the number of cached provider searches.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireCache(); err != nil {
		return err
	}
	n, err := r.cache.Stats()
	if err != nil {
		return err
	}
	r.writePlain("Cache: %s\n", r.config.Cache.Path)
	r.writePlain("Entries: %d\n", n)
	r.writePlain("TTL: %s\n", r.config.Cache.TTL())
	return nil
}

// CachePrune removes expired searches from the cache.
func (r *Runner) CachePrune(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireCache(); err != nil {
		return err
	}
	removed, err := r.cache.Prune()
	if err != nil {
		return err
	}
	r.logger.Info("search cache pruned", "removed", removed)
	r.writePlain("✓ Removed %d expired entries\n", removed)
	return nil
}

package tasks

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/upbeat/internal/formatter"
	"github.com/desertthunder/upbeat/internal/models"
	"golang.org/x/time/rate"
)

// BackupOpts contains configuration for backing up a user's playlists to disk.
type BackupOpts struct {
	Format     formatter.Format // Output format: json, csv, markdown, txt
	OutputDir  string           // Base output directory (default: upbeat_backup_{epoch})
	NumWorkers int              // Concurrent workers (default: 5, max 10)
	RateLimit  float64          // Cover downloads per second (default: 5)
	Covers     bool             // Download album art as the markdown cover
	HTTPClient *http.Client     // Client used for cover downloads
}

// BackupResult summarizes a backup run.
type BackupResult struct {
	TotalPlaylists    int
	SuccessfulExports int
	FailedExports     int
	OutputDirectory   string
	ManifestPath      string
	Results           []PlaylistBackupResult
}

// PlaylistBackupResult is the outcome for one playlist.
type PlaylistBackupResult struct {
	PlaylistID   string
	PlaylistName string
	Songs        int
	Success      bool
	Files        []string
	Error        error
}

type backupJob struct {
	playlist *models.Playlist
}

// Backup writes every playlist owned by ownerID to opts.OutputDir using a worker pool,
// then writes a manifest of the results.
//
// One playlist failing does not stop the others; failures are listed in the manifest.
func (e *PlaylistEngine) Backup(ctx context.Context, prog chan<- ProgressUpdate, ownerID string, opts BackupOpts) (*BackupResult, error) {
	if opts.Format == "" {
		opts.Format = formatter.FormatJSON
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("upbeat_backup_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 5
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	playlists, err := e.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BackupResult{
		TotalPlaylists:  len(playlists),
		OutputDirectory: opts.OutputDir,
		Results:         make([]PlaylistBackupResult, 0, len(playlists)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan backupJob, len(playlists))
	results := make(chan PlaylistBackupResult, len(playlists))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go e.backupWorker(ctx, &wg, limiter, jobs, results, opts)
	}

	sendProgress(prog, backupStartUpdate(len(playlists)))
	for _, p := range playlists {
		jobs <- backupJob{playlist: p}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Success {
			result.SuccessfulExports++
			sendProgress(prog, backupCompletedUpdate(completed, len(playlists), res.PlaylistName, len(res.Files)))
		} else {
			result.FailedExports++
			e.logger.Warn("playlist backup failed", "playlist", res.PlaylistID, "error", res.Error)
			sendProgress(prog, backupFailedUpdate(completed, len(playlists), res.PlaylistName, res.Error))
		}
	}

	manifestPath := filepath.Join(opts.OutputDir, "backup_manifest.json")
	if err := formatter.WriteManifest(manifestFor(result, opts.Format), manifestPath); err != nil {
		return result, fmt.Errorf("backup completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, ctx.Err()
}

// backupWorker writes playlists from jobs until the channel closes. After cancellation
// remaining jobs are reported as failed so every playlist appears in the manifest.
func (e *PlaylistEngine) backupWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	limiter *rate.Limiter,
	jobs <-chan backupJob,
	results chan<- PlaylistBackupResult,
	opts BackupOpts,
) {
	defer wg.Done()

	for job := range jobs {
		if err := ctx.Err(); err != nil {
			results <- PlaylistBackupResult{
				PlaylistID:   job.playlist.ID,
				PlaylistName: job.playlist.Name,
				Error:        err,
			}
			continue
		}
		results <- e.backupPlaylist(ctx, limiter, job.playlist, opts)
	}
}

// backupPlaylist writes a single playlist in the requested format.
func (e *PlaylistEngine) backupPlaylist(ctx context.Context, limiter *rate.Limiter, p *models.Playlist, opts BackupOpts) PlaylistBackupResult {
	result := PlaylistBackupResult{
		PlaylistID:   p.ID,
		PlaylistName: p.Name,
		Files:        []string{},
	}

	export, err := e.withSongs(ctx, p)
	if err != nil {
		result.Error = fmt.Errorf("failed to load songs: %w", err)
		return result
	}
	result.Songs = len(export.Songs)

	base := filepath.Join(opts.OutputDir, p.ID)
	switch opts.Format {
	case formatter.FormatCSV:
		csvRes, err := formatter.WriteCSVExport(export, base)
		if err != nil {
			result.Error = fmt.Errorf("CSV export failed: %w", err)
			return result
		}
		result.Files = []string{csvRes.TracksFile, csvRes.MetadataFile}

	case formatter.FormatMarkdown:
		var cover []byte
		if url := export.CoverURL(); opts.Covers && url != "" {
			if err := limiter.Wait(ctx); err != nil {
				result.Error = err
				return result
			}
			if cover, err = formatter.DownloadImage(ctx, opts.HTTPClient, url); err != nil {
				e.logger.Warn("cover download failed", "playlist", p.ID, "url", url, "error", err)
			}
		}

		mdRes, err := formatter.WriteMarkdownExport(export, base, cover)
		if err != nil {
			result.Error = fmt.Errorf("markdown export failed: %w", err)
			return result
		}
		result.Files = mdRes.Files

	case formatter.FormatText:
		path, err := formatter.WriteTextExport(export, base+"_tracks.txt")
		if err != nil {
			result.Error = fmt.Errorf("text export failed: %w", err)
			return result
		}
		result.Files = []string{path}

	default:
		path, err := formatter.WriteJSONExport(export, base)
		if err != nil {
			result.Error = fmt.Errorf("JSON export failed: %w", err)
			return result
		}
		result.Files = []string{path}
	}

	result.Success = true
	return result
}

func manifestFor(r *BackupResult, format formatter.Format) *formatter.Manifest {
	m := &formatter.Manifest{
		Format:            format,
		CreatedAt:         time.Now().UTC(),
		TotalPlaylists:    r.TotalPlaylists,
		SuccessfulExports: r.SuccessfulExports,
		FailedExports:     r.FailedExports,
		Playlists:         make([]formatter.ManifestEntry, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		entry := formatter.ManifestEntry{
			PlaylistID:   res.PlaylistID,
			PlaylistName: res.PlaylistName,
			Status:       "success",
			Songs:        res.Songs,
			Files:        res.Files,
		}
		if !res.Success {
			entry.Status = "failed"
			if res.Error != nil {
				entry.Error = res.Error.Error()
			}
		}
		m.Playlists = append(m.Playlists, entry)
	}
	return m
}

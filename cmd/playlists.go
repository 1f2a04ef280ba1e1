package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/upbeat/internal/formatter"
	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/shared"
	"github.com/desertthunder/upbeat/internal/tasks"
	"github.com/urfave/cli/v3"
)

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.StringArg(name))
	if v == "" {
		return "", fmt.Errorf("%w: <%s> is required", shared.ErrMissingArgument, name)
	}
	return v, nil
}

func (r *Runner) writeTracks(tracks []models.Track) {
	for i, t := range tracks {
		r.writePlain("%2d. %s - %s\n", i+1, t.Artist, t.Title)
		r.writePlain("    %s:%s", t.Provider, t.ExternalID)
		if t.Genre != "" {
			r.writePlain(" • %s", t.Genre)
		}
		r.writePlain("\n")
	}
}

func (r *Runner) writePlaylists(playlists []*models.Playlist) {
	if len(playlists) == 0 {
		r.writePlain("No playlists found.\n")
		return
	}
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		r.writePlain("   ID: %s\n", p.ID)
		if p.OwnerName != "" {
			r.writePlain("   Curator: %s\n", p.OwnerName)
		}
		r.writePlain("   Provider: %s • %s • %d views • %d likes\n", p.Provider, p.Visibility, p.Views, p.Likes)
		if p.Genre != "" || p.Mood != "" {
			r.writePlain("   Tags: %s\n", strings.Trim(p.Genre+"/"+p.Mood, "/"))
		}
		if p.ShareToken != "" {
			r.writePlain("   Share token: %s\n", p.ShareToken)
		}
		if p.ExternalPlaylistURL != "" {
			r.writePlain("   Spotify: %s\n", p.ExternalPlaylistURL)
		}
	}
}

func (r *Runner) writeSongs(songs []models.Song) {
	for _, s := range songs {
		r.writePlain("%2d. %s - %s [%s]\n", s.Position+1, s.Artist, s.Title, s.Provider)
	}
}

// progressPrinter prints updates until the returned stop function is called. JSON
// output gets no progress lines.
func (r *Runner) progressPrinter(cmd *cli.Command) (chan tasks.ProgressUpdate, func()) {
	if cmd.Bool("json") {
		return nil, func() {}
	}
	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.writePlain("→ %s\n", update.Message)
		}
	}()
	return progress, func() {
		close(progress)
		<-done
	}
}

// Search queries one provider's catalog.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query, err := requireArg(cmd, "query")
	if err != nil {
		return err
	}
	provider, err := models.ParseProvider(cmd.String("provider"))
	if err != nil {
		return err
	}

	tracks, err := r.engine.Search(ctx, provider, query)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, true)
	}
	r.writePlain("Found %d tracks on %s:\n\n", len(tracks), provider)
	r.writeTracks(tracks)
	return nil
}

// collectSeeds reads seeds from --seeds-file, then fills up from --query searches,
// skipping duplicates, until [models.SeedSelectionSize] tracks are selected.
func (r *Runner) collectSeeds(ctx context.Context, cmd *cli.Command, provider models.Provider) ([]models.Track, error) {
	var seeds []models.Track
	seen := map[string]bool{}
	add := func(t models.Track) {
		if len(seeds) < models.SeedSelectionSize && !seen[t.ExternalID] {
			seen[t.ExternalID] = true
			seeds = append(seeds, t)
		}
	}

	if path := cmd.String("seeds-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read seeds file: %w", err)
		}
		var tracks []models.Track
		if err := json.Unmarshal(data, &tracks); err != nil {
			return nil, fmt.Errorf("%w: seeds file must be a JSON array of tracks: %v", shared.ErrInvalidArgument, err)
		}
		for _, t := range tracks {
			if t.Provider == "" {
				t.Provider = provider
			}
			add(t)
		}
	}

	for _, q := range cmd.StringSlice("query") {
		if len(seeds) >= models.SeedSelectionSize {
			break
		}
		tracks, err := r.engine.Search(ctx, provider, q)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("seed search", "query", q, "results", len(tracks))
		for _, t := range tracks {
			add(t)
		}
	}

	if len(seeds) < models.SeedSelectionSize {
		return nil, fmt.Errorf("%w: need %d seed tracks, found %d (add --query or --seeds-file)",
			shared.ErrInvalidArgument, models.SeedSelectionSize, len(seeds))
	}
	return seeds, nil
}

// Generate builds a playlist from seed tracks and stores it for the local user.
func (r *Runner) Generate(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.user(ctx, cmd)
	if err != nil {
		return err
	}
	provider, err := models.ParseProvider(cmd.String("provider"))
	if err != nil {
		return err
	}
	seeds, err := r.collectSeeds(ctx, cmd, provider)
	if err != nil {
		return err
	}

	progress, stop := r.progressPrinter(cmd)
	result, err := r.engine.Generate(ctx, tasks.GenerateRequest{
		OwnerID:  owner,
		Name:     cmd.String("name"),
		Provider: provider,
		Seeds:    seeds,
		Genre:    cmd.String("genre"),
		Mood:     cmd.String("mood"),
	}, progress)
	stop()
	if err != nil {
		if result != nil && result.PlaylistID != "" {
			r.logger.Warn("playlist saved without songs", "playlist", result.PlaylistID)
		}
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	r.writePlainHeader("Playlist generated")
	r.writePlain("ID: %s\n", result.PlaylistID)
	r.writePlain("Tracks: %d\n\n", len(result.Tracks))
	r.writeTracks(result.Tracks)
	return nil
}

// PlaylistsList lists the local user's playlists.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.user(ctx, cmd)
	if err != nil {
		return err
	}
	playlists, err := r.engine.Mine(ctx, owner)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(playlists, true)
	}
	r.writePlain("You have %d playlists:\n\n", len(playlists))
	r.writePlaylists(playlists)
	return nil
}

// PlaylistsSongs lists a playlist's songs.
func (r *Runner) PlaylistsSongs(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	songs, err := r.engine.Songs(ctx, id)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(songs, true)
	}
	r.writeSongs(songs)
	return nil
}

// PlaylistsShow renders a playlist in the requested format.
func (r *Runner) PlaylistsShow(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	export, err := r.engine.Show(ctx, id)
	if err != nil {
		return err
	}

	path := cmd.String("output")
	if path == "" {
		return formatter.Render(r.output, export, format)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()
	if err := formatter.Render(f, export, format); err != nil {
		return err
	}
	r.writePlain("✓ Playlist written to %s\n", path)
	return nil
}

// PlaylistsDelete removes one of the local user's playlists.
func (r *Runner) PlaylistsDelete(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.user(ctx, cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	if err := r.engine.Delete(ctx, id, owner); err != nil {
		return err
	}
	r.writePlain("✓ Deleted playlist %s\n", id)
	return nil
}

// PlaylistsVisibility publishes or hides a playlist.
func (r *Runner) PlaylistsVisibility(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.user(ctx, cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	raw, err := requireArg(cmd, "visibility")
	if err != nil {
		return err
	}
	visibility, err := models.ParseVisibility(raw)
	if err != nil {
		return err
	}

	token, err := r.engine.SetVisibility(ctx, id, owner, visibility)
	if err != nil {
		return err
	}
	r.writePlain("✓ Playlist %s is now %s\n", id, visibility)
	if token != "" {
		r.writePlain("Share token: %s\n", token)
	}
	return nil
}

// PlaylistsDislikes toggles whether viewers may dislike a playlist.
func (r *Runner) PlaylistsDislikes(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.user(ctx, cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	allow := cmd.Bool("allow")
	if err := r.engine.SetAllowDislikes(ctx, id, owner, allow); err != nil {
		return err
	}
	if allow {
		r.writePlain("✓ Dislikes allowed on %s\n", id)
	} else {
		r.writePlain("✓ Dislikes disabled on %s\n", id)
	}
	return nil
}

// PlaylistsClone copies a playlist into the local user's library.
func (r *Runner) PlaylistsClone(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.user(ctx, cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	cloneID, err := r.engine.Clone(ctx, id, owner, cmd.String("name"))
	if err != nil {
		return err
	}
	r.writePlain("✓ Cloned %s\n", id)
	r.writePlain("New playlist: %s\n", cloneID)
	return nil
}

// PlaylistsPopularity prints current Spotify popularity for a playlist's Spotify songs.
func (r *Runner) PlaylistsPopularity(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	popularity, err := r.engine.Popularity(ctx, id)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(popularity, true)
	}
	if len(popularity) == 0 {
		r.writePlain("No Spotify songs in this playlist.\n")
		return nil
	}
	for _, p := range popularity {
		r.writePlain("%3d  %s - %s\n", p.Popularity, p.Song.Artist, p.Song.Title)
	}
	return nil
}

// PlaylistsBackup writes every playlist owned by the local user to disk.
func (r *Runner) PlaylistsBackup(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.user(ctx, cmd)
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	progress, stop := r.progressPrinter(cmd)
	result, err := r.engine.Backup(ctx, progress, owner, tasks.BackupOpts{
		Format:     format,
		OutputDir:  cmd.String("output"),
		NumWorkers: cmd.Int("workers"),
		Covers:     cmd.Bool("covers"),
		HTTPClient: r.httpClient,
	})
	stop()
	if err != nil {
		return err
	}

	r.writePlainHeader("Backup complete")
	r.writePlain("Directory: %s\n", result.OutputDirectory)
	r.writePlain("Playlists: %d/%d exported\n", result.SuccessfulExports, result.TotalPlaylists)
	if result.ManifestPath != "" {
		r.writePlain("Manifest: %s\n", result.ManifestPath)
	}
	for _, pr := range result.Results {
		if !pr.Success {
			r.writePlain("  ✗ %s: %v\n", pr.PlaylistName, pr.Error)
		}
	}
	return nil
}

// DiscoverTrending lists public playlists by views.
func (r *Runner) DiscoverTrending(ctx context.Context, cmd *cli.Command) error {
	playlists, err := r.engine.Trending(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}
	return r.writeListing(cmd, "Trending playlists", playlists)
}

// DiscoverPublic lists public playlists, oldest first.
func (r *Runner) DiscoverPublic(ctx context.Context, cmd *cli.Command) error {
	playlists, err := r.engine.Public(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}
	return r.writeListing(cmd, "Public playlists", playlists)
}

// DiscoverFilter lists public playlists matching genre, mood and search text.
func (r *Runner) DiscoverFilter(ctx context.Context, cmd *cli.Command) error {
	playlists, err := r.engine.Filtered(ctx, models.PlaylistFilter{
		Genre:  cmd.String("genre"),
		Mood:   cmd.String("mood"),
		Search: cmd.String("search"),
		Limit:  cmd.Int("limit"),
	})
	if err != nil {
		return err
	}
	return r.writeListing(cmd, "Matching playlists", playlists)
}

func (r *Runner) writeListing(cmd *cli.Command, title string, playlists []*models.Playlist) error {
	if cmd.Bool("json") {
		return r.writeJSON(playlists, true)
	}
	r.writePlainHeader(title)
	r.writePlaylists(playlists)
	return nil
}

// Share opens a playlist by its share token.
func (r *Runner) Share(ctx context.Context, cmd *cli.Command) error {
	token, err := requireArg(cmd, "token")
	if err != nil {
		return err
	}
	export, err := r.engine.Shared(ctx, token)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(export, true)
	}
	return formatter.Render(r.output, export, formatter.FormatText)
}

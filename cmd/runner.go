package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/upbeat/internal/cache"
	"github.com/desertthunder/upbeat/internal/repositories"
	"github.com/desertthunder/upbeat/internal/services"
	"github.com/desertthunder/upbeat/internal/shared"
	"github.com/desertthunder/upbeat/internal/tasks"
	"github.com/urfave/cli/v3"
)

// httpTimeout bounds every outbound provider and cover download request.
const httpTimeout = 15 * time.Second

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage and providers are opened on first use so commands like setup can run against
// an empty directory.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	db       *sql.DB
	cache    *cache.SearchCache
	users    *repositories.UserRepository
	spotify  *services.SpotifyService
	engine   *tasks.PlaylistEngine
	exporter *tasks.Exporter
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration. A nil Config is
// loaded from the --config flag when the first command runs.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: httpTimeout}
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, searchCommand, generateCommand, playlistsCommand,
		discoverCommand, shareCommand, exportCommand, spotifyCommand, cacheCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger used by commands and by dependencies opened afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// before loads configuration ahead of any command action.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	if r.config != nil {
		return ctx, nil
	}

	if r.configPath == "" {
		r.configPath = cmd.String("config")
	}
	config, err := shared.Load(r.configPath)
	if err != nil {
		return ctx, err
	}
	r.config = config
	return ctx, nil
}

// open wires storage, providers and the engine on first use.
func (r *Runner) open(ctx context.Context) error {
	if r.engine != nil {
		return nil
	}
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	r.db = db

	creds := r.config.Credentials.Spotify
	spotifyOpts := services.SpotifyOptions{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURI:  creds.RedirectURI,
		HTTPClient:   r.httpClient,
		Logger:       shared.WithLogger(r.logger, "provider", "spotify"),
	}
	r.spotify = services.NewSpotifyService(spotifyOpts)
	itunes := services.NewITunesService(services.ITunesOptions{
		RequestsPerMinute: r.config.ITunes.RequestsPerMinute,
		Burst:             r.config.ITunes.Burst,
		HTTPClient:        r.httpClient,
		Logger:            shared.WithLogger(r.logger, "provider", "itunes"),
	})

	providers := []services.TrackProvider{r.spotify, itunes}
	if r.config.Cache.Enabled {
		c, err := cache.Open(r.config.Cache.Path, r.config.Cache.TTL())
		if err != nil {
			r.logger.Warn("search cache unavailable, continuing without it", "path", r.config.Cache.Path, "error", err)
		} else {
			r.cache = c
			for i, p := range providers {
				providers[i] = cache.Wrap(p, c, r.logger)
			}
		}
	}

	playlists := repositories.NewPlaylistRepository(db)
	r.users = repositories.NewUserRepository(db)

	aggregator := tasks.NewAggregator(services.NewRegistry(providers...), r.logger)
	r.engine = tasks.NewPlaylistEngine(playlists, aggregator, r.logger, tasks.WithPopularity(r.spotify))
	r.exporter = tasks.NewExporter(
		playlists,
		repositories.NewCredentialRepository(db),
		services.NewSpotifyUserClient(spotifyOpts),
		shared.WithLogger(r.logger, "component", "exporter"),
	)
	return nil
}

// opened runs fn after the runner's dependencies are wired.
func (r *Runner) opened(fn cli.ActionFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if err := r.open(ctx); err != nil {
			return err
		}
		return fn(ctx, cmd)
	}
}

// user returns the local user id and makes sure the user row exists.
func (r *Runner) user(ctx context.Context, cmd *cli.Command) (string, error) {
	id := cmd.String("user")
	if id == "" {
		return "", fmt.Errorf("%w: --user or UPBEAT_USER is required", shared.ErrMissingArgument)
	}
	if err := r.users.Ensure(ctx, id, cmd.String("user-name")); err != nil {
		return "", err
	}
	return id, nil
}

// Close releases the database and search cache.
func (r *Runner) Close() error {
	var errs []error
	if r.cache != nil {
		errs = append(errs, r.cache.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/upbeat/internal/formatter"
	"github.com/desertthunder/upbeat/internal/models"
	"github.com/urfave/cli/v3"
)

// globalFlags are accepted by every command.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
			Sources: cli.EnvVars("UPBEAT_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "user",
			Aliases: []string{"u"},
			Usage:   "Local user id that owns generated and cloned playlists",
			Value:   "local",
			Sources: cli.EnvVars("UPBEAT_USER"),
		},
		&cli.StringFlag{
			Name:    "user-name",
			Usage:   "Display name recorded for the local user",
			Sources: cli.EnvVars("UPBEAT_USER_NAME"),
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Enable debug logging",
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
}

func limitFlag(value int) cli.Flag {
	return &cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of playlists to return", Value: value}
}

func providerFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "provider",
		Aliases: []string{"p"},
		Usage:   "Track provider (spotify or itunes)",
		Value:   string(models.ProviderITunes),
	}
}

func idArg() cli.Argument {
	return &cli.StringArg{Name: "id", UsageText: "playlist id"}
}

// setupCommand handles setup operations for the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the config file if missing, then initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent database migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// serveCommand runs the HTTP API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Listen host (overrides config)"},
			&cli.IntFlag{Name: "port", Usage: "Listen port (overrides config)"},
		},
		Action: r.opened(r.Serve),
	}
}

// searchCommand searches a provider catalog.
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search a provider for tracks",
		Arguments: []cli.Argument{&cli.StringArg{Name: "query"}},
		Flags:     []cli.Flag{providerFlag(), jsonFlag()},
		Action:    r.opened(r.Search),
	}
}

// generateCommand builds a playlist from seed tracks.
func generateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Generate a playlist from 20 seed tracks",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Playlist name", Required: true},
			providerFlag(),
			&cli.StringSliceFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Search query whose results become seeds (repeatable)",
			},
			&cli.StringFlag{
				Name:  "seeds-file",
				Usage: "JSON file containing an array of seed tracks",
			},
			&cli.StringFlag{Name: "genre", Usage: "Genre tag"},
			&cli.StringFlag{Name: "mood", Usage: "Mood tag"},
			jsonFlag(),
		},
		Action: r.opened(r.Generate),
	}
}

// playlistsCommand manages the local user's playlists.
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "Manage your playlists",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List your playlists",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.opened(r.PlaylistsList),
			},
			{
				Name:      "songs",
				Usage:     "List a playlist's songs",
				Arguments: []cli.Argument{idArg()},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.opened(r.PlaylistsSongs),
			},
			{
				Name:      "show",
				Usage:     "Render a playlist as json, csv, markdown or txt",
				Arguments: []cli.Argument{idArg()},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Output format", Value: string(formatter.FormatText)},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write to a file instead of stdout"},
				},
				Action: r.opened(r.PlaylistsShow),
			},
			{
				Name:      "delete",
				Usage:     "Delete one of your playlists",
				Arguments: []cli.Argument{idArg()},
				Action:    r.opened(r.PlaylistsDelete),
			},
			{
				Name:  "visibility",
				Usage: "Make a playlist public or private",
				Arguments: []cli.Argument{
					idArg(),
					&cli.StringArg{Name: "visibility", UsageText: "public or private"},
				},
				Action: r.opened(r.PlaylistsVisibility),
			},
			{
				Name:      "dislikes",
				Usage:     "Allow or forbid dislikes on a playlist",
				Arguments: []cli.Argument{idArg()},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "allow", Usage: "Allow dislikes", Value: true},
				},
				Action: r.opened(r.PlaylistsDislikes),
			},
			{
				Name:      "clone",
				Usage:     "Copy a playlist into your library",
				Arguments: []cli.Argument{idArg()},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Name for the copy"},
				},
				Action: r.opened(r.PlaylistsClone),
			},
			{
				Name:      "popularity",
				Usage:     "Show current Spotify popularity for a playlist's songs",
				Arguments: []cli.Argument{idArg()},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.opened(r.PlaylistsPopularity),
			},
			{
				Name:  "backup",
				Usage: "Write all of your playlists to disk",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Output format", Value: string(formatter.FormatJSON)},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output directory (default: upbeat_backup_{epoch})"},
					&cli.IntFlag{Name: "workers", Usage: "Concurrent workers", Value: 5},
					&cli.BoolFlag{Name: "covers", Usage: "Download album art for markdown exports"},
				},
				Action: r.opened(r.PlaylistsBackup),
			},
		},
	}
}

// discoverCommand browses community playlists.
func discoverCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "Browse public playlists",
		Commands: []*cli.Command{
			{
				Name:   "trending",
				Usage:  "Most viewed public playlists",
				Flags:  []cli.Flag{limitFlag(10), jsonFlag()},
				Action: r.opened(r.DiscoverTrending),
			},
			{
				Name:   "public",
				Usage:  "Newest public playlists",
				Flags:  []cli.Flag{limitFlag(10), jsonFlag()},
				Action: r.opened(r.DiscoverPublic),
			},
			{
				Name:  "filter",
				Usage: "Public playlists by genre, mood or search text",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "genre", Usage: "Genre to match"},
					&cli.StringFlag{Name: "mood", Usage: "Mood to match"},
					&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Text to match in name or owner"},
					limitFlag(50),
					jsonFlag(),
				},
				Action: r.opened(r.DiscoverFilter),
			},
		},
	}
}

// shareCommand opens a playlist by share token.
func shareCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "share",
		Usage:     "Open a shared playlist by token",
		Arguments: []cli.Argument{&cli.StringArg{Name: "token"}},
		Flags:     []cli.Flag{jsonFlag()},
		Action:    r.opened(r.Share),
	}
}

// exportCommand pushes a playlist to Spotify.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export a playlist to your Spotify account",
		Arguments: []cli.Argument{idArg()},
		Flags:     []cli.Flag{jsonFlag()},
		Action:    r.opened(r.Export),
	}
}

// spotifyCommand manages the linked Spotify account.
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Manage your linked Spotify account",
		Commands: []*cli.Command{
			{
				Name:  "connect",
				Usage: "Link your Spotify account using OAuth2",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "timeout", Usage: "How long to wait for authorization", Value: authTimeout},
				},
				Action: r.opened(r.SpotifyConnect),
			},
			{
				Name:   "status",
				Usage:  "Show whether a Spotify account is linked",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.opened(r.SpotifyStatus),
			},
			{
				Name:   "disconnect",
				Usage:  "Remove the linked Spotify account",
				Action: r.opened(r.SpotifyDisconnect),
			},
		},
	}
}

// cacheCommand manages the provider search cache.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the provider search cache",
		Commands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show the number of cached searches",
				Action: r.opened(r.CacheStats),
			},
			{
				Name:   "prune",
				Usage:  "Remove expired cache entries",
				Action: r.opened(r.CachePrune),
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for browsing playlists.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive playlist browser",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-file", Usage: "Where TUI logs are written", Value: "./tmp/upbeat-tui.log"},
		},
		Action: r.TUI,
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/upbeat/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.config.Server
	if host := cmd.String("host"); host != "" {
		config.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		config.Port = port
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Options{
		Config:   config,
		Engine:   r.engine,
		Exporter: r.exporter,
		Users:    r.users,
		Logger:   r.logger,
	})

	if !r.config.Credentials.Spotify.Configured() {
		r.logger.Warn("spotify credentials missing; spotify search and export will return 503")
	}
	return srv.ListenAndServe(ctx)
}

package main

import (
	"context"
	"os"

	"github.com/desertthunder/upbeat/internal/shared"
	"github.com/urfave/cli/v3"
)

// newApp builds the root command around runner.
func newApp(runner *Runner) *cli.Command {
	return &cli.Command{
		Name:     "upbeat",
		Usage:    "Generate, share and export upbeat playlists from Spotify and iTunes",
		Version:  "0.1.0",
		Flags:    globalFlags(),
		Before:   runner.before,
		Commands: runner.register(),
	}
}

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	err := newApp(runner).Run(context.Background(), os.Args)
	if closeErr := runner.Close(); closeErr != nil {
		logger.Warn("failed to close resources", "error", closeErr)
	}
	if err != nil {
		logger.Fatalf("application error: %v", err)
	}
}

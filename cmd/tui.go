package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/upbeat/internal/shared"
	"github.com/desertthunder/upbeat/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive playlist browser.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Logs go to a file so they do not interfere with TUI rendering.
	fileLogger, closer, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer closer.Close()
	r.SetLogger(fileLogger)

	if err := r.open(ctx); err != nil {
		return err
	}

	userID := cmd.String("user")
	if userID != "" {
		if err := r.users.Ensure(ctx, userID, cmd.String("user-name")); err != nil {
			return err
		}
	}

	model := ui.NewModel(ctx, r.engine, r.exporter, userID)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

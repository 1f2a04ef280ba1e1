package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/upbeat/internal/server"
	"github.com/desertthunder/upbeat/internal/shared"
	"github.com/urfave/cli/v3"
)

// authTimeout bounds how long connect waits for the browser callback.
const authTimeout = 2 * time.Minute

// Export pushes one playlist to the local user's linked Spotify account.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.user(ctx, cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	progress, stop := r.progressPrinter(cmd)
	result, err := r.exporter.Export(ctx, id, owner, progress)
	stop()
	if err != nil {
		if errors.Is(err, shared.ErrNotConnected) {
			r.writePlain("⚠ Run 'upbeat spotify connect' to link your account first.\n")
		}
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	r.writePlainln("✓ Exported to Spotify")
	r.writePlain("Tracks: %d/%d exported\n", result.TracksExported, result.TotalTracks)
	r.writePlain("Open: %s\n", result.ExternalPlaylistURL)
	return nil
}

// SpotifyStatus reports whether the local user has a linked account.
func (r *Runner) SpotifyStatus(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.user(ctx, cmd)
	if err != nil {
		return err
	}
	status, err := r.exporter.Status(ctx, owner)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}
	if !status.Connected {
		r.writePlain("Spotify: not connected\n")
		return nil
	}
	r.writePlain("Spotify: connected\n")
	if status.ExpiresAt != nil {
		r.writePlain("Access token expires: %s\n", status.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

// SpotifyDisconnect removes the local user's linked account.
func (r *Runner) SpotifyDisconnect(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.user(ctx, cmd)
	if err != nil {
		return err
	}
	if err := r.exporter.Disconnect(ctx, owner); err != nil {
		return err
	}
	r.writePlain("✓ Spotify account disconnected\n")
	return nil
}

// SpotifyConnect links the local user's Spotify account.
//
// Starts a loopback HTTP server on the redirect URI, opens the browser for user
// authorization, and stores the tokens once the callback arrives.
func (r *Runner) SpotifyConnect(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.user(ctx, cmd)
	if err != nil {
		return err
	}

	redirect, err := url.Parse(r.config.Credentials.Spotify.RedirectURI)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("%w: invalid redirect_uri %q", shared.ErrInvalidConfig, r.config.Credentials.Spotify.RedirectURI)
	}
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	state := shared.GenerateID()
	authURL, err := r.exporter.AuthURL(state)
	if err != nil {
		return err
	}

	oauthHandler := server.NewOAuthHandler(r.exporter, owner, state, path)
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}
	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", redirect.Host)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	timeout := cmd.Duration("timeout")
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return fmt.Errorf("authorization timed out after %s: %w", timeout, context.DeadlineExceeded)
	case <-ctx.Done():
		return ctx.Err()
	}

	if result.Error() != nil {
		return fmt.Errorf("authorization failed: %w", result.Error())
	}

	r.writePlainln("✓ Spotify account linked for %s", result.UserID)
	r.writePlain("You can now use: upbeat export <playlist-id>\n")
	return nil
}

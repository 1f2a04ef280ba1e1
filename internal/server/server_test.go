package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/repositories"
	"github.com/desertthunder/upbeat/internal/services"
	"github.com/desertthunder/upbeat/internal/shared"
	"github.com/desertthunder/upbeat/internal/tasks"
	tu "github.com/desertthunder/upbeat/internal/testing"
	"golang.org/x/oauth2"
)

// fakeAccount stands in for the Spotify user API.
type fakeAccount struct{}

func (fakeAccount) AuthURL(state string) (string, error) {
	return "https://accounts.example.com/authorize?state=" + url.QueryEscape(state), nil
}

func (fakeAccount) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	if code == "bad" {
		return nil, fmt.Errorf("%w: invalid_grant", shared.ErrExternalProvider)
	}
	return &oauth2.Token{AccessToken: "access-" + code, RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}, nil
}

func (fakeAccount) Refresh(context.Context, string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "refreshed", Expiry: time.Now().Add(time.Hour)}, nil
}

func (fakeAccount) Profile(context.Context, string) (*services.SpotifyUser, error) {
	return &services.SpotifyUser{ID: "spotify-user"}, nil
}

func (fakeAccount) CreatePlaylist(_ context.Context, _, _, name, _ string) (*services.SpotifyPlaylist, error) {
	return &services.SpotifyPlaylist{ID: "sp-1", Name: name}, nil
}

func (fakeAccount) AddTracks(context.Context, string, string, []string) error { return nil }

type fixture struct {
	server   *Server
	repo     *repositories.PlaylistRepository
	creds    *repositories.CredentialRepository
	provider *tu.MockProvider
}

func newFixture(t *testing.T, cfg shared.ServerConfig) *fixture {
	t.Helper()

	db := tu.NewTestDB(t)
	f := &fixture{
		repo:  repositories.NewPlaylistRepository(db),
		creds: repositories.NewCredentialRepository(db),
		provider: &tu.MockProvider{
			SearchResults:  tu.Tracks(models.ProviderSpotify, "found", 3),
			Recommendation: tu.Tracks(models.ProviderSpotify, "rec", models.MaxGeneratedTracks),
		},
	}

	engine := tasks.NewPlaylistEngine(f.repo, tasks.NewAggregator(services.NewRegistry(f.provider), nil), nil)
	f.server = New(Options{
		Config:   cfg,
		Engine:   engine,
		Exporter: tasks.NewExporter(f.repo, f.creds, fakeAccount{}, nil),
		Users:    repositories.NewUserRepository(db),
	})
	return f
}

// do sends a request as user. body may be a string of raw JSON or a value to encode.
func (f *fixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set(HeaderUserID, user)
		req.Header.Set(HeaderUserName, strings.ToUpper(user))
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func seedsBody(n int) map[string]any {
	return map[string]any{
		"name":     "Morning Run",
		"provider": "spotify",
		"seeds":    tu.Tracks(models.ProviderSpotify, "seed", n),
		"genre":    "Pop",
		"mood":     "Happy",
	}
}

func (f *fixture) generate(t *testing.T, user string) string {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/playlists/generate", user, seedsBody(models.SeedSelectionSize))
	expectStatus(t, rec, http.StatusCreated)
	return decode[tasks.GenerateResult](t, rec).PlaylistID
}

func TestHealth(t *testing.T) {
	f := newFixture(t, shared.ServerConfig{})

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]string](t, rec)["status"]; got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "default provider", path: "/api/search?q=daft+punk", status: http.StatusOK},
		{name: "explicit provider", path: "/api/search?provider=Spotify&q=daft+punk", status: http.StatusOK},
		{name: "missing query", path: "/api/search?provider=spotify", status: http.StatusBadRequest},
		{name: "unknown provider", path: "/api/search?provider=tidal&q=x", status: http.StatusBadRequest},
		{name: "unregistered provider", path: "/api/search?provider=itunes&q=x", status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, shared.ServerConfig{})
			rec := f.do(t, http.MethodGet, tt.path, "", nil)
			expectStatus(t, rec, tt.status)

			if tt.status == http.StatusOK {
				if tracks := decode[[]models.Track](t, rec); len(tracks) != 3 {
					t.Errorf("expected 3 tracks, got %d", len(tracks))
				}
			}
		})
	}
}

func TestGenerateRoute(t *testing.T) {
	t.Run("creates playlist for caller", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})

		rec := f.do(t, http.MethodPost, "/api/playlists/generate", "alice", seedsBody(20))
		expectStatus(t, rec, http.StatusCreated)

		result := decode[tasks.GenerateResult](t, rec)
		if len(result.Tracks) != models.MaxGeneratedTracks {
			t.Errorf("expected %d tracks, got %d", models.MaxGeneratedTracks, len(result.Tracks))
		}

		p, err := f.repo.Get(context.Background(), result.PlaylistID)
		if err != nil {
			t.Fatal(err)
		}
		if p.OwnerID != "alice" || p.OwnerName != "ALICE" || p.Genre != "Pop" || p.Mood != "Happy" {
			t.Errorf("unexpected playlist %+v", p)
		}
	})

	t.Run("requires caller", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		expectStatus(t, f.do(t, http.MethodPost, "/api/playlists/generate", "", seedsBody(20)), http.StatusUnauthorized)
	})

	t.Run("rejects wrong seed count", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})

		rec := f.do(t, http.MethodPost, "/api/playlists/generate", "alice", seedsBody(19))
		expectStatus(t, rec, http.StatusBadRequest)

		body := decode[errorResponse](t, rec)
		if body.Fields["seeds"] != "must contain exactly 20 items" {
			t.Errorf("unexpected field errors %v", body.Fields)
		}
		if f.provider.RecommendCalls() != 0 {
			t.Error("provider should not be called for invalid requests")
		}
	})

	t.Run("rejects unknown provider", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		body := seedsBody(20)
		body["provider"] = "deezer"

		rec := f.do(t, http.MethodPost, "/api/playlists/generate", "alice", body)
		expectStatus(t, rec, http.StatusBadRequest)
		if msg := decode[errorResponse](t, rec).Fields["provider"]; msg != "must be one of: spotify itunes" {
			t.Errorf("unexpected provider message %q", msg)
		}
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		expectStatus(t, f.do(t, http.MethodPost, "/api/playlists/generate", "alice", `{"name":`), http.StatusBadRequest)
	})

	t.Run("recommendation failure", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		f.provider.RecommendErr = errors.New("upstream exploded")

		expectStatus(t, f.do(t, http.MethodPost, "/api/playlists/generate", "alice", seedsBody(20)), http.StatusBadGateway)

		mine, err := f.repo.ListByOwner(context.Background(), "alice")
		if err != nil {
			t.Fatal(err)
		}
		if len(mine) != 0 {
			t.Errorf("expected no playlist after failed recommendation, got %d", len(mine))
		}
	})
}

func TestPlaylistRoutes(t *testing.T) {
	t.Run("mine and songs", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		id := f.generate(t, "alice")
		f.generate(t, "bob")

		rec := f.do(t, http.MethodGet, "/api/playlists/mine", "alice", nil)
		expectStatus(t, rec, http.StatusOK)
		if mine := decode[[]models.Playlist](t, rec); len(mine) != 1 || mine[0].ID != id {
			t.Errorf("expected only alice's playlist, got %+v", mine)
		}

		rec = f.do(t, http.MethodGet, "/api/playlists/"+id+"/songs", "", nil)
		expectStatus(t, rec, http.StatusOK)
		songs := decode[[]models.Song](t, rec)
		if len(songs) != 20 || songs[0].Position != 0 || !songs[0].IsGenerated {
			t.Errorf("unexpected songs %d", len(songs))
		}

		expectStatus(t, f.do(t, http.MethodGet, "/api/playlists/mine", "", nil), http.StatusUnauthorized)
	})

	t.Run("empty library encodes as array", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		rec := f.do(t, http.MethodGet, "/api/playlists/mine", "carol", nil)
		expectStatus(t, rec, http.StatusOK)
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("expected [], got %s", rec.Body.String())
		}
	})

	t.Run("delete checks ownership", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		id := f.generate(t, "alice")

		expectStatus(t, f.do(t, http.MethodDelete, "/api/playlists/"+id, "bob", nil), http.StatusForbidden)
		expectStatus(t, f.do(t, http.MethodDelete, "/api/playlists/missing", "alice", nil), http.StatusForbidden)

		rec := f.do(t, http.MethodDelete, "/api/playlists/"+id, "alice", nil)
		expectStatus(t, rec, http.StatusOK)
		if !decode[successResponse](t, rec).Success {
			t.Error("expected success")
		}
		if _, err := f.repo.Get(context.Background(), id); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected playlist to be gone, got %v", err)
		}
	})

	t.Run("visibility and sharing", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		id := f.generate(t, "alice")
		path := "/api/playlists/" + id + "/visibility"

		expectStatus(t, f.do(t, http.MethodPut, path, "bob", map[string]string{"visibility": "public"}), http.StatusForbidden)
		expectStatus(t, f.do(t, http.MethodPut, path, "alice", map[string]string{"visibility": "friends"}), http.StatusBadRequest)

		rec := f.do(t, http.MethodPut, path, "alice", map[string]string{"visibility": "public"})
		expectStatus(t, rec, http.StatusOK)
		vis := decode[visibilityResponse](t, rec)
		if vis.Visibility != models.VisibilityPublic || len(vis.ShareToken) != shared.ShareTokenLength {
			t.Fatalf("unexpected visibility response %+v", vis)
		}

		rec = f.do(t, http.MethodGet, "/api/share/"+vis.ShareToken, "", nil)
		expectStatus(t, rec, http.StatusOK)
		view := decode[models.PlaylistExport](t, rec)
		if view.Playlist.ID != id || view.Playlist.Views != 1 || len(view.Songs) != 20 {
			t.Errorf("unexpected shared playlist %+v", view.Playlist)
		}

		expectStatus(t, f.do(t, http.MethodGet, "/api/share/unknown-token", "", nil), http.StatusNotFound)
	})

	t.Run("dislike setting", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		id := f.generate(t, "alice")
		path := "/api/playlists/" + id + "/dislikes"

		expectStatus(t, f.do(t, http.MethodPut, path, "alice", `{}`), http.StatusBadRequest)
		expectStatus(t, f.do(t, http.MethodPut, path, "bob", `{"allow":true}`), http.StatusForbidden)
		expectStatus(t, f.do(t, http.MethodPut, path, "alice", `{"allow":true}`), http.StatusOK)

		p, err := f.repo.Get(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if !p.AllowDislikes {
			t.Error("expected dislikes to be allowed")
		}
	})

	t.Run("clone", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		id := f.generate(t, "alice")

		rec := f.do(t, http.MethodPost, "/api/playlists/"+id+"/clone", "bob", nil)
		expectStatus(t, rec, http.StatusCreated)
		cloneID := decode[playlistIDResponse](t, rec).PlaylistID

		clone, err := f.repo.Get(context.Background(), cloneID)
		if err != nil {
			t.Fatal(err)
		}
		if clone.OwnerID != "bob" || clone.Name != "Copy of Morning Run" {
			t.Errorf("unexpected clone %+v", clone)
		}

		rec = f.do(t, http.MethodPost, "/api/playlists/"+id+"/clone", "bob", map[string]string{"name": "Mine Now"})
		expectStatus(t, rec, http.StatusCreated)

		expectStatus(t, f.do(t, http.MethodPost, "/api/playlists/missing/clone", "bob", nil), http.StatusNotFound)
	})
}

func TestDiscoveryRoutes(t *testing.T) {
	f := newFixture(t, shared.ServerConfig{})
	ctx := context.Background()

	for _, genre := range []string{"Pop", "Rock", "Pop"} {
		id, err := f.repo.Create(ctx, "alice", genre+" Hits", models.ProviderSpotify, genre, "Happy")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.repo.UpdateVisibility(ctx, id, "alice", models.VisibilityPublic); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.repo.Create(ctx, "alice", "Private Pop", models.ProviderSpotify, "Pop", ""); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		path   string
		status int
		count  int
	}{
		{name: "public", path: "/api/playlists/public", status: http.StatusOK, count: 3},
		{name: "public with limit", path: "/api/playlists/public?limit=2", status: http.StatusOK, count: 2},
		{name: "trending", path: "/api/playlists/trending", status: http.StatusOK, count: 3},
		{name: "filtered by genre", path: "/api/playlists/filtered?genre=pop", status: http.StatusOK, count: 2},
		{name: "filtered by search", path: "/api/playlists/filtered?search=rock", status: http.StatusOK, count: 1},
		{name: "bad limit", path: "/api/playlists/trending?limit=many", status: http.StatusBadRequest},
		{name: "negative limit", path: "/api/playlists/public?limit=-1", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.path, "", nil)
			expectStatus(t, rec, tt.status)
			if tt.status != http.StatusOK {
				return
			}
			if got := decode[[]models.Playlist](t, rec); len(got) != tt.count {
				t.Errorf("expected %d playlists, got %d", tt.count, len(got))
			}
		})
	}
}

func TestExportRoute(t *testing.T) {
	f := newFixture(t, shared.ServerConfig{})
	id := f.generate(t, "alice")
	path := "/api/playlists/" + id + "/export"

	rec := f.do(t, http.MethodPost, path, "alice", nil)
	expectStatus(t, rec, http.StatusConflict)
	if msg := decode[errorResponse](t, rec).Error; !strings.Contains(msg, "connect your account first") {
		t.Errorf("unexpected message %q", msg)
	}

	cred := &models.SpotifyCredential{UserID: "alice", AccessToken: "access", RefreshToken: "refresh", ExpiresAt: time.Now().Add(time.Hour)}
	if err := f.creds.Upsert(context.Background(), cred); err != nil {
		t.Fatal(err)
	}

	rec = f.do(t, http.MethodPost, path, "alice", nil)
	expectStatus(t, rec, http.StatusOK)
	result := decode[tasks.ExportResult](t, rec)
	if result.TracksExported != 20 || result.TotalTracks != 20 || result.ExternalPlaylistID != "sp-1" {
		t.Errorf("unexpected export result %+v", result)
	}

	expectStatus(t, f.do(t, http.MethodPost, "/api/playlists/missing/export", "alice", nil), http.StatusNotFound)
}

func TestSpotifyRoutes(t *testing.T) {
	connectState := func(t *testing.T, f *fixture, user string) string {
		t.Helper()

		rec := f.do(t, http.MethodGet, "/api/spotify/connect", user, nil)
		expectStatus(t, rec, http.StatusOK)
		u, err := url.Parse(decode[urlResponse](t, rec).URL)
		if err != nil {
			t.Fatal(err)
		}
		return u.Query().Get("state")
	}

	t.Run("connect, status and disconnect", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})

		rec := f.do(t, http.MethodGet, "/api/spotify/status", "alice", nil)
		expectStatus(t, rec, http.StatusOK)
		if decode[tasks.ConnectionStatus](t, rec).Connected {
			t.Fatal("expected disconnected before linking")
		}

		state := connectState(t, f, "alice")
		rec = f.do(t, http.MethodGet, "/api/spotify/callback?code=good&state="+url.QueryEscape(state), "", nil)
		expectStatus(t, rec, http.StatusOK)
		if !strings.Contains(rec.Body.String(), "Spotify Connected") {
			t.Errorf("unexpected callback page %s", rec.Body.String())
		}

		rec = f.do(t, http.MethodGet, "/api/spotify/status", "alice", nil)
		if status := decode[tasks.ConnectionStatus](t, rec); !status.Connected || status.ExpiresAt == nil {
			t.Errorf("expected connected status, got %+v", status)
		}

		rec = f.do(t, http.MethodGet, "/api/spotify/callback?code=good&state="+url.QueryEscape(state), "", nil)
		expectStatus(t, rec, http.StatusBadRequest)

		expectStatus(t, f.do(t, http.MethodDelete, "/api/spotify/connection", "alice", nil), http.StatusOK)
		rec = f.do(t, http.MethodGet, "/api/spotify/status", "alice", nil)
		if decode[tasks.ConnectionStatus](t, rec).Connected {
			t.Error("expected disconnected after delete")
		}
	})

	t.Run("callback failures", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})

		expectStatus(t, f.do(t, http.MethodGet, "/api/spotify/callback?code=good&state=forged", "", nil), http.StatusBadRequest)

		state := connectState(t, f, "alice")
		expectStatus(t, f.do(t, http.MethodGet, "/api/spotify/callback?error=access_denied&state="+url.QueryEscape(state), "", nil), http.StatusBadRequest)

		state = connectState(t, f, "alice")
		expectStatus(t, f.do(t, http.MethodGet, "/api/spotify/callback?code=bad&state="+url.QueryEscape(state), "", nil), http.StatusBadGateway)

		if _, err := f.creds.Get(context.Background(), "alice"); !errors.Is(err, shared.ErrNotConnected) {
			t.Errorf("expected no stored credential, got %v", err)
		}
	})

	t.Run("requires caller", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		for _, tc := range []struct{ method, path string }{
			{http.MethodGet, "/api/spotify/status"},
			{http.MethodGet, "/api/spotify/connect"},
			{http.MethodDelete, "/api/spotify/connection"},
		} {
			expectStatus(t, f.do(t, tc.method, tc.path, "", nil), http.StatusUnauthorized)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("rate limit per ip", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{RateLimitPerSecond: 0.001, RateLimitBurst: 2})

		for i := range 2 {
			if rec := f.do(t, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
				t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
			}
		}
		expectStatus(t, f.do(t, http.MethodGet, "/health", "", nil), http.StatusTooManyRequests)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		expectStatus(t, rec, http.StatusOK)
	})

	t.Run("cors preflight", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{AllowedOrigins: []string{"http://localhost:5173"}})

		req := httptest.NewRequest(http.MethodOptions, "/api/playlists/generate", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Errorf("expected allowed origin header, got %q", got)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		f := newFixture(t, shared.ServerConfig{})
		expectStatus(t, f.do(t, http.MethodGet, "/api/playlists/generate", "alice", nil), http.StatusMethodNotAllowed)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", shared.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: x", models.ErrValidation), http.StatusBadRequest},
		{&ValidationError{Fields: map[string]string{"name": "is required"}}, http.StatusBadRequest},
		{errMissingCaller, http.StatusUnauthorized},
		{shared.ErrUnauthorized, http.StatusForbidden},
		{fmt.Errorf("%w: id", shared.ErrPlaylistNotFound), http.StatusNotFound},
		{shared.ErrNotConnected, http.StatusConflict},
		{fmt.Errorf("%w: spotify: %w", shared.ErrRecommendationFailed, errors.New("boom")), http.StatusBadGateway},
		{fmt.Errorf("%w: spotify: %w", shared.ErrRecommendationFailed, shared.ErrConfiguration), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w: %q", shared.ErrServiceUnavailable, shared.ErrUnknownProvider, "itunes"), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/repositories"
	"github.com/desertthunder/upbeat/internal/services"
	"github.com/desertthunder/upbeat/internal/shared"
	tu "github.com/desertthunder/upbeat/internal/testing"
)

// failingSongs stores playlists but refuses to store songs.
type failingSongs struct {
	*repositories.PlaylistRepository
}

func (f failingSongs) AddSongs(context.Context, string, []models.Track) error {
	return errors.New("disk full")
}

type fakePopularity struct {
	ids []string
}

func (f *fakePopularity) Popularity(_ context.Context, ids []string) ([]services.TrackPopularity, error) {
	f.ids = ids
	out := make([]services.TrackPopularity, len(ids))
	for i, id := range ids {
		out[i] = services.TrackPopularity{ID: id, Popularity: 50 + i}
	}
	return out, nil
}

func newEngine(t *testing.T, providers ...services.TrackProvider) (*PlaylistEngine, *repositories.PlaylistRepository) {
	t.Helper()

	repo := repositories.NewPlaylistRepository(tu.NewTestDB(t))
	return NewPlaylistEngine(repo, NewAggregator(services.NewRegistry(providers...), nil), nil), repo
}

func generateRequest(owner string, provider models.Provider) GenerateRequest {
	return GenerateRequest{
		OwnerID:  owner,
		Name:     "Upbeat Mix",
		Provider: provider,
		Seeds:    tu.Tracks(provider, "seed", models.SeedSelectionSize),
		Genre:    "Pop",
		Mood:     "Happy",
	}
}

func drain(progress chan ProgressUpdate) []ProgressUpdate {
	var updates []ProgressUpdate
	for {
		select {
		case u := <-progress:
			updates = append(updates, u)
		default:
			return updates
		}
	}
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("persists playlist and songs", func(t *testing.T) {
		mock := &tu.MockProvider{Recommendation: tu.Tracks(models.ProviderSpotify, "rec", 20)}
		engine, repo := newEngine(t, mock)
		progress := make(chan ProgressUpdate, 10)

		result, err := engine.Generate(ctx, generateRequest("user-1", models.ProviderSpotify), progress)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if len(result.Tracks) != 20 {
			t.Errorf("expected 20 tracks, got %d", len(result.Tracks))
		}

		p, err := repo.Get(ctx, result.PlaylistID)
		if err != nil {
			t.Fatalf("playlist not stored: %v", err)
		}
		if p.OwnerID != "user-1" || p.Name != "Upbeat Mix" || p.Genre != "Pop" || p.Mood != "Happy" {
			t.Errorf("unexpected playlist %+v", p)
		}
		if p.IsPublic() {
			t.Error("generated playlists start private")
		}

		songs, err := repo.Songs(ctx, result.PlaylistID)
		if err != nil {
			t.Fatal(err)
		}
		if len(songs) != 20 {
			t.Fatalf("expected 20 songs, got %d", len(songs))
		}
		for i, s := range songs {
			if s.ExternalID != result.Tracks[i].ExternalID || !s.IsGenerated {
				t.Errorf("song %d does not match track: %+v", i, s)
			}
		}

		phases := map[Phase]bool{}
		for _, u := range drain(progress) {
			phases[u.Phase] = true
		}
		for _, want := range []Phase{Recommend, CreatePlaylist, SaveSongs} {
			if !phases[want] {
				t.Errorf("missing %s progress update", want)
			}
		}
	})

	t.Run("stores what the provider returned", func(t *testing.T) {
		mock := &tu.MockProvider{Provider: models.ProviderITunes, Recommendation: tu.Tracks(models.ProviderITunes, "rec", 7)}
		engine, repo := newEngine(t, mock)

		result, err := engine.Generate(ctx, generateRequest("user-1", models.ProviderITunes), nil)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		songs, err := repo.Songs(ctx, result.PlaylistID)
		if err != nil {
			t.Fatal(err)
		}
		if len(songs) != 7 {
			t.Errorf("expected 7 songs, got %d", len(songs))
		}
	})

	t.Run("never stores more than the cap", func(t *testing.T) {
		mock := &tu.MockProvider{Recommendation: tu.Tracks(models.ProviderSpotify, "rec", 30)}
		engine, repo := newEngine(t, mock)

		result, err := engine.Generate(ctx, generateRequest("user-1", models.ProviderSpotify), nil)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		songs, err := repo.Songs(ctx, result.PlaylistID)
		if err != nil {
			t.Fatal(err)
		}
		if len(songs) != models.MaxGeneratedTracks {
			t.Errorf("expected %d songs, got %d", models.MaxGeneratedTracks, len(songs))
		}
	})

	t.Run("recommendation failure creates nothing", func(t *testing.T) {
		mock := &tu.MockProvider{RecommendErr: shared.ErrExternalProvider}
		engine, repo := newEngine(t, mock)

		_, err := engine.Generate(ctx, generateRequest("user-1", models.ProviderSpotify), nil)
		if !errors.Is(err, shared.ErrRecommendationFailed) {
			t.Fatalf("expected ErrRecommendationFailed, got %v", err)
		}

		mine, err := repo.ListByOwner(ctx, "user-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(mine) != 0 {
			t.Errorf("expected no playlist, got %d", len(mine))
		}
	})

	t.Run("song failure leaves empty playlist", func(t *testing.T) {
		repo := repositories.NewPlaylistRepository(tu.NewTestDB(t))
		mock := &tu.MockProvider{Recommendation: tu.Tracks(models.ProviderSpotify, "rec", 20)}
		engine := NewPlaylistEngine(failingSongs{repo}, NewAggregator(services.NewRegistry(mock), nil), nil)

		result, err := engine.Generate(ctx, generateRequest("user-1", models.ProviderSpotify), nil)
		if err == nil {
			t.Fatal("expected song storage error")
		}
		if result == nil || result.PlaylistID == "" {
			t.Fatal("expected the created playlist id with the error")
		}

		songs, err := repo.Songs(ctx, result.PlaylistID)
		if err != nil {
			t.Fatalf("empty playlist should still be readable: %v", err)
		}
		if len(songs) != 0 {
			t.Errorf("expected zero songs, got %d", len(songs))
		}
	})

	t.Run("invalid request", func(t *testing.T) {
		mock := &tu.MockProvider{}
		engine, _ := newEngine(t, mock)

		req := generateRequest("", models.ProviderSpotify)
		if _, err := engine.Generate(ctx, req, nil); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for missing owner, got %v", err)
		}

		req = generateRequest("user-1", models.ProviderSpotify)
		req.Name = " "
		if _, err := engine.Generate(ctx, req, nil); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for blank name, got %v", err)
		}
		if mock.RecommendCalls() != 0 {
			t.Error("provider should not be called for invalid requests")
		}
	})
}

func TestPlaylistEngine(t *testing.T) {
	ctx := context.Background()

	t.Run("Delete checks ownership", func(t *testing.T) {
		engine, repo := newEngine(t)
		id, err := repo.Create(ctx, "owner", "Mine", models.ProviderSpotify, "", "")
		if err != nil {
			t.Fatal(err)
		}

		if err := engine.Delete(ctx, id, "intruder"); !errors.Is(err, shared.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
		if _, err := repo.Get(ctx, id); err != nil {
			t.Errorf("playlist should survive a foreign delete: %v", err)
		}

		if err := engine.Delete(ctx, "missing", "owner"); !errors.Is(err, shared.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized for missing playlist, got %v", err)
		}

		if err := engine.Delete(ctx, id, "owner"); err != nil {
			t.Fatalf("owner delete failed: %v", err)
		}
		if _, err := repo.Get(ctx, id); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected playlist to be gone, got %v", err)
		}
	})

	t.Run("Shared returns songs", func(t *testing.T) {
		engine, repo := newEngine(t)
		id, err := repo.Create(ctx, "owner", "Shared", models.ProviderSpotify, "", "")
		if err != nil {
			t.Fatal(err)
		}
		if err := repo.AddSongs(ctx, id, tu.Tracks(models.ProviderSpotify, "s", 4)); err != nil {
			t.Fatal(err)
		}
		token, err := engine.SetVisibility(ctx, id, "owner", models.VisibilityPublic)
		if err != nil {
			t.Fatal(err)
		}

		export, err := engine.Shared(ctx, token)
		if err != nil {
			t.Fatalf("Shared failed: %v", err)
		}
		if export.Playlist.ID != id || len(export.Songs) != 4 || export.Playlist.Views != 1 {
			t.Errorf("unexpected shared view: %+v", export.Playlist)
		}
	})

	t.Run("Clone requires owner", func(t *testing.T) {
		engine, repo := newEngine(t)
		id, err := repo.Create(ctx, "owner", "Source", models.ProviderITunes, "", "")
		if err != nil {
			t.Fatal(err)
		}

		if _, err := engine.Clone(ctx, id, "", "copy"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}

		cloneID, err := engine.Clone(ctx, id, "fan", "copy")
		if err != nil {
			t.Fatalf("Clone failed: %v", err)
		}
		mine, err := engine.Mine(ctx, "fan")
		if err != nil {
			t.Fatal(err)
		}
		if len(mine) != 1 || mine[0].ID != cloneID {
			t.Errorf("expected clone in fan's library, got %d playlists", len(mine))
		}
	})

	t.Run("Popularity", func(t *testing.T) {
		repo := repositories.NewPlaylistRepository(tu.NewTestDB(t))
		source := &fakePopularity{}
		engine := NewPlaylistEngine(repo, NewAggregator(nil, nil), nil, WithPopularity(source))

		id, err := repo.Create(ctx, "owner", "Mixed", models.ProviderSpotify, "", "")
		if err != nil {
			t.Fatal(err)
		}
		tracks := append(tu.Tracks(models.ProviderSpotify, "sp", 3), tu.Tracks(models.ProviderITunes, "it", 2)...)
		if err := repo.AddSongs(ctx, id, tracks); err != nil {
			t.Fatal(err)
		}

		scores, err := engine.Popularity(ctx, id)
		if err != nil {
			t.Fatalf("Popularity failed: %v", err)
		}
		if len(source.ids) != 3 {
			t.Errorf("expected only spotify ids to be looked up, got %v", source.ids)
		}
		if len(scores) != 3 || scores[0].Song.ExternalID != "sp-0" || scores[2].Popularity != 52 {
			t.Errorf("unexpected scores %+v", scores)
		}
	})

	t.Run("Popularity unavailable", func(t *testing.T) {
		engine, _ := newEngine(t)

		if _, err := engine.Popularity(ctx, "x"); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}

func TestSendProgress(t *testing.T) {
	t.Run("nil channel", func(t *testing.T) {
		sendProgress(nil, createPlaylistUpdate("x"))
	})

	t.Run("full channel does not block", func(t *testing.T) {
		progress := make(chan ProgressUpdate, 1)
		sendProgress(progress, createPlaylistUpdate("a"))
		sendProgress(progress, createPlaylistUpdate("b"))

		if got := drain(progress); len(got) != 1 {
			t.Errorf("expected 1 buffered update, got %d", len(got))
		}
	})
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{Recommend, "recommend"},
		{CreatePlaylist, "create_playlist"},
		{SaveSongs, "save_songs"},
		{ExportPlaylist, "export_playlist"},
		{BackupPlaylist, "backup_playlist"},
		{Phase(99), ""},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}

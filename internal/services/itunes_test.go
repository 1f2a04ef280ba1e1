package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/shared"
)

// fakeITunes serves canned results per search term and records every term it receives.
type fakeITunes struct {
	*httptest.Server

	mu      sync.Mutex
	terms   []string
	results map[string][]ITunesTrack
	failing map[string]bool
}

func newFakeITunes(t *testing.T) *fakeITunes {
	t.Helper()
	f := &fakeITunes{results: make(map[string][]ITunesTrack), failing: make(map[string]bool)}

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		term := q.Get("term")

		f.mu.Lock()
		f.terms = append(f.terms, term)
		results, failing := f.results[term], f.failing[term]
		f.mu.Unlock()

		if q.Get("media") != "music" || q.Get("entity") != "song" || q.Get("limit") != "10" {
			http.Error(w, "bad params", http.StatusBadRequest)
			return
		}
		if failing {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(itunesSearchResponse{ResultCount: len(results), Results: results})
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeITunes) set(term string, ids ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.results[term] = append(f.results[term], ITunesTrack{
			TrackID:          id,
			TrackName:        fmt.Sprintf("Track %d", id),
			ArtistName:       term,
			ArtworkURL100:    "https://art/100.jpg",
			PreviewURL:       "https://audio/preview.m4a",
			PrimaryGenreName: "Pop",
		})
	}
}

func (f *fakeITunes) fail(term string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[term] = true
}

func (f *fakeITunes) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.terms)
}

func itunesSeed(id, artist, genre string) models.Track {
	return models.Track{ExternalID: id, Title: id, Artist: artist, Genre: genre, Provider: models.ProviderITunes}
}

func idRange(from, to int64) []int64 {
	var ids []int64
	for i := from; i < to; i++ {
		ids = append(ids, i)
	}
	return ids
}

func TestITunesService(t *testing.T) {
	t.Run("Search", func(t *testing.T) {
		fake := newFakeITunes(t)
		fake.set("daft punk", 101)
		srv := NewITunesService(ITunesOptions{SearchURL: fake.URL})

		tracks, err := srv.Search(context.Background(), "daft punk")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := models.Track{
			ExternalID:  "101",
			Title:       "Track 101",
			Artist:      "daft punk",
			AlbumArtURL: "https://art/100.jpg",
			PreviewURL:  "https://audio/preview.m4a",
			Provider:    models.ProviderITunes,
			Genre:       "Pop",
		}
		if len(tracks) != 1 || tracks[0] != want {
			t.Errorf("expected %+v, got %+v", want, tracks)
		}
	})

	t.Run("Search Error", func(t *testing.T) {
		fake := newFakeITunes(t)
		fake.fail("x")
		srv := NewITunesService(ITunesOptions{SearchURL: fake.URL})

		if _, err := srv.Search(context.Background(), "x"); !errors.Is(err, shared.ErrExternalProvider) {
			t.Errorf("expected ErrExternalProvider, got %v", err)
		}
	})

	t.Run("Recommend Fan Out", func(t *testing.T) {
		fake := newFakeITunes(t)
		srv := NewITunesService(ITunesOptions{SearchURL: fake.URL})

		// 4 genres and 3 artists across the seeds.
		seeds := []models.Track{
			itunesSeed("1", "Artist A", "Pop"),
			itunesSeed("2", "Artist B", "Dance"),
			itunesSeed("3", "Artist A", "Rock"),
			itunesSeed("4", "Artist C", "Disco"),
			itunesSeed("5", "Artist B", "Pop"),
		}
		fake.set("Pop", 1, 10, 11, 12, 13, 14, 15, 16)
		fake.set("Dance", 10, 20, 21, 22, 23)
		fake.set("Rock", 30, 31, 32, 33)
		fake.set("Artist A", 2, 40, 41, 42, 43)
		fake.set("Artist B", 50, 51, 52)

		tracks, err := srv.Recommend(context.Background(), seeds)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		terms := fake.received()
		slices.Sort(terms)
		want := []string{"Artist A", "Artist B", "Dance", "Pop", "Rock"}
		if !slices.Equal(terms, want) {
			t.Errorf("expected searches %v, got %v", want, terms)
		}

		if len(tracks) != 20 {
			t.Fatalf("expected 20 tracks, got %d", len(tracks))
		}

		seen := make(map[string]bool)
		for _, tr := range tracks {
			if seen[tr.ExternalID] {
				t.Errorf("duplicate track %s", tr.ExternalID)
			}
			seen[tr.ExternalID] = true
		}
		for _, s := range seeds {
			if seen[s.ExternalID] {
				t.Errorf("seed %s returned as a recommendation", s.ExternalID)
			}
		}

		// Genre legs come first, in genre order: Pop (10-16), Dance (20-23), Rock (30-33),
		// then Artist A (40-43) until the cap.
		order := []string{"10", "11", "12", "13", "14", "15", "16", "20", "21", "22", "23", "30", "31", "32", "33", "40", "41", "42", "43"}
		for i, id := range order {
			if tracks[i].ExternalID != id {
				t.Fatalf("position %d: expected %s, got %s", i, id, tracks[i].ExternalID)
			}
		}
		if tracks[19].ExternalID != "50" {
			t.Errorf("expected last track 50, got %s", tracks[19].ExternalID)
		}
	})

	t.Run("Recommend Tolerates Failed Legs", func(t *testing.T) {
		fake := newFakeITunes(t)
		srv := NewITunesService(ITunesOptions{SearchURL: fake.URL, Logger: shared.NewLogger(nil)})

		seeds := []models.Track{itunesSeed("1", "Artist A", "Pop"), itunesSeed("2", "Artist B", "Dance")}
		fake.fail("Pop")
		fake.set("Dance", 20, 21)
		fake.set("Artist A", 40)
		fake.fail("Artist B")

		tracks, err := srv.Recommend(context.Background(), seeds)
		if err != nil {
			t.Fatalf("expected failed legs to be tolerated, got %v", err)
		}

		var ids []string
		for _, tr := range tracks {
			ids = append(ids, tr.ExternalID)
		}
		if !slices.Equal(ids, []string{"20", "21", "40"}) {
			t.Errorf("expected [20 21 40], got %v", ids)
		}
	})

	t.Run("Recommend All Legs Failed", func(t *testing.T) {
		fake := newFakeITunes(t)
		srv := NewITunesService(ITunesOptions{SearchURL: fake.URL})
		fake.fail("Pop")
		fake.fail("Artist A")

		tracks, err := srv.Recommend(context.Background(), []models.Track{itunesSeed("1", "Artist A", "Pop")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tracks) != 0 {
			t.Errorf("expected no tracks, got %d", len(tracks))
		}
	})

	t.Run("Recommend Caps Results", func(t *testing.T) {
		fake := newFakeITunes(t)
		srv := NewITunesService(ITunesOptions{SearchURL: fake.URL})
		fake.set("Pop", idRange(100, 110)...)
		fake.set("Artist A", idRange(200, 210)...)
		fake.set("Artist B", idRange(300, 310)...)

		seeds := []models.Track{itunesSeed("1", "Artist A", "Pop"), itunesSeed("2", "Artist B", "Pop")}
		tracks, err := srv.Recommend(context.Background(), seeds)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tracks) != models.MaxGeneratedTracks {
			t.Errorf("expected %d tracks, got %d", models.MaxGeneratedTracks, len(tracks))
		}
		if tracks[19].ExternalID != "209" {
			t.Errorf("expected artist B results to be cut off, last was %s", tracks[19].ExternalID)
		}
	})

	t.Run("Rate Limited Context", func(t *testing.T) {
		fake := newFakeITunes(t)
		srv := NewITunesService(ITunesOptions{SearchURL: fake.URL, RequestsPerMinute: 1, Burst: 1})

		if _, err := srv.Search(context.Background(), "first"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := srv.Search(ctx, "second"); err == nil {
			t.Error("expected a cancelled context to stop a rate limited search")
		}
	})
}

func TestFanoutTerms(t *testing.T) {
	seeds := []models.Track{
		itunesSeed("1", "A", "Pop"),
		itunesSeed("2", "A", ""),
		itunesSeed("3", "B", "Pop"),
		itunesSeed("4", "", "Rock"),
		itunesSeed("5", "C", "Jazz"),
		itunesSeed("6", "D", "Funk"),
	}

	got := fanoutTerms(seeds)
	want := []string{"Pop", "Rock", "Jazz", "A", "B"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/shared"
)

// MockProvider is a test double for [services.TrackProvider]
type MockProvider struct {
	Provider       models.Provider
	SearchResults  []models.Track
	SearchErr      error
	Recommendation []models.Track
	RecommendErr   error

	mu            sync.Mutex
	searchCalls   []string
	recommendSeed [][]models.Track
}

func (m *MockProvider) Name() models.Provider {
	if m.Provider == "" {
		return models.ProviderSpotify
	}
	return m.Provider
}

func (m *MockProvider) Search(ctx context.Context, query string) ([]models.Track, error) {
	m.mu.Lock()
	m.searchCalls = append(m.searchCalls, query)
	m.mu.Unlock()
	return m.SearchResults, m.SearchErr
}

func (m *MockProvider) Recommend(ctx context.Context, seeds []models.Track) ([]models.Track, error) {
	m.mu.Lock()
	m.recommendSeed = append(m.recommendSeed, seeds)
	m.mu.Unlock()
	return m.Recommendation, m.RecommendErr
}

// SearchCalls returns the queries passed to Search so far.
func (m *MockProvider) SearchCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.searchCalls...)
}

// RecommendCalls returns how many times Recommend was called.
func (m *MockProvider) RecommendCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recommendSeed)
}

// Tracks builds n distinct tracks for provider with ids "<prefix>-<i>".
func Tracks(provider models.Provider, prefix string, n int) []models.Track {
	tracks := make([]models.Track, n)
	for i := range tracks {
		tracks[i] = models.Track{
			ExternalID: fmt.Sprintf("%s-%d", prefix, i),
			Title:      fmt.Sprintf("Song %d", i),
			Artist:     fmt.Sprintf("Artist %d", i%3),
			Provider:   provider,
			Genre:      "Pop",
		}
	}
	return tracks
}

// NewTestDB opens an in-memory SQLite database with migrations applied and closes it on cleanup.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// NewFileTestDB opens a SQLite file database in a temp dir with a connection pool,
// the way the CLI and server open it, and closes it on cleanup.
func NewFileTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.OpenDatabase(shared.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "upbeat.db"),
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	})
	if err != nil {
		t.Fatalf("failed to open file database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites int, target io.Writer) *LimitedWriter {
	return &LimitedWriter{maxWrites: maxWrites, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// RedirectTransport sends every request to Target's scheme and host, keeping the path
// and query. Lets tests point clients with fixed endpoints at an [httptest.Server].
type RedirectTransport struct {
	Target *url.URL
}

func (rt RedirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.Target.Scheme
	req.URL.Host = rt.Target.Host
	req.Host = rt.Target.Host
	return http.DefaultTransport.RoundTrip(req)
}

// NewRedirectClient returns an [http.Client] whose requests all reach serverURL.
func NewRedirectClient(t *testing.T, serverURL string) *http.Client {
	t.Helper()
	target, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("invalid server url %q: %v", serverURL, err)
	}
	return &http.Client{Transport: RedirectTransport{Target: target}}
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// AssertFileExists fails the test if path does not exist.
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file %s to exist: %v", path, err)
	}
}

// MustReadFile reads path or fails the test.
func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

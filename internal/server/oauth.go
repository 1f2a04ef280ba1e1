package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/desertthunder/upbeat/internal/shared"
)

// Connector completes account linking with an authorization code.
// [tasks.Exporter] implements it.
type Connector interface {
	Connect(ctx context.Context, userID, code string) error
}

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	UserID string
	err    error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler handles a single OAuth2 callback for a known user, as used by the CLI's
// loopback flow. Implements the Handler interface for registration with a Router.
type OAuthHandler struct {
	connector   Connector
	userID      string
	state       string
	path        string
	resultChan  chan OAuthResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewOAuthHandler creates a handler serving path that links userID's account once the
// callback arrives with state.
func NewOAuthHandler(connector Connector, userID, state, path string) *OAuthHandler {
	return &OAuthHandler{
		connector:  connector,
		userID:     userID,
		state:      state,
		path:       path,
		resultChan: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{http.MethodGet + " " + h.path}
}

// ServeHTTP handles the OAuth callback request.
//
// Only the first callback is processed. The result is sent through [OAuthHandler.Result].
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	if r.URL.Query().Get("state") != h.state {
		h.Send(OAuthResult{err: shared.ErrInvalidState})
		writeCallbackPage(w, http.StatusBadRequest, false, "Invalid state parameter.")
		return
	}

	code, err := callbackCode(r)
	if err != nil {
		h.Send(OAuthResult{err: err})
		writeCallbackPage(w, http.StatusBadRequest, false, "Spotify did not authorize the request.")
		return
	}

	if err := h.connector.Connect(r.Context(), h.userID, code); err != nil {
		h.Send(OAuthResult{err: err})
		writeCallbackPage(w, http.StatusBadGateway, false, "Could not link your Spotify account.")
		return
	}

	h.Send(OAuthResult{UserID: h.userID})
	writeCallbackPage(w, http.StatusOK, true, "You can close this window and return to the terminal.")
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

func callbackCode(r *http.Request) (string, error) {
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		return "", fmt.Errorf("%w: authorization denied: %s", shared.ErrInvalidInput, reason)
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("%w: missing authorization code", shared.ErrInvalidInput)
	}
	return code, nil
}

type pendingState struct {
	userID  string
	expires time.Time
}

// StateStore tracks OAuth state values issued to API callers. Each state maps to the
// user who started the flow and may be consumed once.
type StateStore struct {
	mu     sync.Mutex
	states map[string]pendingState
	ttl    time.Duration
	now    func() time.Time
}

// NewStateStore creates a StateStore whose states expire after ttl.
func NewStateStore(ttl time.Duration) *StateStore {
	return &StateStore{states: make(map[string]pendingState), ttl: ttl, now: time.Now}
}

// Issue returns a fresh state bound to userID.
func (s *StateStore) Issue(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, v := range s.states {
		if now.After(v.expires) {
			delete(s.states, k)
		}
	}

	state := shared.GenerateID()
	s.states[state] = pendingState{userID: userID, expires: now.Add(s.ttl)}
	return state
}

// Consume removes state and returns its user, or [shared.ErrInvalidState] when state
// is unknown, already used or expired.
func (s *StateStore) Consume(state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.states[state]
	delete(s.states, state)
	if !ok || s.now().After(p.expires) {
		return "", shared.ErrInvalidState
	}
	return p.userID, nil
}

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { margin: 0 0 1rem 0; }
        h1.ok { color: #1DB954; }
        h1.failed { color: #E22134; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1 class="{{.Class}}">{{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

func writeCallbackPage(w http.ResponseWriter, status int, ok bool, message string) {
	data := struct {
		Title, Class, Message string
	}{"Spotify Connected", "ok", message}
	if !ok {
		data.Title, data.Class = "Spotify Connection Failed", "failed"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	callbackPage.Execute(w, data)
}

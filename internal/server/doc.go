// Package server exposes playlist discovery over HTTP and handles Spotify OAuth callbacks.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] runs in the order it is added; the first one added wraps the rest.
//
// The [BasicRouter] implementation registers method patterns ("GET /api/share/{token}") on an
// [http.ServeMux], so handlers read wildcards with [http.Request.PathValue].
//
// # JSON API
//
// [Server] mounts the playlist routes under /api. Callers identify themselves with the
// X-User-ID header (and optionally X-User-Name); [Identify] records them before the handler runs.
// Routes that act on the caller's library answer 401 without it.
//
// Request bodies are checked by [Validator]. Domain errors map onto status codes:
//
//	ErrInvalidInput, ErrValidation           400
//	ErrUnauthorized                          403
//	ErrPlaylistNotFound                      404
//	ErrNotConnected                          409
//	ErrExternalProvider, recommendation      502
//	ErrConfiguration, ErrServiceUnavailable  503
//
// CORS and the per-IP [IPRateLimiter] wrap the whole router so preflight requests are
// answered before routing.
//
// # OAuth Callbacks
//
// The API issues single-use states from a [StateStore] and resolves the user from the state when
// Spotify redirects back.
//
// [OAuthHandler] serves the CLI flow: a temporary loopback server for a single known user that
// processes one callback and reports through a channel.
package server

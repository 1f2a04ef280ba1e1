// Package services wraps the external music catalogs behind the [TrackProvider] interface.
//
// # Track Providers
//
// Both catalogs implement [TrackProvider] and map their raw response types into
// [models.Track] inside this package:
//   - [SpotifyService] : search and the Spotify recommendations endpoint
//   - [ITunesService] : search, and recommendations built from fan-out searches
//
// # Spotify
//
// [SpotifyService] authenticates with the client credentials grant. The app token lives in
// a single atomic slot and is replaced a minute before it expires. Recommendations use
// at most five seed tracks and fixed upbeat targets (energy 0.8, valence 0.7, tempo 120+).
//
// [SpotifyUserClient] holds the authorization code flow used to link a user's account and
// the user-scoped calls needed to export a playlist (profile, create playlist, add tracks).
//
// # iTunes
//
// The Search API has no recommendations endpoint. [ITunesService.Recommend] searches the
// first three distinct seed genres and first two distinct seed artists, drops seed and
// duplicate ids, and keeps the first 20 results in genre-then-artist order. A failing
// search is logged and skipped. Outbound requests share a [rate.Limiter].
//
// # Error Handling
//
// Provider failures wrap [shared.ErrExternalProvider]; non-2xx responses are returned as
// [*ProviderError] with the status code. Missing Spotify credentials surface as
// [shared.ErrConfiguration] on first use.
package services

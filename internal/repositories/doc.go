// Package repositories implements SQLite persistence for playlists, songs, users and
// linked Spotify credentials.
//
// Key Implementations:
//   - [PlaylistRepository] : playlist lifecycle, sharing, community listings and cloning
//   - [SongRepository] : ordered playlist contents, written in one batch per playlist
//   - [CredentialRepository] : one linked Spotify account per user
//   - [UserRepository] : display names shown next to public playlists
//
// Multi-statement operations (delete, clone, share-token lookup, song batches) run in a
// single transaction. Playlist creation and song insertion are separate writes, so a
// playlist with zero songs is a valid state that every read path tolerates.
package repositories

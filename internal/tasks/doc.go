// Package tasks composes providers and persistence into the operations behind the API, CLI and TUI.
//
// # Core Operations
//
//  1. [PlaylistEngine.Generate] : seeds → recommendations → playlist row → songs
//     - [Aggregator] picks the provider and caps results at 20 tracks
//     - The playlist row is written before its songs, so a failed song write leaves a
//     playlist with zero songs and the id is still returned
//
//  2. [Exporter.Export] : stored playlist → new playlist on the caller's Spotify account
//     - [TokenSource] refreshes and persists expired user tokens
//     - Only Spotify songs are exported; the result carries "N of M" counts
//
//  3. [PlaylistEngine.Backup] : every playlist of a user → files on disk
//     - Worker pool writes JSON, CSV, Markdown or text via the formatter package
//     - Cover downloads are rate limited; a manifest lists each playlist's outcome
//
// # Progress Reporting
//
// Long operations accept a send-only [ProgressUpdate] channel. Updates use select with
// default, so a slow or absent reader never blocks the operation.
package tasks

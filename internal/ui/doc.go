// Package ui implements an interactive playlist browser using bubbletea's Elm architecture.
//
// The TUI walks through a multi-view workflow:
//  1. [PlaylistListView] : Browse trending or your own playlists (tab toggles)
//  2. [SongListView] : Preview a playlist's songs
//  3. [ConfirmView] : Confirm a clone or Spotify export
//  4. [WorkingView] : Monitor progress while the action runs
//  5. [ResultView] : Show the cloned playlist id or the export summary
//
// Export progress flows through a channel from the exporter, read one update at a time by a
// [tea.Cmd] so the UI never blocks.
package ui

package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgPlaylistsFetched MsgKind = iota
	MsgSongsFetched
	MsgProgressUpdate
	MsgActionComplete
)

type playlistsFetched struct {
	source    Source
	playlists []*models.Playlist
	err       error
}

type songsFetched struct {
	playlist *models.PlaylistExport
	err      error
}

// actionResult reports a finished clone or export.
type actionResult struct {
	action  Action
	cloneID string
	export  *tasks.ExportResult
	err     error
}

// playlistsFetchedMsg is the constructor for [MsgPlaylistsFetched]
func playlistsFetchedMsg(source Source, playlists []*models.Playlist, err error) Msg {
	return Msg{kind: MsgPlaylistsFetched, data: playlistsFetched{source, playlists, err}}
}

// songsFetchedMsg is the constructor for [MsgSongsFetched]
func songsFetchedMsg(playlist *models.PlaylistExport, err error) Msg {
	return Msg{kind: MsgSongsFetched, data: songsFetched{playlist, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// actionCompleteMsg is the constructor for [MsgActionComplete]
func actionCompleteMsg(result actionResult) Msg {
	return Msg{kind: MsgActionComplete, data: result}
}

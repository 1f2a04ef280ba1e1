package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/shared"
	"github.com/desertthunder/upbeat/internal/tasks"
)

// trendingLimit is how many community playlists the browser loads.
const trendingLimit = 50

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlaylistListView ViewState = iota
	SongListView
	ConfirmView
	WorkingView
	ResultView
)

// Source selects which playlists the browser lists.
type Source int

const (
	SourceTrending Source = iota
	SourceMine
)

func (s Source) title() string {
	if s == SourceMine {
		return "My Playlists"
	}
	return "Trending Playlists"
}

// Action is the operation confirmed on the selected playlist.
type Action int

const (
	ActionNone Action = iota
	ActionClone
	ActionExport
)

// Library is the playlist data the TUI browses. [tasks.PlaylistEngine] implements it.
type Library interface {
	Trending(ctx context.Context, limit int) ([]*models.Playlist, error)
	Mine(ctx context.Context, ownerID string) ([]*models.Playlist, error)
	Show(ctx context.Context, playlistID string) (*models.PlaylistExport, error)
	Clone(ctx context.Context, sourceID, ownerID, name string) (string, error)
}

// Exporter pushes a playlist to the user's Spotify account. [tasks.Exporter] implements it.
type Exporter interface {
	Export(ctx context.Context, playlistID, userID string, progress chan<- tasks.ProgressUpdate) (*tasks.ExportResult, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	library      Library
	exporter     Exporter
	userID       string
	source       Source
	width        int
	height       int
	playlistList list.Model
	songList     list.Model
	selected     *models.PlaylistExport
	action       Action
	progressChan chan tasks.ProgressUpdate
	done         chan actionResult
	progress     tasks.ProgressUpdate
	result       *actionResult
	status       string
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model. userID may be empty, which limits the browser to
// trending playlists. A nil exporter disables export.
func NewModel(ctx context.Context, library Library, exporter Exporter, userID string) *Model {
	return &Model{
		ctx:          ctx,
		view:         PlaylistListView,
		library:      library,
		exporter:     exporter,
		userID:       userID,
		source:       SourceTrending,
		playlistList: newList(SourceTrending.title()),
		songList:     newList(""),
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// Init initializes the TUI by fetching trending playlists.
func (m *Model) Init() tea.Cmd {
	return m.fetchPlaylists()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.playlistList.SetSize(msg.Width-4, msg.Height-6)
		m.songList.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case PlaylistListView:
			return m.handlePlaylistListKeys(msg)
		case SongListView:
			return m.handleSongListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		case WorkingView:
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgPlaylistsFetched:
		data := msg.data.(playlistsFetched)
		if data.source != m.source {
			return m, nil
		}
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.playlistList.Title = data.source.title()
		cmd := m.playlistList.SetItems(playlistItems(data.playlists))
		return m, cmd

	case MsgSongsFetched:
		data := msg.data.(songsFetched)
		if data.err != nil {
			m.status = fmt.Sprintf("Could not load playlist: %v", data.err)
			return m, nil
		}
		m.selected = data.playlist
		m.songList.Title = data.playlist.Playlist.Name
		m.songList.ResetSelected()
		cmd := m.songList.SetItems(songItems(data.playlist.Songs))
		m.view = SongListView
		return m, cmd

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgActionComplete:
		result := msg.data.(actionResult)
		m.result = &result
		m.progressChan, m.done = nil, nil
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case PlaylistListView:
		return m.renderPlaylistList()
	case SongListView:
		return m.renderSongList()
	case ConfirmView:
		return m.renderConfirm()
	case WorkingView:
		return m.renderWorking()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handlePlaylistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.playlistList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}
	m.status = ""

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.playlistList.SelectedItem().(playlistItem); ok {
			return m, m.fetchSongs(item.playlist.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.toggle):
		if m.userID == "" {
			m.status = "Set a user id to see your own playlists."
			return m, nil
		}
		if m.source == SourceMine {
			m.source = SourceTrending
		} else {
			m.source = SourceMine
		}
		m.playlistList.ResetSelected()
		return m, m.fetchPlaylists()
	}

	return m.updateLists(msg)
}

func (m *Model) handleSongListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.songList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}
	m.status = ""

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = PlaylistListView
		m.selected = nil
		return m, nil
	case key.Matches(msg, m.keys.clone):
		return m.confirm(ActionClone)
	case key.Matches(msg, m.keys.export):
		if m.exporter == nil {
			m.status = "Spotify export is not configured."
			return m, nil
		}
		return m.confirm(ActionExport)
	}

	return m.updateLists(msg)
}

func (m *Model) confirm(action Action) (tea.Model, tea.Cmd) {
	if m.userID == "" {
		m.status = "Set a user id to clone or export playlists."
		return m, nil
	}
	m.action = action
	m.view = ConfirmView
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = WorkingView
		m.progress = tasks.ProgressUpdate{}
		return m, m.startAction()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.action = ActionNone
		m.view = SongListView
		return m, nil
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.view = PlaylistListView
		m.selected = nil
		m.result = nil
		m.action = ActionNone
		return m, m.fetchPlaylists()
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case PlaylistListView:
		m.playlistList, cmd = m.playlistList.Update(msg)
	case SongListView:
		m.songList, cmd = m.songList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchPlaylists() tea.Cmd {
	ctx, library, source, userID := m.ctx, m.library, m.source, m.userID
	return func() tea.Msg {
		var playlists []*models.Playlist
		var err error
		if source == SourceMine {
			playlists, err = library.Mine(ctx, userID)
		} else {
			playlists, err = library.Trending(ctx, trendingLimit)
		}
		return playlistsFetchedMsg(source, playlists, err)
	}
}

func (m *Model) fetchSongs(playlistID string) tea.Cmd {
	ctx, library := m.ctx, m.library
	return func() tea.Msg {
		playlist, err := library.Show(ctx, playlistID)
		return songsFetchedMsg(playlist, err)
	}
}

func (m *Model) startAction() tea.Cmd {
	ctx, userID, playlistID := m.ctx, m.userID, m.selected.Playlist.ID

	switch m.action {
	case ActionClone:
		library := m.library
		return func() tea.Msg {
			id, err := library.Clone(ctx, playlistID, userID, "")
			return actionCompleteMsg(actionResult{action: ActionClone, cloneID: id, err: err})
		}

	case ActionExport:
		progress := make(chan tasks.ProgressUpdate, 10)
		done := make(chan actionResult, 1)
		m.progressChan, m.done = progress, done

		exporter := m.exporter
		go func() {
			result, err := exporter.Export(ctx, playlistID, userID, progress)
			done <- actionResult{action: ActionExport, export: result, err: err}
			close(progress)
		}()
		return m.waitForProgress()
	}
	return nil
}

// waitForProgress relays one progress update, or the final result once the progress
// channel is closed.
func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.done
	if progress == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-progress
		if !ok {
			return actionCompleteMsg(<-done)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) footer() string {
	out := m.help.ShortHelpView(m.keys.forView(m.view, m.userID != "", m.exporter != nil))
	if m.status != "" {
		out = styles.warn.Render(m.status) + "\n" + out
	}
	return out
}

func (m *Model) renderPlaylistList() string {
	return fmt.Sprintf("%s\n\n%s", m.playlistList.View(), m.footer())
}

func (m *Model) renderSongList() string {
	return fmt.Sprintf("%s\n\n%s", m.songList.View(), m.footer())
}

func (m *Model) renderConfirm() string {
	p := m.selected.Playlist

	var title, info string
	switch m.action {
	case ActionExport:
		spotify := 0
		for _, s := range m.selected.Songs {
			if s.Provider == models.ProviderSpotify {
				spotify++
			}
		}
		title = fmt.Sprintf("Export '%s' to your Spotify account?", p.Name)
		info = fmt.Sprintf("Tracks: %d (%d on Spotify)", len(m.selected.Songs), spotify)
	default:
		title = fmt.Sprintf("Clone '%s' into your library?", p.Name)
		info = fmt.Sprintf("Curator: %s\nTracks: %d", ownerName(&p), len(m.selected.Songs))
	}

	return fmt.Sprintf("%s\n%s\n\n%s", styles.title.Render(title), info, m.footer())
}

func (m *Model) renderWorking() string {
	title := "Cloning Playlist"
	if m.action == ActionExport {
		title = "Exporting to Spotify"
	}

	var phase string
	switch m.progress.Phase {
	case tasks.LoadPlaylist:
		phase = "Loading playlist..."
	case tasks.ResolveToken:
		phase = "Checking Spotify connection..."
	case tasks.ExportPlaylist:
		phase = fmt.Sprintf("Adding tracks (%d/%d on Spotify)", m.progress.Step, m.progress.Total)
	default:
		phase = "Working..."
	}

	return fmt.Sprintf("%s\n\n%s\n%s", styles.title.Render(title), phase, styles.help.Render(m.progress.Message))
}

func (m *Model) renderResult() string {
	helpView := m.footer()
	r := m.result
	if r == nil {
		return styles.err.Render("No result available") + "\n\n" + helpView
	}

	if r.err != nil {
		msg := fmt.Sprintf("Failed: %v", r.err)
		if errors.Is(r.err, shared.ErrNotConnected) {
			msg += "\n\nRun 'upbeat spotify connect' to link your account."
		}
		return styles.err.Render(msg) + "\n\n" + helpView
	}

	var lines []string
	switch r.action {
	case ActionExport:
		lines = []string{
			styles.ok.Render("✓ Exported to Spotify"),
			fmt.Sprintf("Tracks: %d/%d exported", r.export.TracksExported, r.export.TotalTracks),
			"Open: " + r.export.ExternalPlaylistURL,
		}
		if skipped := r.export.TotalTracks - r.export.TracksExported; skipped > 0 {
			lines = append(lines, styles.warn.Render(fmt.Sprintf("%d tracks are not on Spotify and were skipped", skipped)))
		}
	default:
		lines = []string{
			styles.ok.Render(fmt.Sprintf("✓ Cloned '%s'", m.selected.Playlist.Name)),
			"New playlist: " + r.cloneID,
		}
	}

	return styles.box.Render(strings.Join(lines, "\n")) + "\n\n" + helpView
}

func ownerName(p *models.Playlist) string {
	if p.OwnerName != "" {
		return p.OwnerName
	}
	return p.OwnerID
}

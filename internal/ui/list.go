package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/upbeat/internal/models"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = songItem{}
)

// playlistItem wraps [models.Playlist] to implement [list.Item].
type playlistItem struct {
	playlist *models.Playlist
}

func (i playlistItem) FilterValue() string {
	return strings.Join([]string{i.playlist.Name, i.playlist.OwnerName, i.playlist.Genre, i.playlist.Mood}, " ")
}

func (i playlistItem) Title() string { return i.playlist.Name }

func (i playlistItem) Description() string {
	parts := []string{}
	if i.playlist.OwnerName != "" {
		parts = append(parts, "by "+i.playlist.OwnerName)
	}
	parts = append(parts, fmt.Sprintf("%d views", i.playlist.Views), fmt.Sprintf("%d likes", i.playlist.Likes))
	if tags := strings.Trim(i.playlist.Genre+"/"+i.playlist.Mood, "/"); tags != "" {
		parts = append(parts, tags)
	}
	if !i.playlist.IsPublic() {
		parts = append(parts, "private")
	}
	return strings.Join(parts, " • ")
}

// songItem wraps [models.Song] to implement [list.Item].
type songItem struct {
	song models.Song
}

func (i songItem) FilterValue() string { return i.song.Title + " " + i.song.Artist }
func (i songItem) Title() string       { return fmt.Sprintf("%d. %s", i.song.Position+1, i.song.Title) }
func (i songItem) Description() string {
	return fmt.Sprintf("%s • %s", i.song.Artist, i.song.Provider)
}

func newList(title string) list.Model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	return l
}

func playlistItems(playlists []*models.Playlist) []list.Item {
	items := make([]list.Item, len(playlists))
	for i, p := range playlists {
		items[i] = playlistItem{playlist: p}
	}
	return items
}

func songItems(songs []models.Song) []list.Item {
	items := make([]list.Item, len(songs))
	for i, s := range songs {
		items[i] = songItem{song: s}
	}
	return items
}

package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	enter   key.Binding
	back    key.Binding
	toggle  key.Binding
	clone   key.Binding
	export  key.Binding
	yes     key.Binding
	no      key.Binding
	restart key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		toggle:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "trending/mine")),
		clone:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clone")),
		export:  key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export to spotify")),
		yes:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		no:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "no")),
		restart: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "back to playlists")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// forView lists the bindings shown in the footer of view. Toggle needs a user and
// export needs a configured exporter, so they are hidden otherwise.
func (k keyMap) forView(view ViewState, hasUser, canExport bool) []key.Binding {
	switch view {
	case PlaylistListView:
		if hasUser {
			return []key.Binding{k.enter, k.toggle, k.quit}
		}
		return []key.Binding{k.enter, k.quit}
	case SongListView:
		if canExport {
			return []key.Binding{k.clone, k.export, k.back, k.quit}
		}
		return []key.Binding{k.clone, k.back, k.quit}
	case ConfirmView:
		return []key.Binding{k.yes, k.no}
	case ResultView:
		return []key.Binding{k.restart, k.quit}
	default:
		return nil
	}
}

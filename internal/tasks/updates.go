package tasks

import (
	"fmt"

	"github.com/desertthunder/upbeat/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Recommend Phase = iota
	CreatePlaylist
	SaveSongs
	LoadPlaylist
	ResolveToken
	ExportPlaylist
	BackupPlaylist
)

func (p Phase) String() string {
	switch p {
	case Recommend:
		return "recommend"
	case CreatePlaylist:
		return "create_playlist"
	case SaveSongs:
		return "save_songs"
	case LoadPlaylist:
		return "load_playlist"
	case ResolveToken:
		return "resolve_token"
	case ExportPlaylist:
		return "export_playlist"
	case BackupPlaylist:
		return "backup_playlist"
	default:
		return ""
	}
}

func recommendUpdate(provider models.Provider, seeds int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Recommend,
		Step:    1,
		Total:   2,
		Message: fmt.Sprintf("Finding upbeat tracks on %s from %d seeds...", provider, seeds),
	}
}

func recommendedUpdate(tracks []models.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Recommend,
		Step:    2,
		Total:   2,
		Message: fmt.Sprintf("Found %d tracks", len(tracks)),
		Data:    tracks,
	}
}

func createPlaylistUpdate(name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Creating playlist %q...", name),
	}
}

func saveSongsUpdate(id string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SaveSongs,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Saving %d songs to playlist %s...", count, id),
	}
}

func loadPlaylistUpdate(id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LoadPlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Loading playlist %s...", id),
	}
}

func resolveTokenUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveToken,
		Step:    1,
		Total:   1,
		Message: "Checking Spotify connection...",
	}
}

func exportTracksUpdate(name string, eligible, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    eligible,
		Total:   total,
		Message: fmt.Sprintf("Exporting %s (%d of %d tracks on Spotify)...", name, eligible, total),
	}
}

func backupStartUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BackupPlaylist,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Backing up %d playlists...", total),
	}
}

func backupCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BackupPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func backupFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BackupPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}

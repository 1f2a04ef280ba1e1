package server

import (
	"net/http"

	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/tasks"
)

type seedTrack struct {
	ExternalID  string `json:"externalId" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Artist      string `json:"artist" validate:"required"`
	AlbumArtURL string `json:"albumArtUrl"`
	PreviewURL  string `json:"previewUrl"`
	Genre       string `json:"genre"`
}

type generateBody struct {
	Name     string      `json:"name" validate:"required,max=100"`
	Provider string      `json:"provider" validate:"required,oneof=spotify itunes"`
	Seeds    []seedTrack `json:"seeds" validate:"len=20,dive"`
	Genre    string      `json:"genre" validate:"max=50"`
	Mood     string      `json:"mood" validate:"max=50"`
}

func (b generateBody) request(ownerID string) tasks.GenerateRequest {
	provider := models.Provider(b.Provider)
	seeds := make([]models.Track, len(b.Seeds))
	for i, s := range b.Seeds {
		seeds[i] = models.Track{
			ExternalID:  s.ExternalID,
			Title:       s.Title,
			Artist:      s.Artist,
			AlbumArtURL: s.AlbumArtURL,
			PreviewURL:  s.PreviewURL,
			Provider:    provider,
			Genre:       s.Genre,
		}
	}
	return tasks.GenerateRequest{
		OwnerID:  ownerID,
		Name:     b.Name,
		Provider: provider,
		Seeds:    seeds,
		Genre:    b.Genre,
		Mood:     b.Mood,
	}
}

type visibilityBody struct {
	Visibility string `json:"visibility" validate:"required,oneof=public private"`
}

type visibilityResponse struct {
	Visibility models.Visibility `json:"visibility"`
	ShareToken string            `json:"shareToken,omitempty"`
}

type dislikesBody struct {
	Allow *bool `json:"allow" validate:"required"`
}

type cloneBody struct {
	Name string `json:"name" validate:"max=100"`
}

type playlistIDResponse struct {
	PlaylistID string `json:"playlistId"`
}

type urlResponse struct {
	URL string `json:"url"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	provider := models.ProviderSpotify
	if raw := q.Get("provider"); raw != "" {
		p, err := models.ParseProvider(raw)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		provider = p
	}

	tracks, err := s.engine.Search(r.Context(), provider, q.Get("q"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	var body generateBody
	if err := s.decodeJSON(w, r, &body); err != nil {
		writeError(w, s.logger, err)
		return
	}

	result, err := s.engine.Generate(r.Context(), body.request(caller), nil)
	if err != nil {
		status, resp := errorBody(s.logger, err)
		if result != nil {
			resp.PlaylistID = result.PlaylistID
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	playlists, err := s.engine.Mine(r.Context(), caller)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.engine.Songs(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	if err := s.engine.Delete(r.Context(), r.PathValue("id"), caller); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	var body visibilityBody
	if err := s.decodeJSON(w, r, &body); err != nil {
		writeError(w, s.logger, err)
		return
	}

	visibility := models.Visibility(body.Visibility)
	token, err := s.engine.SetVisibility(r.Context(), r.PathValue("id"), caller, visibility)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, visibilityResponse{Visibility: visibility, ShareToken: token})
}

func (s *Server) handleDislikes(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	var body dislikesBody
	if err := s.decodeJSON(w, r, &body); err != nil {
		writeError(w, s.logger, err)
		return
	}

	if err := s.engine.SetAllowDislikes(r.Context(), r.PathValue("id"), caller, *body.Allow); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"allowDislikes": *body.Allow})
}

func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	var body cloneBody
	if r.ContentLength != 0 {
		if err := s.decodeJSON(w, r, &body); err != nil {
			writeError(w, s.logger, err)
			return
		}
	}

	id, err := s.engine.Clone(r.Context(), r.PathValue("id"), caller, body.Name)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, playlistIDResponse{PlaylistID: id})
}

func (s *Server) handlePublic(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	playlists, err := s.engine.Public(r.Context(), limit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	playlists, err := s.engine.Trending(r.Context(), limit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) handleFiltered(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	q := r.URL.Query()
	playlists, err := s.engine.Filtered(r.Context(), models.PlaylistFilter{
		Genre:  q.Get("genre"),
		Mood:   q.Get("mood"),
		Search: q.Get("search"),
		Limit:  limit,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	export, err := s.engine.Shared(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	result, err := s.exporter.Export(r.Context(), r.PathValue("id"), caller, nil)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSpotifyStatus(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	status, err := s.exporter.Status(r.Context(), caller)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSpotifyConnect(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	url, err := s.exporter.AuthURL(s.states.Issue(caller))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: url})
}

// handleSpotifyCallback is the redirect target of the Spotify consent page. The
// browser arrives without the caller header, so the state identifies the user.
func (s *Server) handleSpotifyCallback(w http.ResponseWriter, r *http.Request) {
	userID, err := s.states.Consume(r.URL.Query().Get("state"))
	if err != nil {
		s.logger.Warn("spotify callback rejected", "error", err)
		writeCallbackPage(w, http.StatusBadRequest, false, "This link has expired. Start the connection again.")
		return
	}

	code, err := callbackCode(r)
	if err != nil {
		s.logger.Warn("spotify authorization denied", "user", userID, "error", err)
		writeCallbackPage(w, http.StatusBadRequest, false, "Spotify did not authorize the request.")
		return
	}

	if err := s.exporter.Connect(r.Context(), userID, code); err != nil {
		s.logger.Error("spotify connection failed", "user", userID, "error", err)
		writeCallbackPage(w, statusFor(err), false, "Could not link your Spotify account.")
		return
	}
	writeCallbackPage(w, http.StatusOK, true, "You can close this window and return to upbeat.")
}

func (s *Server) handleSpotifyDisconnect(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	if err := s.exporter.Disconnect(r.Context(), caller); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

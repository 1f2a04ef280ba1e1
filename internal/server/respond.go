package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/shared"
)

// maxBodyBytes bounds JSON request bodies. Twenty seeds fit comfortably.
const maxBodyBytes = 1 << 20

var errMissingCaller = fmt.Errorf("missing %s header", HeaderUserID)

type errorResponse struct {
	Error      string            `json:"error"`
	Fields     map[string]string `json:"fields,omitempty"`
	PlaylistID string            `json:"playlistId,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errMissingCaller):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrInvalidState),
		errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrPlaylistNotFound), errors.Is(err, shared.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, shared.ErrConfiguration), errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrRecommendationFailed),
		errors.Is(err, shared.ErrExternalProvider),
		errors.Is(err, shared.ErrRefreshFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(logger *log.Logger, err error) (int, errorResponse) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		return status, errorResponse{Error: http.StatusText(status)}
	}

	body := errorResponse{Error: err.Error()}
	var verr *ValidationError
	if errors.As(err, &verr) {
		body.Error = "validation failed"
		body.Fields = verr.Fields
	}
	return status, body
}

func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	status, body := errorBody(logger, err)
	writeJSON(w, status, body)
}

// decodeJSON reads a JSON body into dst and validates it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", shared.ErrInvalidInput, err)
	}
	return s.validator.Validate(dst)
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", shared.ErrInvalidInput)
	}
	return limit, nil
}

// requireCaller returns the caller id or [errMissingCaller].
func requireCaller(r *http.Request) (string, error) {
	id := CallerID(r.Context())
	if id == "" {
		return "", errMissingCaller
	}
	return id, nil
}

package livetiming

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"justapengu.in/livetiming/internal/feed"
	"justapengu.in/livetiming/internal/store"
	"justapengu.in/livetiming/internal/timing"
)

// ErrSessionNotGreen rejects a lap capture while the flag is not green.
var ErrSessionNotGreen = errors.New("livetiming: laps can only be captured under the green flag")

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{timing.ErrCaptureDebounced, http.StatusTooManyRequests, "capture_debounced"},
	{timing.ErrRaceNotStarted, http.StatusConflict, "race_not_started"},
	{ErrSessionNotGreen, http.StatusConflict, "session_not_green"},
	{timing.ErrNoSession, http.StatusConflict, "no_session"},
	{timing.ErrUnknownTransition, http.StatusNotFound, "unknown_transition"},
	{store.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{store.ErrDriverNotFound, http.StatusNotFound, "driver_not_found"},
	{store.ErrLapNotFound, http.StatusNotFound, "lap_not_found"},
	{store.ErrInvalidElapsed, http.StatusUnprocessableEntity, "invalid_elapsed"},
	{store.ErrInvalidDriver, http.StatusUnprocessableEntity, "invalid_driver"},
	{store.ErrInvalidSession, http.StatusUnprocessableEntity, "invalid_session"},
	{feed.ErrClosed, http.StatusServiceUnavailable, "shutting_down"},
}

func errorCode(err error) string {
	_, code := statusForError(err)

	return code
}

// statusForError maps an error to an HTTP status. Anything unrecognised
// is a rejection by the store.
func statusForError(err error) (int, string) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}

	return http.StatusBadGateway, "store_rejected"
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status, code := statusForError(err)

	entry := s.logger.WithError(err).WithField("path", r.URL.Path)

	if status >= 500 {
		entry.Error(msg)
	} else {
		entry.Debug(msg)
	}

	writeError(w, status, code, err.Error())
}

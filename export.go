package livetiming

import (
	"fmt"
	"net/http"

	"justapengu.in/livetiming/internal/export"
)

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")

	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "sessionId is required")
		return
	}

	rows, err := export.Rows(r.Context(), s.store, sessionID)

	if err != nil {
		s.handleError(w, r, err, "Could not export session")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(sessionID)))

	if err := export.WriteCSV(w, rows); err != nil {
		s.logger.WithError(err).Errorf("Could not write export for session %s", sessionID)
	}
}

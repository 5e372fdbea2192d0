package livetiming

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"

	"justapengu.in/livetiming/internal/timing"
)

func (s *Server) latestSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.LatestSession(r.Context())

	if err != nil {
		s.handleError(w, r, err, "Could not load latest session")
		return
	}

	if session == nil {
		writeError(w, http.StatusNotFound, "no_session", timing.ErrNoSession.Error())
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (s *Server) sessionLapsHandler(w http.ResponseWriter, r *http.Request) {
	laps, err := s.store.SessionLaps(r.Context(), chi.URLParam(r, "sessionID"))

	if err != nil {
		s.handleError(w, r, err, "Could not load session laps")
		return
	}

	if laps == nil {
		laps = []timing.Lap{}
	}

	writeJSON(w, http.StatusOK, laps)
}

func (s *Server) sessionEventsHandler(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.SessionEvents(r.Context(), chi.URLParam(r, "sessionID"))

	if err != nil {
		s.handleError(w, r, err, "Could not load session events")
		return
	}

	if events == nil {
		events = []timing.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

type createSessionRequest struct {
	Title      string                 `json:"title"`
	Kind       timing.SessionKind     `json:"type"`
	TargetLaps int                    `json:"target_laps"`
	Meta       map[string]interface{} `json:"meta"`
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "could not decode session: "+err.Error())
		return
	}

	session, err := s.CreateSession(r.Context(), timing.Session{
		Kind:       req.Kind,
		Title:      req.Title,
		TargetLaps: req.TargetLaps,
		Meta:       req.Meta,
	})

	if err != nil {
		s.handleError(w, r, err, "Could not create session")
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

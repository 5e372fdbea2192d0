package livetiming

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/pkg/errors"

	"justapengu.in/livetiming/internal/timing"
)

type transitionResponse struct {
	State            timing.SessionState `json:"state"`
	Event            *timing.Event       `json:"event"`
	RaceStartEpochMS *int64              `json:"race_start_epoch_ms,omitempty"`
}

// activeSession is the session race control acts on: the one in the server's
// view.
func (s *Server) activeSession() (*timing.Session, error) {
	session := s.view.Session()

	if session == nil {
		return nil, timing.ErrNoSession
	}

	return session, nil
}

func (s *Server) transitionHandler(w http.ResponseWriter, r *http.Request) {
	transition, err := timing.ParseTransition(chi.URLParam(r, "transition"))

	if err != nil {
		s.handleError(w, r, err, "Unknown session transition")
		return
	}

	session, err := s.activeSession()

	if err != nil {
		s.metrics.transitions.WithLabelValues(string(transition), resultLabel(err)).Inc()
		s.handleError(w, r, err, "Could not transition session")
		return
	}

	result, err := s.stateMachine.Apply(r.Context(), session.ID, transition)

	s.metrics.transitions.WithLabelValues(string(transition), resultLabel(err)).Inc()

	if err != nil {
		s.handleError(w, r, err, "Could not transition session")
		return
	}

	if account := AccountFromContext(r.Context()); account != nil {
		s.logger.Infof("%s applied %s to session %s", account.Username, transition, session.ID)
	}

	resp := transitionResponse{
		State: result.State,
		Event: result.Event,
	}

	if transition == timing.TransitionStartRace {
		resp.RaceStartEpochMS = &result.RaceStartEpochMS
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) captureHandler(w http.ResponseWriter, r *http.Request) {
	driverID := chi.URLParam(r, "driverID")

	session, err := s.activeSession()

	if err != nil {
		s.metrics.captures.WithLabelValues(resultLabel(err)).Inc()
		s.handleError(w, r, err, "Could not capture lap")
		return
	}

	// without a race start Capture fails with ErrRaceNotStarted
	if session.HasStarted() && session.State != timing.StateGreen {
		s.metrics.captures.WithLabelValues(resultLabel(ErrSessionNotGreen)).Inc()
		s.handleError(w, r, ErrSessionNotGreen, "Could not capture lap")
		return
	}

	lap, err := s.capture.Capture(r.Context(), session.ID, driverID, session.RaceStartEpochMS, time.Now())

	s.metrics.captures.WithLabelValues(resultLabel(err)).Inc()

	if err != nil {
		s.handleError(w, r, err, "Could not capture lap")
		return
	}

	writeJSON(w, http.StatusCreated, lap)
}

type undoResponse struct {
	// Lap is the lap that was removed, nil if the driver had none.
	Lap *timing.Lap `json:"lap"`

	// AuditError is set when the lap was removed but the undo could not be
	// recorded in the event log.
	AuditError string `json:"audit_error,omitempty"`
}

func (s *Server) undoHandler(w http.ResponseWriter, r *http.Request) {
	driverID := chi.URLParam(r, "driverID")

	session, err := s.activeSession()

	if err != nil {
		s.metrics.undos.WithLabelValues(resultLabel(err)).Inc()
		s.handleError(w, r, err, "Could not undo lap")
		return
	}

	lastLap := s.view.LastLap(driverID)

	err = s.capture.Undo(r.Context(), session.ID, lastLap)

	var auditErr *timing.UndoAuditError

	if errors.As(err, &auditErr) {
		s.metrics.undos.WithLabelValues("audit_failed").Inc()
		s.logger.WithError(auditErr.Err).Errorf("Lap %d for driver %s was undone without an audit event", auditErr.Lap.LapIndex, driverID)

		writeJSON(w, http.StatusOK, undoResponse{Lap: &auditErr.Lap, AuditError: auditErr.Err.Error()})
		return
	}

	s.metrics.undos.WithLabelValues(resultLabel(err)).Inc()

	if err != nil {
		s.handleError(w, r, err, "Could not undo lap")
		return
	}

	writeJSON(w, http.StatusOK, undoResponse{Lap: lastLap})
}

func (s *Server) leaderboardHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewLeaderboard(s.view.Session(), s.view.Classification(), time.Now()))
}

package livetiming

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"

	"justapengu.in/livetiming/internal/timing"
)

// listDriversHandler serves the active grid, or every driver with ?all=true.
func (s *Server) listDriversHandler(w http.ResponseWriter, r *http.Request) {
	var drivers []timing.Driver
	var err error

	if r.URL.Query().Get("all") == "true" {
		drivers, err = s.store.Drivers(r.Context())
	} else {
		drivers, err = s.store.ActiveDrivers(r.Context())
	}

	if err != nil {
		s.handleError(w, r, err, "Could not load drivers")
		return
	}

	if drivers == nil {
		drivers = []timing.Driver{}
	}

	writeJSON(w, http.StatusOK, drivers)
}

type upsertDriverRequest struct {
	Number int     `json:"number"`
	Name   string  `json:"name"`
	TeamID *string `json:"team_id"`

	// Active defaults to true.
	Active *bool `json:"active"`
}

func (s *Server) upsertDriverHandler(w http.ResponseWriter, r *http.Request) {
	var req upsertDriverRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "could not decode driver: "+err.Error())
		return
	}

	active := true

	if req.Active != nil {
		active = *req.Active
	}

	driver, err := s.store.UpsertDriver(r.Context(), timing.Driver{
		ID:     chi.URLParam(r, "driverID"),
		Number: req.Number,
		Name:   req.Name,
		TeamID: req.TeamID,
		Active: active,
	})

	if err != nil {
		s.handleError(w, r, err, "Could not save driver")
		return
	}

	writeJSON(w, http.StatusOK, driver)
}

func (s *Server) deactivateDriverHandler(w http.ResponseWriter, r *http.Request) {
	driver, err := s.store.DeactivateDriver(r.Context(), chi.URLParam(r, "driverID"))

	if err != nil {
		s.handleError(w, r, err, "Could not remove driver")
		return
	}

	writeJSON(w, http.StatusOK, driver)
}

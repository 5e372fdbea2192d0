package livetiming

import (
	"encoding/json"
	"fmt"

	"justapengu.in/livetiming/internal/timing"
)

// RaceControlAdapter receives every change merged into the server's view and
// turns it into race control log lines and metrics.
type RaceControlAdapter struct {
	view    *timing.View
	metrics *Metrics
	logger  Logger
}

func NewRaceControlAdapter(view *timing.View, metrics *Metrics, logger Logger) *RaceControlAdapter {
	return &RaceControlAdapter{
		view:    view,
		metrics: metrics,
		logger:  logger,
	}
}

func (r *RaceControlAdapter) OnChange(change timing.Change) {
	r.metrics.changes.WithLabelValues(string(change.Table()), string(change.Kind())).Inc()

	switch c := change.(type) {
	case timing.SessionChange:
		r.OnSession(c)
	case timing.LapChange:
		r.OnLap(c)
	case timing.EventChange:
		r.OnEvent(c)
	case timing.DriverChange:
		r.OnDriver(c)
	}
}

func (r *RaceControlAdapter) OnSession(c timing.SessionChange) {
	if c.Session == nil {
		r.logger.Warn("Session was deleted")
		return
	}

	r.logger.Infof("Session %s is now: %s", c.Session.Title, c.Session.State.Label())
}

func (r *RaceControlAdapter) OnLap(c timing.LapChange) {
	// deletes only carry the lap ID
	if c.ChangeKind == timing.ChangeDelete {
		r.logger.Infof("Lap %s was removed", c.Lap.ID)
		return
	}

	name := r.driverName(c.Lap.DriverID)

	r.logger.Infof("Lap %d completed by %s: %s (elapsed %s)", c.Lap.LapIndex, name, timing.FormatDuration(c.Lap.LapMS), timing.FormatDuration(c.Lap.AbsoluteMS))
}

func (r *RaceControlAdapter) OnEvent(c timing.EventChange) {
	if c.ChangeKind != timing.ChangeInsert {
		return
	}

	switch c.Event.Type {
	case timing.EventUndo:
		var payload timing.UndoPayload

		if err := json.Unmarshal(c.Event.Payload, &payload); err != nil {
			r.logger.WithError(err).Warn("Could not read undo event payload")
			return
		}

		r.logger.Infof("Lap %d for %s was undone", payload.LapIndex, r.driverName(payload.DriverID))
	case timing.EventRaceStart:
		r.logger.Info("Race started")
	default:
		r.logger.Debugf("Recorded %s event", c.Event.Type)
	}
}

func (r *RaceControlAdapter) OnDriver(c timing.DriverChange) {
	if c.ChangeKind == timing.ChangeDelete {
		r.logger.Infof("Driver %s was removed", c.Driver.ID)
		return
	}

	if !c.Driver.Active {
		r.logger.Infof("Driver #%d %s left the grid", c.Driver.Number, c.Driver.Name)
		return
	}

	r.logger.Debugf("Driver #%d %s updated", c.Driver.Number, c.Driver.Name)
}

func (r *RaceControlAdapter) driverName(driverID string) string {
	for _, driver := range r.view.Drivers() {
		if driver.ID == driverID {
			return fmt.Sprintf("#%d %s", driver.Number, driver.Name)
		}
	}

	return driverID
}

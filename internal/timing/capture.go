package timing

import (
	"context"
	"time"
)

// LapCapture turns operator actions into lap mutations on the store. The
// resulting rows reach the View through the feed, never directly.
type LapCapture struct {
	store  LapStore
	guard  *CaptureGuard
	logger Logger
}

func NewLapCapture(store LapStore, guard *CaptureGuard, logger Logger) *LapCapture {
	return &LapCapture{
		store:  store,
		guard:  guard,
		logger: logger,
	}
}

// Capture records a lap for driverID at now. raceStartEpochMS is the session's
// race start; a nil value fails with ErrRaceNotStarted before anything else is
// checked. The driver is reserved in the guard while the lap is committed and
// only marked once the store has accepted it, so a failed commit can be
// retried straight away.
func (lc *LapCapture) Capture(ctx context.Context, sessionID, driverID string, raceStartEpochMS *int64, now time.Time) (*Lap, error) {
	if raceStartEpochMS == nil {
		return nil, ErrRaceNotStarted
	}

	nowMS := EpochMS(now)

	if !lc.guard.Reserve(driverID, nowMS) {
		return nil, ErrCaptureDebounced
	}

	// not clamped: a negative elapsed time is for the store to reject.
	absoluteMS := nowMS - *raceStartEpochMS

	lap, err := lc.store.CommitLap(ctx, sessionID, driverID, absoluteMS)

	if err != nil {
		lc.guard.Release(driverID)
		return nil, err
	}

	lc.guard.MarkCapture(driverID, nowMS)

	lc.logger.Debugf("Captured lap %d for driver %s (%s)", lap.LapIndex, driverID, FormatDuration(lap.LapMS))

	return lap, nil
}

// Undo deletes lastLap, the driver's most recent lap, and records an UNDO
// event. A nil lastLap is a no-op. If the event cannot be written after the
// lap was deleted an *UndoAuditError is returned and the deletion stands.
func (lc *LapCapture) Undo(ctx context.Context, sessionID string, lastLap *Lap) error {
	if lastLap == nil {
		return nil
	}

	if err := lc.store.DeleteLap(ctx, lastLap.ID); err != nil {
		return err
	}

	event, err := NewEvent(sessionID, EventUndo, UndoPayload{DriverID: lastLap.DriverID, LapIndex: lastLap.LapIndex})

	if err != nil {
		return &UndoAuditError{Lap: *lastLap, Err: err}
	}

	if _, err := lc.store.InsertEvent(ctx, event); err != nil {
		lc.logger.WithError(err).Errorf("Lap %d for driver %s was deleted but the undo event could not be written", lastLap.LapIndex, lastLap.DriverID)
		return &UndoAuditError{Lap: *lastLap, Err: err}
	}

	lc.logger.Infof("Undid lap %d for driver %s", lastLap.LapIndex, lastLap.DriverID)

	return nil
}

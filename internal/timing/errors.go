package timing

import (
	"errors"
	"fmt"
)

var (
	ErrRaceNotStarted   = errors.New("timing: race has not started")
	ErrCaptureDebounced = errors.New("timing: capture debounced")
	ErrNoSession        = errors.New("timing: no active session found")

	ErrPartialRow        = errors.New("timing: partial row image")
	ErrUnknownTable      = errors.New("timing: unknown table")
	ErrUnknownChange     = errors.New("timing: unknown change kind")
	ErrMissingRowImage   = errors.New("timing: notification has no row image")
	ErrUnknownTransition = errors.New("timing: unknown session transition")
)

// UndoAuditError is returned by Undo when the lap was deleted but the UNDO
// audit event could not be written. The deletion is not rolled back.
type UndoAuditError struct {
	Lap Lap
	Err error
}

func (e *UndoAuditError) Error() string {
	return fmt.Sprintf("timing: lap %d for driver %s was deleted but the undo event was not recorded: %s", e.Lap.LapIndex, e.Lap.DriverID, e.Err)
}

func (e *UndoAuditError) Unwrap() error {
	return e.Err
}

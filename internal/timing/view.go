package timing

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// View is the reconciled, best known state of the active session. It starts
// empty, is populated by snapshot loads and kept current by Apply. Merges are
// idempotent and the ordering of every collection is independent of the order
// in which changes arrive.
//
// Ordering:
//   - drivers by car number, then ID
//   - laps by lap index, then driver ID, then lap ID
//   - events by creation time; equal times keep their arrival order
type View struct {
	mutex sync.RWMutex

	session *Session
	drivers []Driver
	laps    []Lap
	events  []Event

	// removed laps, so that a late insert cannot bring one back.
	removedLaps map[string]bool

	guard *CaptureGuard
}

func NewView(captureDebounce time.Duration) *View {
	return &View{
		removedLaps: make(map[string]bool),
		guard:       NewCaptureGuard(captureDebounce),
	}
}

func (v *View) CaptureGuard() *CaptureGuard {
	return v.guard
}

// Clear empties the view and the capture guard.
func (v *View) Clear() {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.session = nil
	v.drivers = nil
	v.laps = nil
	v.events = nil
	v.removedLaps = make(map[string]bool)
	v.guard.Reset()
}

func (v *View) SetSession(session *Session) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.session = session.Copy()
}

func (v *View) SetDrivers(drivers []Driver) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.drivers = append([]Driver(nil), drivers...)
	sortDrivers(v.drivers)
}

func (v *View) SetLaps(laps []Lap) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.laps = append([]Lap(nil), laps...)
	v.removedLaps = make(map[string]bool)
	sortLaps(v.laps)
}

func (v *View) SetEvents(events []Event) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.events = append([]Event(nil), events...)
	sortEvents(v.events)
}

// Apply merges a single change into the view.
func (v *View) Apply(change Change) error {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	switch c := change.(type) {
	case SessionChange:
		if c.ChangeKind == ChangeDelete {
			v.session = nil
		} else {
			v.session = c.Session.Copy()
		}
	case DriverChange:
		if c.ChangeKind == ChangeDelete {
			v.removeDriver(c.Driver.ID)
		} else {
			v.upsertDriver(c.Driver)
		}
	case LapChange:
		if c.ChangeKind == ChangeDelete {
			v.removeLap(c.Lap.ID)
		} else {
			v.upsertLap(c.Lap)
		}
	case EventChange:
		if c.ChangeKind == ChangeDelete {
			v.removeEvent(c.Event.ID)
		} else {
			v.upsertEvent(c.Event)
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnknownTable, change)
	}

	return nil
}

func (v *View) upsertDriver(driver Driver) {
	for i := range v.drivers {
		if v.drivers[i].ID == driver.ID {
			v.drivers[i] = driver
			sortDrivers(v.drivers)
			return
		}
	}

	v.drivers = append(v.drivers, driver)
	sortDrivers(v.drivers)
}

func (v *View) removeDriver(driverID string) {
	for i := range v.drivers {
		if v.drivers[i].ID == driverID {
			v.drivers = append(v.drivers[:i], v.drivers[i+1:]...)
			return
		}
	}
}

func (v *View) upsertLap(lap Lap) {
	if v.removedLaps[lap.ID] {
		return
	}

	for i := range v.laps {
		if v.laps[i].ID == lap.ID {
			v.laps[i] = lap
			sortLaps(v.laps)
			return
		}
	}

	v.laps = append(v.laps, lap)
	sortLaps(v.laps)
}

func (v *View) removeLap(lapID string) {
	v.removedLaps[lapID] = true

	for i := range v.laps {
		if v.laps[i].ID == lapID {
			v.laps = append(v.laps[:i], v.laps[i+1:]...)
			return
		}
	}
}

func (v *View) upsertEvent(event Event) {
	for i := range v.events {
		if v.events[i].ID == event.ID {
			v.events[i] = event
			sortEvents(v.events)
			return
		}
	}

	v.events = append(v.events, event)
	sortEvents(v.events)
}

func (v *View) removeEvent(eventID string) {
	for i := range v.events {
		if v.events[i].ID == eventID {
			v.events = append(v.events[:i], v.events[i+1:]...)
			return
		}
	}
}

func sortDrivers(drivers []Driver) {
	sort.SliceStable(drivers, func(i, j int) bool {
		if drivers[i].Number == drivers[j].Number {
			return drivers[i].ID < drivers[j].ID
		}

		return drivers[i].Number < drivers[j].Number
	})
}

func sortLaps(laps []Lap) {
	sort.SliceStable(laps, func(i, j int) bool {
		lapI, lapJ := laps[i], laps[j]

		if lapI.LapIndex != lapJ.LapIndex {
			return lapI.LapIndex < lapJ.LapIndex
		}

		if lapI.DriverID != lapJ.DriverID {
			return lapI.DriverID < lapJ.DriverID
		}

		return lapI.ID < lapJ.ID
	})
}

func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}

// Session returns a copy of the current session, or nil.
func (v *View) Session() *Session {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.session.Copy()
}

func (v *View) Drivers() []Driver {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return append([]Driver(nil), v.drivers...)
}

func (v *View) Laps() []Lap {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return append([]Lap(nil), v.laps...)
}

func (v *View) Events() []Event {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return append([]Event(nil), v.events...)
}

// DriverLaps returns the laps of driverID by ascending lap index.
func (v *View) DriverLaps(driverID string) []Lap {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	var laps []Lap

	for _, lap := range v.laps {
		if lap.DriverID == driverID {
			laps = append(laps, lap)
		}
	}

	return laps
}

// LastLap returns the driver's lap with the highest lap index, or nil.
func (v *View) LastLap(driverID string) *Lap {
	laps := v.DriverLaps(driverID)

	if len(laps) == 0 {
		return nil
	}

	last := laps[len(laps)-1]

	return &last
}

func (v *View) Classification() []*ClassificationLine {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return Classify(v.drivers, v.laps)
}

package timing

import (
	"sync"
	"time"
)

const DefaultCaptureDebounce = 1200 * time.Millisecond

// CaptureGuard debounces lap captures per driver. It only protects against
// accidental double taps on one operator station; captures from different
// stations are separated by the lap index assignment in CommitLap.
type CaptureGuard struct {
	windowMS int64

	mutex       sync.Mutex
	lastCapture map[string]int64
	inFlight    map[string]bool
}

func NewCaptureGuard(window time.Duration) *CaptureGuard {
	if window <= 0 {
		window = DefaultCaptureDebounce
	}

	return &CaptureGuard{
		windowMS:    window.Milliseconds(),
		lastCapture: make(map[string]int64),
		inFlight:    make(map[string]bool),
	}
}

// CanCapture reports whether a capture for driverID at nowMS would be admitted.
func (g *CaptureGuard) CanCapture(driverID string, nowMS int64) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.canCapture(driverID, nowMS)
}

func (g *CaptureGuard) canCapture(driverID string, nowMS int64) bool {
	if g.inFlight[driverID] {
		return false
	}

	last, ok := g.lastCapture[driverID]

	if !ok {
		return true
	}

	return nowMS-last > g.windowMS
}

// Reserve admits a capture for driverID at nowMS and holds the driver until
// MarkCapture or Release. A held driver is never admitted.
func (g *CaptureGuard) Reserve(driverID string, nowMS int64) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if !g.canCapture(driverID, nowMS) {
		return false
	}

	g.inFlight[driverID] = true

	return true
}

// Release drops a reservation without recording a capture.
func (g *CaptureGuard) Release(driverID string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	delete(g.inFlight, driverID)
}

// MarkCapture records a capture at nowMS and ends any reservation.
func (g *CaptureGuard) MarkCapture(driverID string, nowMS int64) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.lastCapture[driverID] = nowMS
	delete(g.inFlight, driverID)
}

func (g *CaptureGuard) Reset() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.lastCapture = make(map[string]int64)
	g.inFlight = make(map[string]bool)
}

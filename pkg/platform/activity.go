package platform

import (
	"sync"
	"time"
)

// DefaultReleaseGrace is how long after the last cycling key event the
// modifiers are still considered held.
const DefaultReleaseGrace = 400 * time.Millisecond

// Activity infers modifier state from hotkey events. Global hotkey APIs
// only report the bound key, so the chord counts as held while a key is
// down and for a grace period after the last event.
type Activity struct {
	Grace time.Duration
	Now   func() time.Time

	mu   sync.Mutex
	down int
	last time.Time
}

func (a *Activity) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Press records a key down.
func (a *Activity) Press() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.down++
	a.last = a.now()
}

// Lift records a key up.
func (a *Activity) Lift() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.down > 0 {
		a.down--
	}
	a.last = a.now()
}

// ModifiersHeld implements cycle.Keyboard.
func (a *Activity) ModifiersHeld() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.down > 0 {
		return true
	}
	if a.last.IsZero() {
		return false
	}
	grace := a.Grace
	if grace <= 0 {
		grace = DefaultReleaseGrace
	}
	return a.now().Sub(a.last) < grace
}

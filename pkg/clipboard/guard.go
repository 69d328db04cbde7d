package clipboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NativePollInterval is how often the system clipboard backend checks for
// changes.
const NativePollInterval = 250 * time.Millisecond

// DefaultHold is how long a Guard stays held after a write completes. It
// spans two native polls so the backend sees our write while still held.
const DefaultHold = 2*NativePollInterval + 100*time.Millisecond

// Guard marks clipboard changes made by this process so the watcher does
// not record them. Ownership is tracked by token: a delayed release only
// clears the guard if no later write has taken it over.
type Guard struct {
	mu    sync.Mutex
	owner uuid.UUID
	held  bool
}

// Begin takes ownership and returns the token to release it with.
func (g *Guard) Begin() uuid.UUID {
	tok := uuid.New()
	g.mu.Lock()
	g.owner = tok
	g.held = true
	g.mu.Unlock()
	return tok
}

// Release clears the guard after delay if tok still owns it.
func (g *Guard) Release(tok uuid.UUID, delay time.Duration) {
	release := func() {
		g.mu.Lock()
		if g.held && g.owner == tok {
			g.held = false
		}
		g.mu.Unlock()
	}
	if delay <= 0 {
		release()
		return
	}
	time.AfterFunc(delay, release)
}

// Held reports whether a self-write is in flight.
func (g *Guard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

// Consume clears the guard and reports whether it was held.
func (g *Guard) Consume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	was := g.held
	g.held = false
	return was
}

// GuardedWriter writes through a Writer while holding a Guard, retrying
// transient failures.
type GuardedWriter struct {
	Writer   Writer
	Guard    *Guard
	Hold     time.Duration
	Attempts int
}

// NewGuardedWriter returns a writer with the default hold and three attempts.
func NewGuardedWriter(w Writer, g *Guard) *GuardedWriter {
	return &GuardedWriter{Writer: w, Guard: g, Hold: DefaultHold, Attempts: 3}
}

func (w *GuardedWriter) Write(ctx context.Context, p *Payload) error {
	tok := w.Guard.Begin()
	defer w.Guard.Release(tok, w.Hold)

	attempts := max(w.Attempts, 1)
	var err error
	for i := range attempts {
		if err = w.Writer.Write(ctx, p); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(50*(i+1)) * time.Millisecond):
		}
	}
	return fmt.Errorf("failed to write clipboard after %d attempts: %w", attempts, err)
}

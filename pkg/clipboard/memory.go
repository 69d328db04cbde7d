package clipboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrUnavailable is returned by Memory.Read while reads are set to fail,
// mimicking a clipboard held open by another process.
var ErrUnavailable = errors.New("clipboard unavailable")

// Memory is an in-process clipboard. Every Set or Write bumps the sequence
// and raises a Watch signal, like the system clipboard does.
type Memory struct {
	mu        sync.Mutex
	current   *Payload
	failReads int
	readHook  func()
	writes    int

	seq     atomic.Uint64
	watchCh chan struct{}
}

// NewMemory returns an empty in-memory clipboard.
func NewMemory() *Memory {
	return &Memory{watchCh: make(chan struct{}, 1)}
}

func (m *Memory) Name() string { return "memory" }

// Set replaces the contents as if another application copied p.
func (m *Memory) Set(p *Payload) {
	m.mu.Lock()
	m.current = p.Clone()
	m.mu.Unlock()
	m.changed()
}

// SetText is shorthand for Set with a plain text payload.
func (m *Memory) SetText(text string) {
	m.Set(&Payload{Formats: []string{FormatText}, Text: text})
}

// FailReads makes the next n reads return ErrUnavailable.
func (m *Memory) FailReads(n int) {
	m.mu.Lock()
	m.failReads = n
	m.mu.Unlock()
}

// OnRead installs fn to run at the start of every Read.
func (m *Memory) OnRead(fn func()) {
	m.mu.Lock()
	m.readHook = fn
	m.mu.Unlock()
}

// Writes returns how many times Write was called.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Current returns a copy of the current contents.
func (m *Memory) Current() *Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

func (m *Memory) Read(ctx context.Context) (*Payload, error) {
	m.mu.Lock()
	hook := m.readHook
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads > 0 {
		m.failReads--
		return nil, ErrUnavailable
	}
	return m.current.Clone(), nil
}

func (m *Memory) Write(ctx context.Context, p *Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.current = p.Clone()
	m.writes++
	m.mu.Unlock()
	m.changed()
	return nil
}

func (m *Memory) changed() {
	m.seq.Add(1)
	select {
	case m.watchCh <- struct{}{}:
	default:
	}
}

func (m *Memory) Sequence() uint64       { return m.seq.Load() }
func (m *Memory) Watch() <-chan struct{} { return m.watchCh }
func (m *Memory) Close()                 {}

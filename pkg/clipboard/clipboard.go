package clipboard

import "context"

// Reader is the read side of a clipboard backend.
type Reader interface {
	// Read returns the current clipboard contents. A nil payload with a nil
	// error means the clipboard is empty.
	Read(ctx context.Context) (*Payload, error)

	// Sequence returns a counter that changes whenever the clipboard
	// contents change.
	Sequence() uint64
}

// Writer replaces the clipboard contents.
type Writer interface {
	Write(ctx context.Context, p *Payload) error
}

// Backend is the interface that all clipboard implementations satisfy.
type Backend interface {
	Reader
	Writer

	// Name returns a human-readable name for the backend.
	Name() string

	// Watch returns a channel that receives a signal whenever the clipboard
	// changes. The channel is never closed.
	Watch() <-chan struct{}

	// Close releases any resources held by the backend.
	Close()
}

// headlessBackend is a no-op backend for environments without a display.
// It never produces Watch events and silently discards writes.
type headlessBackend struct {
	watchCh chan struct{}
}

// NewHeadless returns a no-op backend.
func NewHeadless() Backend {
	return &headlessBackend{watchCh: make(chan struct{})}
}

func (b *headlessBackend) Name() string                           { return "headless (no-op)" }
func (b *headlessBackend) Read(context.Context) (*Payload, error) { return nil, nil }
func (b *headlessBackend) Write(context.Context, *Payload) error  { return nil }
func (b *headlessBackend) Sequence() uint64                       { return 0 }
func (b *headlessBackend) Watch() <-chan struct{}                 { return b.watchCh }
func (b *headlessBackend) Close()                                 {}

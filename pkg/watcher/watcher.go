// Package watcher turns clipboard change notifications into stored
// history entries.
//
// Backend notifications, the sequence poller and external Notify calls are
// all drained by a single consumer loop. Every signal carries the
// foreground owner read when it was raised. Backend notifications wait
// for the consumer; poll and Notify sends never block, so a signal that
// arrives while an earlier one is still being classified is dropped.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spideyz0r/clipring/pkg/classify"
	"github.com/spideyz0r/clipring/pkg/clipboard"
	"github.com/spideyz0r/clipring/pkg/storage"
)

// Source is the clipboard side the watcher observes.
type Source interface {
	clipboard.Reader
	Watch() <-chan struct{}
}

// Sink persists classified entries.
type Sink interface {
	Save(ctx context.Context, e *storage.Entry) (bool, error)
}

// Foreground reports the application owning the foreground window.
type Foreground func() classify.Origin

// Origin of a signal.
type Origin int

const (
	FromPush Origin = iota
	FromPoll
	FromNotify
)

func (o Origin) String() string {
	switch o {
	case FromPush:
		return "push"
	case FromPoll:
		return "poll"
	case FromNotify:
		return "notify"
	}
	return "unknown"
}

// Signal is one clipboard-changed notification.
type Signal struct {
	From  Origin
	At    time.Time
	Owner classify.Origin
}

// Event is published after an entry is stored.
type Event struct {
	Summary *storage.Summary
	// Touched is set when the copy refreshed an existing entry.
	Touched bool
}

// Config holds the watcher timings.
type Config struct {
	PollInterval time.Duration
	Debounce     time.Duration
	SettleDelay  time.Duration
	ReadAttempts int
	ReadBackoff  time.Duration
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
		Debounce:     500 * time.Millisecond,
		SettleDelay:  30 * time.Millisecond,
		ReadAttempts: 5,
		ReadBackoff:  10 * time.Millisecond,
	}
}

// Options configures a Watcher. Zero fields take defaults.
type Options struct {
	Config     Config
	Guard      *clipboard.Guard
	Foreground Foreground
	Classifier *classify.Classifier
	Logger     *slog.Logger
	Now        func() time.Time
}

// Watcher observes the clipboard and records every change.
type Watcher struct {
	cfg        Config
	src        Source
	sink       Sink
	guard      *clipboard.Guard
	foreground Foreground
	classifier *classify.Classifier
	log        *slog.Logger
	now        func() time.Time

	signals chan Signal
	lastSeq atomic.Uint64

	// lastDone is only touched by the consumer loop.
	lastDone time.Time

	mu   sync.Mutex
	subs []chan Event
}

// New returns a watcher reading src and saving into sink.
func New(src Source, sink Sink, opts Options) *Watcher {
	w := &Watcher{
		cfg:        opts.Config,
		src:        src,
		sink:       sink,
		guard:      opts.Guard,
		foreground: opts.Foreground,
		classifier: opts.Classifier,
		log:        opts.Logger,
		now:        opts.Now,
		signals:    make(chan Signal),
	}
	def := DefaultConfig()
	if w.cfg.PollInterval <= 0 {
		w.cfg.PollInterval = def.PollInterval
	}
	if w.cfg.Debounce < 0 {
		w.cfg.Debounce = 0
	}
	if w.cfg.ReadAttempts <= 0 {
		w.cfg.ReadAttempts = def.ReadAttempts
	}
	if w.guard == nil {
		w.guard = &clipboard.Guard{}
	}
	if w.classifier == nil {
		w.classifier = classify.New()
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	w.log = w.log.With("component", "watcher")
	if w.now == nil {
		w.now = time.Now
	}
	w.lastSeq.Store(src.Sequence())
	return w
}

// Subscribe returns a channel receiving an Event for every stored entry.
// Slow subscribers miss events rather than stall the watcher.
func (w *Watcher) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	w.mu.Lock()
	w.subs = append(w.subs, ch)
	w.mu.Unlock()
	return ch
}

func (w *Watcher) publish(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- ev:
		default:
			w.log.Warn("subscriber lagging, event dropped", "id", ev.Summary.ID)
		}
	}
}

// Notify delivers an externally observed change notification. It reports
// whether the signal was accepted; it is dropped while another change is
// being processed.
func (w *Watcher) Notify() bool {
	return w.offer(w.signal(FromNotify))
}

func (w *Watcher) signal(from Origin) Signal {
	var owner classify.Origin
	if w.foreground != nil {
		owner = w.foreground()
	}
	return Signal{From: from, At: w.now(), Owner: owner}
}

func (w *Watcher) offer(sig Signal) bool {
	select {
	case w.signals <- sig:
		return true
	default:
		return false
	}
}

// Run consumes signals until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.poll(ctx)
	}()
	go func() {
		defer wg.Done()
		w.forward(ctx, w.src.Watch())
	}()
	defer wg.Wait()

	w.log.Info("watching clipboard", "poll_interval", w.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-w.signals:
			w.handle(ctx, sig)
		}
	}
}

// forward turns backend notifications into signals as they are raised and
// hands them to the consumer, waiting while it is busy.
func (w *Watcher) forward(ctx context.Context, watch <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-watch:
			if !ok {
				return
			}
		}

		sig := w.signal(FromPush)
		select {
		case <-ctx.Done():
			return
		case w.signals <- sig:
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	t := time.NewTicker(w.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if w.src.Sequence() != w.lastSeq.Load() {
				w.offer(w.signal(FromPoll))
			}
		}
	}
}

// handle runs the pipeline for one signal. Nothing here may stop the loop.
func (w *Watcher) handle(ctx context.Context, sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("clipboard pipeline panicked", "panic", r)
		}
	}()

	seq := w.src.Sequence()

	if w.guard.Consume() {
		w.lastSeq.Store(seq)
		w.log.Debug("ignoring own clipboard write", "from", sig.From.String())
		return
	}
	if sig.From != FromNotify && seq == w.lastSeq.Load() {
		return
	}
	if !w.lastDone.IsZero() && w.now().Sub(w.lastDone) < w.cfg.Debounce {
		// Left unrecorded so the poller picks the change up later.
		w.log.Debug("debounced", "from", sig.From.String())
		return
	}

	if err := sleep(ctx, w.cfg.SettleDelay); err != nil {
		return
	}

	payload, err := w.read(ctx)
	if err != nil {
		w.log.Debug("clipboard read failed, signal dropped", "err", err)
		return
	}
	w.lastSeq.Store(seq)

	entry, skip := w.classifier.Classify(payload, sig.Owner)
	w.lastDone = w.now()
	if skip != classify.SkipNone {
		w.log.Debug("clipboard change skipped", "reason", skip.String(), "app", sig.Owner.App)
		return
	}

	entry.CreatedAt = w.now()
	touched, err := w.sink.Save(ctx, entry)
	if err != nil {
		w.log.Warn("failed to save clipboard entry", "err", err, "kind", entry.Kind)
		return
	}

	w.log.Debug("clipboard entry stored", "id", entry.ID, "kind", entry.Kind, "touched", touched)
	w.publish(Event{Summary: entry.Summary(), Touched: touched})
}

// read fetches the clipboard, retrying with exponential backoff while it
// is held by another process.
func (w *Watcher) read(ctx context.Context) (*clipboard.Payload, error) {
	var lastErr error
	for i := range w.cfg.ReadAttempts {
		p, err := w.src.Read(ctx)
		if err == nil {
			if p == nil {
				return nil, fmt.Errorf("clipboard empty")
			}
			return p, nil
		}
		lastErr = err
		if i < w.cfg.ReadAttempts-1 {
			if err := sleep(ctx, w.cfg.ReadBackoff<<i); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", w.cfg.ReadAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Package daemon wires the clipboard watcher, the history store and the
// cycling controller into one long-running process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spideyz0r/clipring/pkg/clipboard"
	"github.com/spideyz0r/clipring/pkg/config"
	"github.com/spideyz0r/clipring/pkg/cycle"
	"github.com/spideyz0r/clipring/pkg/logging"
	"github.com/spideyz0r/clipring/pkg/platform"
	"github.com/spideyz0r/clipring/pkg/storage"
	"github.com/spideyz0r/clipring/pkg/watcher"
)

// HotkeyFactory builds the registrar that delivers cycling keypresses to
// handle and records key activity on a.
type HotkeyFactory func(handle func(cycle.Direction), a *platform.Activity) cycle.Registrar

// Deps are the collaborators of a Daemon. Only Store and Backend are
// required; the rest default to the platform implementations.
type Deps struct {
	Store      *storage.DB
	Backend    clipboard.Backend
	Hotkeys    HotkeyFactory
	Paster     cycle.Paster
	Overlay    cycle.Overlay
	Foreground watcher.Foreground
	Logger     *slog.Logger
	Now        func() time.Time
}

// Daemon is the running clipboard manager.
type Daemon struct {
	cfg       *config.Config
	store     *storage.DB
	backend   clipboard.Backend
	watcher   *watcher.Watcher
	ctrl      *cycle.Controller
	registrar cycle.Registrar
	log       *slog.Logger
	now       func() time.Time

	next, prev cycle.Binding
	maxBytes   int64
}

// New builds a daemon from a validated configuration.
func New(cfg *config.Config, deps Deps) (*Daemon, error) {
	if deps.Store == nil || deps.Backend == nil {
		return nil, errors.New("daemon needs a store and a clipboard backend")
	}

	next, prev, err := cfg.Bindings()
	if err != nil {
		return nil, err
	}
	maxBytes, err := cfg.MaxSizeBytes()
	if err != nil {
		return nil, err
	}

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	d := &Daemon{
		cfg:      cfg,
		store:    deps.Store,
		backend:  deps.Backend,
		log:      log.With("component", "daemon"),
		now:      now,
		next:     next,
		prev:     prev,
		maxBytes: maxBytes,
	}

	guard := &clipboard.Guard{}
	writer := clipboard.NewGuardedWriter(deps.Backend, guard)
	if cfg.Watcher.SelfWriteHold > 0 {
		writer.Hold = cfg.Watcher.SelfWriteHold
	}

	foreground := deps.Foreground
	if foreground == nil {
		foreground = platform.NewForeground(log).Origin
	}
	d.watcher = watcher.New(deps.Backend, deps.Store, watcher.Options{
		Config:     cfg.WatcherSettings(),
		Guard:      guard,
		Foreground: foreground,
		Logger:     log,
		Now:        now,
	})

	activity := &platform.Activity{Grace: cfg.Cycle.ReleaseGrace}
	paster := deps.Paster
	if paster == nil {
		paster = platform.NewPaster()
	}
	overlay := deps.Overlay
	if overlay == nil {
		overlay = &platform.LogOverlay{Log: log}
	}
	d.ctrl = cycle.New(cfg.CycleSettings(), cycle.Deps{
		History:  deps.Store,
		Cursor:   deps.Store,
		Writer:   writer,
		Overlay:  overlay,
		Paster:   paster,
		Keyboard: activity,
		Logger:   log,
		Now:      now,
	})

	hotkeys := deps.Hotkeys
	if hotkeys == nil {
		hotkeys = func(handle func(cycle.Direction), a *platform.Activity) cycle.Registrar {
			return platform.NewHotkeys(handle, a, log)
		}
	}
	d.registrar = hotkeys(d.ctrl.Hotkey, activity)

	return d, nil
}

// Status reports the cycling controller state.
func (d *Daemon) Status() cycle.Status {
	return d.ctrl.Status()
}

// Run registers the hotkeys and runs every loop until ctx is cancelled or
// one of them fails.
func (d *Daemon) Run(ctx context.Context) error {
	for _, w := range cycle.ApplyBindings(d.registrar, d.next, d.prev) {
		d.log.Warn("hotkey unavailable", "warning", w.String())
	}
	defer d.registrar.UnregisterAll()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := d.watcher.Subscribe()

	loops := []struct {
		name string
		run  func(context.Context) error
	}{
		{"watcher", d.watcher.Run},
		{"controller", d.ctrl.Run},
		{"bridge", func(ctx context.Context) error { return d.bridge(ctx, events) }},
		{"scheduler", d.schedule},
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, l := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.run(ctx); err != nil {
				once.Do(func() {
					firstErr = fmt.Errorf("%s: %w", l.name, err)
					cancel()
				})
			}
		}()
	}

	d.log.Info("clipring running",
		"backend", d.backend.Name(),
		"next", d.next.String(),
		"prev", d.prev.String(),
	)
	wg.Wait()
	d.log.Info("clipring stopped")
	return firstErr
}

// bridge forwards stored entries to the controller.
func (d *Daemon) bridge(ctx context.Context, events <-chan watcher.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			d.ctrl.NewEntry(ev.Summary)
		}
	}
}

// schedule runs housekeeping at start and then on every interval.
func (d *Daemon) schedule(ctx context.Context) error {
	interval := d.cfg.Maintenance.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	d.Housekeep(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			d.Housekeep(ctx)
		}
	}
}

// Report counts the rows touched by one housekeeping pass.
type Report struct {
	Trimmed     int64
	Archived    int64
	LogsRemoved int
}

// Housekeep applies retention, archives old entries, snapshots the store
// and removes old log files. Failing steps are logged and skipped.
func (d *Daemon) Housekeep(ctx context.Context) Report {
	var r Report
	ret := d.cfg.Retention

	if ret.MaxItems > 0 {
		n, err := d.store.TrimByCount(ctx, ret.MaxItems)
		if err != nil {
			d.log.Warn("trim by count failed", "err", err)
		}
		r.Trimmed += n
	}
	if d.maxBytes > 0 {
		n, err := d.store.TrimBySize(ctx, d.maxBytes)
		if err != nil {
			d.log.Warn("trim by size failed", "err", err)
		}
		r.Trimmed += n
	}
	if ret.ArchiveAfterDays > 0 {
		n, err := d.store.ArchiveOlderThan(ctx, ret.ArchiveAfterDays)
		if err != nil {
			d.log.Warn("archive failed", "err", err)
		}
		r.Archived = n
	}
	if err := d.store.Maintain(ctx); err != nil {
		d.log.Warn("maintenance failed", "err", err)
	}
	if d.cfg.Log.Dir != "" && d.cfg.Log.KeepDays > 0 {
		n, err := logging.CleanOld(d.cfg.Log.Dir, d.cfg.Log.KeepDays, d.now())
		if err != nil {
			d.log.Warn("log cleanup failed", "err", err)
		}
		r.LogsRemoved = n
	}

	d.log.Info("housekeeping done", "trimmed", r.Trimmed, "archived", r.Archived, "logs_removed", r.LogsRemoved)
	return r
}

// Package cycle implements the hotkey-driven history cycler: repeated
// presses walk through recent entries behind a preview, and releasing the
// modifiers writes the selected entry back to the clipboard.
package cycle

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spideyz0r/clipring/pkg/clipboard"
	"github.com/spideyz0r/clipring/pkg/storage"
)

// Direction of a cycling step.
type Direction int

const (
	// Next moves to an older entry.
	Next Direction = iota
	// Prev moves to a newer entry.
	Prev
)

func (d Direction) String() string {
	if d == Prev {
		return "prev"
	}
	return "next"
}

// State of the controller.
type State int

const (
	Idle State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "idle"
}

// History is the read side of the store the controller cycles through.
type History interface {
	Recent(ctx context.Context) ([]*storage.Summary, error)
	Payload(ctx context.Context, id int64) (*storage.Payload, error)
}

// CursorStore persists the cycling position across restarts.
type CursorStore interface {
	LoadCursor(ctx context.Context) (storage.Cursor, error)
	SaveCursor(ctx context.Context, c storage.Cursor) error
}

// Position locates the previewed entry in the cycled list.
type Position struct {
	Index int
	Total int
}

// Overlay renders the selection preview.
type Overlay interface {
	ShowPreview(s *storage.Summary, pos Position)
	HidePreview()
}

// Paster sends the paste keystroke to the focused application.
type Paster interface {
	Paste(ctx context.Context) error
}

// Keyboard reports whether any cycling modifier is still held.
type Keyboard interface {
	ModifiersHeld() bool
}

// Config holds the controller timings.
type Config struct {
	IdleReset   time.Duration
	ReleasePoll time.Duration
	PasteDelay  time.Duration
	AutoPaste   bool
}

// DefaultConfig returns the standard timings with auto-paste on.
func DefaultConfig() Config {
	return Config{
		IdleReset:   3 * time.Second,
		ReleasePoll: 50 * time.Millisecond,
		PasteDelay:  150 * time.Millisecond,
		AutoPaste:   true,
	}
}

// Deps are the collaborators of a Controller. Cursor, Overlay and Paster
// may be nil.
type Deps struct {
	History  History
	Cursor   CursorStore
	Writer   clipboard.Writer
	Overlay  Overlay
	Paster   Paster
	Keyboard Keyboard
	Logger   *slog.Logger
	Now      func() time.Time
}

// Status is a snapshot of the controller state.
type Status struct {
	State State
	Index int
	Total int
}

// Controller is the cycling state machine. All state is owned by the Run
// loop; other goroutines talk to it through Hotkey and NewEntry.
type Controller struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
	now  func() time.Time

	keys     chan Direction
	entries  chan *storage.Summary
	releases chan uint64

	// Loop-owned state.
	state       State
	items       []*storage.Summary
	index       int
	lastCommit  time.Time
	generation  uint64
	stopRelease context.CancelFunc

	statusMu sync.Mutex
	status   Status
}

// New returns a controller in the Idle state.
func New(cfg Config, deps Deps) *Controller {
	c := &Controller{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Logger,
		now:      deps.Now,
		keys:     make(chan Direction, 16),
		entries:  make(chan *storage.Summary, 64),
		releases: make(chan uint64, 1),
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With("component", "cycle")
	if c.now == nil {
		c.now = time.Now
	}
	if c.cfg.ReleasePoll <= 0 {
		c.cfg.ReleasePoll = DefaultConfig().ReleasePoll
	}
	return c
}

// Hotkey queues a cycling keypress.
func (c *Controller) Hotkey(dir Direction) {
	select {
	case c.keys <- dir:
	default:
		c.log.Warn("hotkey queue full, press dropped", "direction", dir.String())
	}
}

// NewEntry queues notice of a freshly stored entry.
func (c *Controller) NewEntry(s *storage.Summary) {
	select {
	case c.entries <- s:
	default:
		c.log.Warn("entry queue full, notice dropped", "id", s.ID)
	}
}

// Status returns the state as of the last handled event.
func (c *Controller) Status() Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// Run processes events until ctx is cancelled. Pending new-entry notices
// are always applied before the next keypress or release.
func (c *Controller) Run(ctx context.Context) error {
	c.restoreCursor(ctx)
	defer c.stopReleaseWatcher()

	for {
		select {
		case s := <-c.entries:
			c.onNewEntry(ctx, s)
			c.publishStatus()
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case s := <-c.entries:
			c.onNewEntry(ctx, s)
		case dir := <-c.keys:
			c.onHotkey(ctx, dir)
		case gen := <-c.releases:
			c.onRelease(ctx, gen)
		}
		c.publishStatus()
	}
}

func (c *Controller) publishStatus() {
	c.statusMu.Lock()
	c.status = Status{State: c.state, Index: c.index, Total: len(c.items)}
	c.statusMu.Unlock()
}

func (c *Controller) restoreCursor(ctx context.Context) {
	if c.deps.Cursor == nil {
		return
	}
	cur, err := c.deps.Cursor.LoadCursor(ctx)
	if err != nil {
		c.log.Warn("failed to load cycling position", "err", err)
		return
	}
	c.index = max(cur.Index, 0)
	c.lastCommit = cur.CommittedAt
}

func (c *Controller) saveCursor(ctx context.Context) {
	if c.deps.Cursor == nil {
		return
	}
	err := c.deps.Cursor.SaveCursor(ctx, storage.Cursor{Index: c.index, CommittedAt: c.lastCommit})
	if err != nil {
		c.log.Warn("failed to save cycling position", "err", err)
	}
}

func (c *Controller) onHotkey(ctx context.Context, dir Direction) {
	if c.state == Idle {
		items, err := c.deps.History.Recent(ctx)
		if err != nil {
			c.log.Warn("failed to load history", "err", err)
			return
		}
		if len(items) == 0 {
			return
		}
		if c.lastCommit.IsZero() || c.now().Sub(c.lastCommit) > c.cfg.IdleReset {
			c.index = 0
		}
		c.items = items
		c.index = c.clamp(c.index)
		c.state = Open
		c.startReleaseWatcher(ctx)
	}

	if dir == Prev {
		c.index = c.clamp(c.index - 1)
	} else {
		c.index = c.clamp(c.index + 1)
	}

	if c.deps.Overlay != nil {
		c.deps.Overlay.ShowPreview(c.items[c.index], Position{Index: c.index, Total: len(c.items)})
	}
}

func (c *Controller) clamp(i int) int {
	return max(0, min(i, len(c.items)-1))
}

func (c *Controller) onRelease(ctx context.Context, gen uint64) {
	if c.state != Open || gen != c.generation {
		return
	}
	c.stopReleaseWatcher()

	selected := c.items[c.index]
	if err := WriteEntry(ctx, c.deps.History, c.deps.Writer, selected); err != nil {
		c.log.Warn("failed to write entry to clipboard", "id", selected.ID, "err", err)
	}

	if c.deps.Overlay != nil {
		c.deps.Overlay.HidePreview()
	}

	if c.cfg.AutoPaste && c.deps.Paster != nil {
		if err := sleep(ctx, c.cfg.PasteDelay); err == nil {
			if err := c.deps.Paster.Paste(ctx); err != nil {
				c.log.Warn("paste failed", "err", err)
			}
		}
	}

	c.lastCommit = c.now()
	c.saveCursor(ctx)
	c.state = Idle
	c.items = nil
}

// PayloadSource loads the large fields of an entry.
type PayloadSource interface {
	Payload(ctx context.Context, id int64) (*storage.Payload, error)
}

// WriteEntry writes s to the clipboard through w, loading its large
// fields and untruncated text from src first when needed.
func WriteEntry(ctx context.Context, src PayloadSource, w clipboard.Writer, s *storage.Summary) error {
	p := &clipboard.Payload{}
	var full *storage.Payload
	if s.HasPayload || s.HasRich || s.Truncated {
		var err error
		if full, err = src.Payload(ctx, s.ID); err != nil {
			return err
		}
	}
	text := s.Content
	if s.Truncated {
		text = full.Text
	}

	switch s.Kind {
	case storage.KindImage:
		if full == nil || len(full.Binary) == 0 {
			return storage.ErrNotFound
		}
		p.Formats = []string{clipboard.FormatPNG}
		p.Image = full.Binary
	case storage.KindFiles:
		p.Formats = []string{clipboard.FormatURIList}
		p.Files = strings.Split(text, "\n")
	default:
		p.Formats = []string{clipboard.FormatText}
		p.Text = text
		if full != nil {
			p.RichText = full.RichText
			p.HTML = full.HTML
		}
	}
	return w.Write(ctx, p)
}

func (c *Controller) onNewEntry(ctx context.Context, s *storage.Summary) {
	if c.state == Idle {
		c.index = 0
		c.saveCursor(ctx)
		return
	}

	selected := c.items[c.index].ID
	items := make([]*storage.Summary, 0, len(c.items)+1)
	items = append(items, s)
	for _, it := range c.items {
		if it.ID != s.ID {
			items = append(items, it)
		}
	}
	c.items = items
	for i, it := range c.items {
		if it.ID == selected {
			c.index = i
			break
		}
	}
	if c.deps.Overlay != nil {
		c.deps.Overlay.ShowPreview(c.items[c.index], Position{Index: c.index, Total: len(c.items)})
	}
}

// startReleaseWatcher polls the keyboard until every modifier is up, then
// posts one release event tagged with the current generation.
func (c *Controller) startReleaseWatcher(ctx context.Context) {
	c.stopReleaseWatcher()
	c.generation++
	gen := c.generation

	rctx, cancel := context.WithCancel(ctx)
	c.stopRelease = cancel

	var fired atomic.Bool
	go func() {
		t := time.NewTicker(c.cfg.ReleasePoll)
		defer t.Stop()
		for {
			select {
			case <-rctx.Done():
				return
			case <-t.C:
				if c.deps.Keyboard != nil && c.deps.Keyboard.ModifiersHeld() {
					continue
				}
				if !fired.CompareAndSwap(false, true) {
					return
				}
				select {
				case c.releases <- gen:
				case <-rctx.Done():
				}
				return
			}
		}
	}()
}

func (c *Controller) stopReleaseWatcher() {
	if c.stopRelease != nil {
		c.stopRelease()
		c.stopRelease = nil
	}
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

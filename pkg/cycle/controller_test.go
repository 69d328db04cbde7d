package cycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spideyz0r/clipring/pkg/clipboard"
	"github.com/spideyz0r/clipring/pkg/storage"
)

type fakeHistory struct {
	items    []*storage.Summary
	payloads map[int64]*storage.Payload
	err      error
}

func (h *fakeHistory) Recent(context.Context) ([]*storage.Summary, error) {
	if h.err != nil {
		return nil, h.err
	}
	return append([]*storage.Summary(nil), h.items...), nil
}

func (h *fakeHistory) Payload(_ context.Context, id int64) (*storage.Payload, error) {
	p, ok := h.payloads[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

type fakeOverlay struct {
	mu      sync.Mutex
	shown   []string
	last    Position
	visible bool
}

func (o *fakeOverlay) ShowPreview(s *storage.Summary, pos Position) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shown = append(o.shown, s.Content)
	o.last = pos
	o.visible = true
}

func (o *fakeOverlay) HidePreview() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = false
}

func (o *fakeOverlay) isVisible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

type fakeKeyboard struct{ held atomic.Bool }

func (k *fakeKeyboard) ModifiersHeld() bool { return k.held.Load() }

type fakePaster struct{ calls atomic.Int32 }

func (p *fakePaster) Paste(context.Context) error {
	p.calls.Add(1)
	return nil
}

type fakeCursor struct {
	mu    sync.Mutex
	saved storage.Cursor
	saves int
}

func (f *fakeCursor) LoadCursor(context.Context) (storage.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved, nil
}

func (f *fakeCursor) SaveCursor(_ context.Context, c storage.Cursor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = c
	f.saves++
	return nil
}

func (f *fakeCursor) get() storage.Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved
}

func summaries(contents ...string) []*storage.Summary {
	out := make([]*storage.Summary, 0, len(contents))
	for i, c := range contents {
		out = append(out, &storage.Summary{ID: int64(len(contents) - i), Kind: storage.KindText, Content: c})
	}
	return out
}

type harness struct {
	c        *Controller
	history  *fakeHistory
	overlay  *fakeOverlay
	keyboard *fakeKeyboard
	paster   *fakePaster
	cursor   *fakeCursor
	clip     *clipboard.Memory
	clock    *time.Time
}

func newHarness(t *testing.T, contents ...string) *harness {
	t.Helper()
	now := time.Unix(1_700_000_000, 0)
	h := &harness{
		history:  &fakeHistory{items: summaries(contents...)},
		overlay:  &fakeOverlay{},
		keyboard: &fakeKeyboard{},
		paster:   &fakePaster{},
		cursor:   &fakeCursor{},
		clip:     clipboard.NewMemory(),
		clock:    &now,
	}
	h.keyboard.held.Store(true)

	cfg := DefaultConfig()
	cfg.PasteDelay = 0
	cfg.ReleasePoll = 5 * time.Millisecond
	h.c = New(cfg, Deps{
		History:  h.history,
		Cursor:   h.cursor,
		Writer:   h.clip,
		Overlay:  h.overlay,
		Paster:   h.paster,
		Keyboard: h.keyboard,
		Now:      func() time.Time { return *h.clock },
	})
	t.Cleanup(h.c.stopReleaseWatcher)
	return h
}

func (h *harness) advance(d time.Duration) { *h.clock = h.clock.Add(d) }

func (h *harness) current() string {
	if h.c.state != Open {
		return ""
	}
	return h.c.items[h.c.index].Content
}

func TestCycle_NextEntersOpenAndClamps(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	ctx := context.Background()

	h.c.onHotkey(ctx, Next)
	assert.Equal(t, Open, h.c.state)
	assert.Equal(t, 1, h.c.index)
	assert.Equal(t, "B", h.current())
	assert.Equal(t, Position{Index: 1, Total: 3}, h.overlay.last)

	h.c.onHotkey(ctx, Next)
	h.c.onHotkey(ctx, Next)
	assert.Equal(t, 2, h.c.index, "clamps at the oldest entry")
	assert.Equal(t, "C", h.current())
	assert.Equal(t, []string{"B", "C", "C"}, h.overlay.shown)
}

func TestCycle_PrevClampsAtNewest(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	ctx := context.Background()

	h.c.onHotkey(ctx, Next)
	h.c.onHotkey(ctx, Prev)
	h.c.onHotkey(ctx, Prev)
	assert.Equal(t, 0, h.c.index)
	assert.Equal(t, "A", h.current())
}

func TestCycle_PrevFromIdle(t *testing.T) {
	h := newHarness(t, "A", "B")

	h.c.onHotkey(context.Background(), Prev)
	assert.Equal(t, Open, h.c.state)
	assert.Equal(t, 0, h.c.index)
}

func TestCycle_EmptyHistoryIsNoop(t *testing.T) {
	h := newHarness(t)

	h.c.onHotkey(context.Background(), Next)
	assert.Equal(t, Idle, h.c.state)
	assert.Empty(t, h.overlay.shown)
}

func TestCycle_HistoryErrorStaysIdle(t *testing.T) {
	h := newHarness(t, "A")
	h.history.err = errors.New("locked")

	h.c.onHotkey(context.Background(), Next)
	assert.Equal(t, Idle, h.c.state)
}

func TestCycle_ReleaseCommits(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	ctx := context.Background()

	h.c.onHotkey(ctx, Next)
	h.c.onRelease(ctx, h.c.generation)

	assert.Equal(t, Idle, h.c.state)
	assert.Equal(t, "B", h.clip.Current().Text)
	assert.False(t, h.overlay.isVisible())
	assert.Equal(t, int32(1), h.paster.calls.Load())
	assert.Equal(t, storage.Cursor{Index: 1, CommittedAt: *h.clock}, h.cursor.get())
}

func TestCycle_NoAutoPaste(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.c.cfg.AutoPaste = false
	ctx := context.Background()

	h.c.onHotkey(ctx, Next)
	h.c.onRelease(ctx, h.c.generation)
	assert.Zero(t, h.paster.calls.Load())
	assert.Equal(t, "B", h.clip.Current().Text)
}

func TestCycle_StaleReleaseIgnored(t *testing.T) {
	h := newHarness(t, "A", "B")
	ctx := context.Background()

	h.c.onHotkey(ctx, Next)
	h.c.onRelease(ctx, h.c.generation-1)
	assert.Equal(t, Open, h.c.state)

	h.c.onRelease(ctx, h.c.generation)
	h.c.onRelease(ctx, h.c.generation)
	assert.Equal(t, 1, h.clip.Writes(), "release while idle does nothing")
}

func TestCycle_ResumeWithinIdleWindow(t *testing.T) {
	h := newHarness(t, "A", "B", "C", "D")
	ctx := context.Background()

	h.c.onHotkey(ctx, Next)
	h.c.onHotkey(ctx, Next)
	h.c.onRelease(ctx, h.c.generation)
	require.Equal(t, 2, h.c.index)

	h.advance(time.Second)
	h.c.onHotkey(ctx, Next)
	assert.Equal(t, 3, h.c.index, "resumes from the committed position")
}

func TestCycle_ResetAfterIdleWindow(t *testing.T) {
	h := newHarness(t, "A", "B", "C", "D")
	ctx := context.Background()

	h.c.onHotkey(ctx, Next)
	h.c.onHotkey(ctx, Next)
	h.c.onRelease(ctx, h.c.generation)

	h.advance(4 * time.Second)
	h.c.onHotkey(ctx, Next)
	assert.Equal(t, 1, h.c.index)
}

func TestCycle_NewEntryWhileOpenKeepsSelection(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	ctx := context.Background()

	h.c.onHotkey(ctx, Next)
	h.c.onNewEntry(ctx, &storage.Summary{ID: 10, Kind: storage.KindText, Content: "D"})

	assert.Equal(t, 2, h.c.index)
	assert.Equal(t, "B", h.current())
	assert.Equal(t, Position{Index: 2, Total: 4}, h.overlay.last)
}

func TestCycle_TouchedEntryMovesToFront(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	ctx := context.Background()

	h.c.onHotkey(ctx, Next) // B
	touchedC := h.c.items[2]
	h.c.onNewEntry(ctx, touchedC)

	assert.Len(t, h.c.items, 3)
	assert.Equal(t, "B", h.current())
	assert.Equal(t, 2, h.c.index)
}

func TestCycle_NewEntryWhileIdleResetsIndex(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	ctx := context.Background()

	h.c.onHotkey(ctx, Next)
	h.c.onHotkey(ctx, Next)
	h.c.onRelease(ctx, h.c.generation)

	h.c.onNewEntry(ctx, &storage.Summary{ID: 10, Content: "D"})
	assert.Equal(t, 0, h.c.index)
	assert.Equal(t, 0, h.cursor.get().Index)

	h.advance(time.Second)
	h.c.onHotkey(ctx, Next)
	assert.Equal(t, 1, h.c.index)
}

func TestCycle_CommitImageLoadsPayload(t *testing.T) {
	h := newHarness(t)
	h.history.items = []*storage.Summary{
		{ID: 2, Kind: storage.KindText, Content: "text"},
		{ID: 1, Kind: storage.KindImage, Content: "Image 1x1", HasPayload: true},
	}
	h.history.payloads = map[int64]*storage.Payload{1: {Binary: []byte{0x89, 'P', 'N', 'G'}}}
	ctx := context.Background()

	h.c.onHotkey(ctx, Next)
	h.c.onRelease(ctx, h.c.generation)

	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, h.clip.Current().Image)
}

func TestCycle_CommitFilesAndRichText(t *testing.T) {
	h := newHarness(t)
	h.history.items = []*storage.Summary{
		{ID: 3, Kind: storage.KindText, Content: "bold", HasRich: true},
		{ID: 2, Kind: storage.KindFiles, Content: "/tmp/a\n/tmp/b"},
	}
	h.history.payloads = map[int64]*storage.Payload{3: {RichText: "{\\rtf1 bold}", HTML: "<b>bold</b>"}}
	ctx := context.Background()

	h.c.onHotkey(ctx, Next)
	h.c.onRelease(ctx, h.c.generation)
	assert.Equal(t, []string{"/tmp/a", "/tmp/b"}, h.clip.Current().Files)

	h.c.onHotkey(ctx, Prev)
	h.c.onRelease(ctx, h.c.generation)
	got := h.clip.Current()
	assert.Equal(t, "bold", got.Text)
	assert.Equal(t, "<b>bold</b>", got.HTML)
}

func TestWriteEntry_TruncatedTextLoadsFullText(t *testing.T) {
	full := strings.Repeat("long line ", 1000)
	src := &fakeHistory{payloads: map[int64]*storage.Payload{7: {Text: full}}}
	clip := clipboard.NewMemory()

	s := &storage.Summary{ID: 7, Kind: storage.KindText, Content: full[:storage.SummaryTextLimit], Truncated: true}
	require.NoError(t, WriteEntry(context.Background(), src, clip, s))
	assert.Equal(t, full, clip.Current().Text)

	delete(src.payloads, 7)
	assert.ErrorIs(t, WriteEntry(context.Background(), src, clip, s), storage.ErrNotFound)
}

func TestReleaseWatcher_FiresOnce(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.keyboard.held.Store(false)

	h.c.onHotkey(context.Background(), Next)

	select {
	case gen := <-h.c.releases:
		assert.Equal(t, h.c.generation, gen)
	case <-time.After(time.Second):
		t.Fatal("release not detected")
	}
	select {
	case <-h.c.releases:
		t.Fatal("release fired twice")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestRun_FullCycle(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.c.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	h.c.Hotkey(Next)
	h.c.Hotkey(Next)
	assert.Eventually(t, func() bool {
		s := h.c.Status()
		return s.State == Open && s.Index == 2
	}, time.Second, 5*time.Millisecond)

	h.keyboard.held.Store(false)
	assert.Eventually(t, func() bool { return h.c.Status().State == Idle }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		cur := h.clip.Current()
		return cur != nil && cur.Text == "C"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), h.paster.calls.Load())
}

func TestRun_NewEntriesHandledBeforeKeys(t *testing.T) {
	h := newHarness(t, "A", "B", "C")

	// A keypress alone would resume from the saved position.
	h.cursor.saved = storage.Cursor{Index: 2, CommittedAt: *h.clock}
	h.c.Hotkey(Next)
	h.c.NewEntry(&storage.Summary{ID: 99, Content: "fresh"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.c.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	assert.Eventually(t, func() bool {
		s := h.c.Status()
		return s.State == Open && s.Index == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRun_RestoresCursor(t *testing.T) {
	h := newHarness(t, "A", "B", "C", "D")
	h.cursor.saved = storage.Cursor{Index: 2, CommittedAt: h.clock.Add(-time.Second)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.c.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	h.c.Hotkey(Next)
	assert.Eventually(t, func() bool { return h.c.Status().Index == 3 }, time.Second, 5*time.Millisecond)
}

package daemon

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spideyz0r/clipring/pkg/classify"
	"github.com/spideyz0r/clipring/pkg/clipboard"
	"github.com/spideyz0r/clipring/pkg/config"
	"github.com/spideyz0r/clipring/pkg/cycle"
	"github.com/spideyz0r/clipring/pkg/logging"
	"github.com/spideyz0r/clipring/pkg/platform"
	"github.com/spideyz0r/clipring/pkg/storage"
	"github.com/spideyz0r/clipring/pkg/testutil"
)

type fakeRegistrar struct {
	mu           sync.Mutex
	handle       func(cycle.Direction)
	registered   []cycle.Binding
	fail         map[string]error
	unregistered int
}

func (r *fakeRegistrar) factory(handle func(cycle.Direction), _ *platform.Activity) cycle.Registrar {
	r.handle = handle
	return r
}

func (r *fakeRegistrar) Register(_ cycle.Direction, b cycle.Binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[b.String()]; err != nil {
		return err
	}
	r.registered = append(r.registered, b)
	return nil
}

func (r *fakeRegistrar) UnregisterAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = nil
	r.unregistered++
}

func (r *fakeRegistrar) snapshot() ([]cycle.Binding, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cycle.Binding(nil), r.registered...), r.unregistered
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func editor() classify.Origin {
	return classify.Origin{App: "Editor", Process: "editor"}
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "history.db")
	cfg.Log.Dir = t.TempDir()
	cfg.Cycle.ReleasePoll = 5 * time.Millisecond
	cfg.Cycle.AutoPaste = false
	cfg.Watcher.Debounce = 0
	cfg.Watcher.PollInterval = 20 * time.Millisecond
	return cfg
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_RequiresStoreAndBackend(t *testing.T) {
	_, err := New(config.Default(), Deps{})
	assert.Error(t, err)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad hotkey", func(c *config.Config) { c.Hotkeys.Next = "alt+" }},
		{"bad max size", func(c *config.Config) { c.Retention.MaxSize = "lots" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := New(cfg, Deps{Store: testutil.OpenStore(t), Backend: clipboard.NewMemory()})
			assert.Error(t, err)
		})
	}
}

func TestRun_RecordsAndCycles(t *testing.T) {
	cfg := testConfig(t)
	store := testutil.OpenStore(t)
	mem := clipboard.NewMemory()
	reg := &fakeRegistrar{fail: map[string]error{"Alt+S": errors.New("taken")}}
	logs := &syncBuffer{}

	d, err := New(cfg, Deps{
		Store:      store,
		Backend:    mem,
		Hotkeys:    reg.factory,
		Foreground: editor,
		Logger:     slog.New(slog.NewTextHandler(logs, nil)),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	count := func() int64 {
		n, err := store.Count(context.Background())
		if err != nil {
			return -1
		}
		return n
	}

	mem.SetText("first")
	require.Eventually(t, func() bool { return count() == 1 }, 2*time.Second, 10*time.Millisecond)
	mem.SetText("second")
	require.Eventually(t, func() bool { return count() == 2 }, 2*time.Second, 10*time.Millisecond)

	registered, _ := reg.snapshot()
	assert.Equal(t, []cycle.Binding{{Mods: cycle.ModAlt, Key: "W"}}, registered)
	assert.Contains(t, logs.String(), "prev hotkey Alt+S not registered")

	reg.handle(cycle.Next)
	require.Eventually(t, func() bool {
		cur := mem.Current()
		return cur != nil && cur.Text == "first"
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		s := d.Status()
		return s.State == cycle.Idle && s.Index == 1
	}, 2*time.Second, 5*time.Millisecond)

	// the write-back is not recorded as a new copy
	assert.Never(t, func() bool {
		recent, err := store.Recent(context.Background())
		return err != nil || recent[0].Content == "first"
	}, 200*time.Millisecond, 20*time.Millisecond)
	assert.EqualValues(t, 2, count())

	recent, err := store.Recent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Editor", recent[0].SourceApp)

	cancel()
	require.NoError(t, <-done)

	_, unregistered := reg.snapshot()
	assert.GreaterOrEqual(t, unregistered, 2, "bindings are cleared before registering and on exit")
}

func TestHousekeep(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.Local)
	clock := func() time.Time { return now }

	cfg := testConfig(t)
	cfg.Retention.MaxItems = 4
	cfg.Retention.MaxSize = ""
	cfg.Retention.ArchiveAfterDays = 30

	store := testutil.OpenStore(t, storage.WithClock(clock))
	testutil.SeedText(t, store, now.AddDate(0, 0, -60), "a", "b", "c")
	testutil.SeedText(t, store, now.Add(-time.Hour), "d", "e")

	oldLog := filepath.Join(cfg.Log.Dir, logging.FileName(now.AddDate(0, 0, -10)))
	newLog := filepath.Join(cfg.Log.Dir, logging.FileName(now))
	require.NoError(t, os.WriteFile(oldLog, []byte("{}\n"), 0644))
	require.NoError(t, os.WriteFile(newLog, []byte("{}\n"), 0644))

	reg := &fakeRegistrar{}
	d, err := New(cfg, Deps{
		Store:      store,
		Backend:    clipboard.NewMemory(),
		Hotkeys:    reg.factory,
		Foreground: editor,
		Logger:     discard(),
		Now:        clock,
	})
	require.NoError(t, err)

	r := d.Housekeep(context.Background())
	assert.Equal(t, Report{Trimmed: 1, Archived: 2, LogsRemoved: 1}, r)

	live, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, live)
	archived, err := store.CountArchived(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, archived)

	assert.NoFileExists(t, oldLog)
	assert.FileExists(t, newLog)
	assert.FileExists(t, storage.SnapshotPath(store.Path()))
}

func TestHousekeep_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retention = config.RetentionConfig{}
	cfg.Log.KeepDays = 0

	store := testutil.OpenStore(t)
	testutil.SeedText(t, store, time.Now().AddDate(-1, 0, 0), "old")

	d, err := New(cfg, Deps{
		Store:      store,
		Backend:    clipboard.NewMemory(),
		Hotkeys:    (&fakeRegistrar{}).factory,
		Foreground: editor,
		Logger:     discard(),
	})
	require.NoError(t, err)

	assert.Equal(t, Report{}, d.Housekeep(context.Background()))
	live, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, live)
}

// Package logging configures the global slog logger for clipring.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pwntr/tinter"
)

// Format selects the log output format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

const (
	filePrefix = "clipring_"
	fileSuffix = ".log"
	dateLayout = "20060102"
)

// ParseFormat converts a string to a Format, returning FormatAuto for unknown values.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "text", "tint", "human":
		return FormatText
	case "json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

// ParseLevel converts a string to a slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// Options configures Setup.
type Options struct {
	Format Format
	Level  slog.Level
	// Dir, when set, also receives JSON logs in one file per day.
	Dir string
	Now func() time.Time
}

// NewHandler returns the console handler for w: tinter for terminals or
// FormatText, JSON otherwise.
func NewHandler(w io.Writer, format Format, level slog.Level) slog.Handler {
	if format == FormatText || (format == FormatAuto && IsTTY(w)) {
		return tinter.NewHandler(w, &tinter.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// Setup configures the global slog logger. The returned closer releases
// the log file, if any. Call once after flag/viper parsing.
func Setup(opts Options) (io.Closer, error) {
	h := NewHandler(os.Stderr, opts.Format, opts.Level)

	var closer io.Closer = nopCloser{}
	if opts.Dir != "" {
		w, err := NewDailyWriter(opts.Dir, opts.Now)
		if err != nil {
			return nil, err
		}
		closer = w
		h = fanout{h, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})}
	}

	slog.SetDefault(slog.New(h))
	return closer, nil
}

// FileName returns the log file name for day.
func FileName(day time.Time) string {
	return filePrefix + day.Format(dateLayout) + fileSuffix
}

// DailyWriter appends to clipring_YYYYMMDD.log in its directory, switching
// files when the date changes.
type DailyWriter struct {
	dir string
	now func() time.Time

	mu  sync.Mutex
	day string
	f   *os.File
}

// NewDailyWriter creates dir if needed and opens today's file.
func NewDailyWriter(dir string, now func() time.Time) (*DailyWriter, error) {
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	w := &DailyWriter{dir: dir, now: now}
	if err := w.rotate(now()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *DailyWriter) rotate(t time.Time) error {
	if w.f != nil {
		w.f.Close()
		w.f = nil
	}
	path := filepath.Join(w.dir, FileName(t))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	w.f = f
	w.day = t.Format(dateLayout)
	return nil
}

func (w *DailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t := w.now(); t.Format(dateLayout) != w.day || w.f == nil {
		if err := w.rotate(t); err != nil {
			return 0, err
		}
	}
	return w.f.Write(p)
}

// Close closes the current file.
func (w *DailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// CleanOld removes daily log files in dir dated more than days before now.
// It returns the number of files removed.
func CleanOld(dir string, days int, now time.Time) (int, error) {
	if days <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	y, m, d := now.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -days)

	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		day, err := time.ParseInLocation(dateLayout, stamp, now.Location())
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout sends every record to each handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// Package platform adapts the desktop environment to the core: global
// hotkeys, the paste keystroke, foreground-window lookup and a logging
// preview overlay.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/spideyz0r/clipring/pkg/classify"
	"github.com/spideyz0r/clipring/pkg/cycle"
	"github.com/spideyz0r/clipring/pkg/storage"
)

// ErrUnsupported is returned when the current build or OS has no
// implementation for a platform feature.
var ErrUnsupported = errors.New("not supported on this platform")

// Runner runs an external command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Paster synthesizes the platform's paste shortcut in the focused window.
type Paster struct {
	goos string
	run  Runner
}

// NewPaster returns a paster for the running OS.
func NewPaster() *Paster {
	return &Paster{goos: runtime.GOOS, run: execRunner}
}

// Paste sends Ctrl+V (Cmd+V on macOS).
func (p *Paster) Paste(ctx context.Context) error {
	name, args, err := pasteCommand(p.goos)
	if err != nil {
		return err
	}
	if _, err := p.run(ctx, name, args...); err != nil {
		return fmt.Errorf("failed to send paste keystroke: %w", err)
	}
	return nil
}

func pasteCommand(goos string) (string, []string, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdotool", []string{"key", "--clearmodifiers", "ctrl+v"}, nil
	case "darwin":
		return "osascript", []string{"-e", `tell application "System Events" to keystroke "v" using command down`}, nil
	case "windows":
		return "powershell", []string{"-NoProfile", "-Command",
			`Add-Type -AssemblyName System.Windows.Forms; [System.Windows.Forms.SendKeys]::SendWait('^v')`}, nil
	}
	return "", nil, ErrUnsupported
}

// ForegroundLookup reports the application owning the focused window.
type ForegroundLookup struct {
	goos   string
	run    Runner
	procFS string
	log    *slog.Logger
}

// NewForeground returns a lookup for the running OS.
func NewForeground(log *slog.Logger) *ForegroundLookup {
	if log == nil {
		log = slog.Default()
	}
	return &ForegroundLookup{goos: runtime.GOOS, run: execRunner, procFS: "/proc", log: log}
}

// Origin returns the foreground application, or classify.UnknownApp when
// it cannot be determined.
func (f *ForegroundLookup) Origin() classify.Origin {
	ctx := context.Background()
	switch f.goos {
	case "darwin":
		out, err := f.run(ctx, "osascript", "-e",
			`tell application "System Events" to get name of first application process whose frontmost is true`)
		if err != nil {
			f.log.Debug("foreground lookup failed", "err", err)
			return classify.Origin{App: classify.UnknownApp}
		}
		name := strings.TrimSpace(string(out))
		return classify.Origin{App: classify.AppFromTitle("", name), Process: name}
	case "linux", "freebsd", "openbsd", "netbsd":
		title, err := f.run(ctx, "xdotool", "getactivewindow", "getwindowname")
		if err != nil {
			f.log.Debug("foreground lookup failed", "err", err)
			return classify.Origin{App: classify.UnknownApp}
		}
		process := ""
		if out, err := f.run(ctx, "xdotool", "getactivewindow", "getwindowpid"); err == nil {
			process = f.processName(strings.TrimSpace(string(out)))
		}
		return classify.Origin{
			App:     classify.AppFromTitle(strings.TrimSpace(string(title)), process),
			Process: process,
		}
	}
	return classify.Origin{App: classify.UnknownApp}
}

func (f *ForegroundLookup) processName(pid string) string {
	if _, err := strconv.Atoi(pid); err != nil {
		return ""
	}
	comm, err := os.ReadFile(filepath.Join(f.procFS, pid, "comm"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(comm))
}

// LogOverlay is a preview renderer that writes the selection to the log.
// It stands in when no graphical overlay is attached.
type LogOverlay struct {
	Log   *slog.Logger
	Width int
}

func (o *LogOverlay) logger() *slog.Logger {
	if o.Log == nil {
		return slog.Default()
	}
	return o.Log
}

func (o *LogOverlay) ShowPreview(s *storage.Summary, pos cycle.Position) {
	width := o.Width
	if width <= 0 {
		width = 80
	}
	o.logger().Info("preview",
		"position", fmt.Sprintf("%d/%d", pos.Index+1, pos.Total),
		"id", s.ID,
		"kind", string(s.Kind),
		"text", s.DisplayText(width),
	)
}

func (o *LogOverlay) HidePreview() {
	o.logger().Debug("preview hidden")
}

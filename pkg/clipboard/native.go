//go:build cgo

package clipboard

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.design/x/clipboard"
)

type nativeBackend struct {
	watchCh chan struct{}
	done    chan struct{}
	once    sync.Once
	seq     atomic.Uint64

	lastText []byte
	lastImg  []byte
}

// New returns the system clipboard backend, or a headless no-op backend if
// the display environment is unavailable.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return NewHeadless()
	}
	b := &nativeBackend{
		watchCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	b.lastText = clipboard.Read(clipboard.FmtText)
	b.lastImg = clipboard.Read(clipboard.FmtImage)
	go b.poll()
	return b
}

func (b *nativeBackend) Name() string { return "system clipboard (poll)" }

func (b *nativeBackend) poll() {
	t := time.NewTicker(NativePollInterval)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			text := clipboard.Read(clipboard.FmtText)
			img := clipboard.Read(clipboard.FmtImage)
			if bytes.Equal(text, b.lastText) && bytes.Equal(img, b.lastImg) {
				continue
			}
			b.lastText = text
			b.lastImg = img
			b.seq.Add(1)
			select {
			case b.watchCh <- struct{}{}:
			default:
			}
		}
	}
}

func (b *nativeBackend) Read(ctx context.Context) (*Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := &Payload{}
	if img := clipboard.Read(clipboard.FmtImage); len(img) > 0 {
		p.Formats = append(p.Formats, FormatPNG)
		p.Image = img
	}
	if text := clipboard.Read(clipboard.FmtText); len(text) > 0 {
		p.Formats = append(p.Formats, FormatText)
		p.Text = string(text)
		if files := ParseURIList(p.Text); len(files) > 0 {
			p.Formats = append(p.Formats, FormatURIList)
			p.Files = files
		}
	}
	if p.Empty() {
		return nil, nil
	}
	return p, nil
}

func (b *nativeBackend) Write(ctx context.Context, p *Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch {
	case len(p.Image) > 0:
		clipboard.Write(clipboard.FmtImage, p.Image)
	case len(p.Files) > 0:
		clipboard.Write(clipboard.FmtText, []byte(JoinURIList(p.Files)))
	default:
		clipboard.Write(clipboard.FmtText, []byte(p.Text))
	}
	return nil
}

func (b *nativeBackend) Sequence() uint64       { return b.seq.Load() }
func (b *nativeBackend) Watch() <-chan struct{} { return b.watchCh }
func (b *nativeBackend) Close()                 { b.once.Do(func() { close(b.done) }) }

// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spideyz0r/clipring/pkg/storage"
)

// OpenStore opens a store in a fresh temporary directory and closes it
// when the test ends.
func OpenStore(t *testing.T, opts ...storage.Option) *storage.DB {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "history.db"), opts...)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

// SeedText saves one text entry per content string, oldest first, one
// second apart starting at base. It returns the saved entries.
func SeedText(t *testing.T, db *storage.DB, base time.Time, contents ...string) []*storage.Entry {
	t.Helper()

	var out []*storage.Entry
	for i, c := range contents {
		e := &storage.Entry{
			Kind:      storage.KindText,
			Content:   c,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			SourceApp: "Test",
		}
		if _, err := db.Save(context.Background(), e); err != nil {
			t.Fatalf("failed to save %q: %v", c, err)
		}
		out = append(out, e)
	}
	return out
}

// PNG returns a w×h PNG filled with a gradient.
func PNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// TempFile creates a file with the given content and returns its path.
func TempFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	return path
}

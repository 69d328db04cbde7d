package search

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	fuzzyfinder "github.com/ktr0731/go-fuzzyfinder"
	"github.com/spideyz0r/clipring/pkg/storage"
)

// ErrAborted is returned when the picker is closed without a selection.
var ErrAborted = errors.New("selection aborted")

const labelWidth = 80

// Pick launches an interactive fuzzy selector over entries.
func Pick(entries []*storage.Summary, preFilter string) (*storage.Summary, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no clipboard entries found")
	}

	filtered := entries
	if preFilter != "" {
		filtered = filterEntries(entries, preFilter)
		if len(filtered) == 0 {
			return nil, fmt.Errorf("no entries match filter: %s", preFilter)
		}
	}

	idx, err := fuzzyfinder.Find(
		filtered,
		func(i int) string {
			return FormatEntry(filtered[i])
		},
		fuzzyfinder.WithPreviewWindow(func(i, w, h int) string {
			if i == -1 {
				return ""
			}
			return Preview(filtered[i])
		}),
	)
	if errors.Is(err, fuzzyfinder.ErrAbort) {
		return nil, ErrAborted
	}
	if err != nil {
		return nil, fmt.Errorf("picker failed: %w", err)
	}

	return filtered[idx], nil
}

// Preview renders the detail pane for one entry.
func Preview(e *storage.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", e.Content)
	fmt.Fprintf(&b, "Kind:    %s\n", e.Kind)
	fmt.Fprintf(&b, "Copied:  %s (%s)\n", e.CreatedAt.Format("2006-01-02 15:04:05"), humanize.Time(e.CreatedAt))
	if e.SourceApp != "" {
		fmt.Fprintf(&b, "App:     %s\n", e.SourceApp)
	}
	if e.SourceProcess != "" {
		fmt.Fprintf(&b, "Process: %s\n", e.SourceProcess)
	}
	fmt.Fprintf(&b, "Size:    %s\n", humanize.IBytes(uint64(e.Size)))
	if e.Pinned {
		b.WriteString("Pinned:  yes\n")
	}
	if e.Archived {
		b.WriteString("Archived: yes\n")
	}
	return b.String()
}

// filterEntries keeps entries whose content contains query, ignoring case.
func filterEntries(entries []*storage.Summary, query string) []*storage.Summary {
	query = strings.ToLower(query)
	var filtered []*storage.Summary
	for _, entry := range entries {
		if strings.Contains(strings.ToLower(entry.Content), query) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// FormatEntry formats an entry as one picker line.
// Format: timestamp | badges | app | label.
func FormatEntry(entry *storage.Summary) string {
	ts := entry.CreatedAt.Format("2006-01-02 15:04:05")

	app := entry.SourceApp
	if len(app) > 20 {
		app = app[:17] + "..."
	}

	parts := []string{ts}

	var badges []string
	if entry.Pinned {
		badges = append(badges, "[pin]")
	}
	if entry.Archived {
		badges = append(badges, "[archived]")
	}
	if entry.Kind != storage.KindText {
		badges = append(badges, "["+string(entry.Kind)+"]")
	}
	if len(badges) > 0 {
		parts = append(parts, strings.Join(badges, " "))
	}

	parts = append(parts, fmt.Sprintf("%-20s", app))
	parts = append(parts, entry.DisplayText(labelWidth))

	return strings.Join(parts, " │ ")
}


package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spideyz0r/clipring/pkg/storage"
)

// Format represents an export format
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Source is the part of the store exports read from.
type Source interface {
	Query(ctx context.Context, filters storage.Filters) ([]*storage.Summary, error)
	EachSummary(ctx context.Context, fn func(*storage.Summary) error) error
	Payload(ctx context.Context, id int64) (*storage.Payload, error)
}

// Options contains export configuration
type Options struct {
	Format Format
	// Filters, when non-zero, limit the export to one query page.
	Filters storage.Filters
}

// Export writes history entries to the writer in the specified format.
// Payloads are not exported; images appear by their caption.
func Export(ctx context.Context, src Source, writer io.Writer, opts Options) error {
	var (
		entries []*storage.Summary
		err     error
	)
	if opts.Filters == (storage.Filters{}) {
		err = src.EachSummary(ctx, func(s *storage.Summary) error {
			entries = append(entries, s)
			return nil
		})
	} else {
		entries, err = src.Query(ctx, opts.Filters)
	}
	if err != nil {
		return fmt.Errorf("failed to query entries: %w", err)
	}
	for _, e := range entries {
		if !e.Truncated {
			continue
		}
		p, err := src.Payload(ctx, e.ID)
		if err != nil {
			return fmt.Errorf("failed to load entry %d: %w", e.ID, err)
		}
		e.Content = p.Text
	}

	switch opts.Format {
	case FormatText:
		return exportText(entries, writer)
	case FormatJSON:
		return exportJSON(entries, writer)
	case FormatCSV:
		return exportCSV(entries, writer)
	default:
		return fmt.Errorf("unsupported format: %s", opts.Format)
	}
}

// exportText writes each entry's content followed by a blank line
func exportText(entries []*storage.Summary, writer io.Writer) error {
	for _, entry := range entries {
		if _, err := fmt.Fprintf(writer, "%s\n\n", entry.Content); err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}
	return nil
}

type jsonEntry struct {
	ID            int64  `json:"id"`
	Kind          string `json:"kind"`
	Content       string `json:"content"`
	CreatedAt     string `json:"created_at"`
	Pinned        bool   `json:"pinned"`
	Archived      bool   `json:"archived,omitempty"`
	SourceApp     string `json:"source_app"`
	SourceProcess string `json:"source_process,omitempty"`
	Size          int64  `json:"size"`
}

// exportJSON exports entries as JSON array with full metadata
func exportJSON(entries []*storage.Summary, writer io.Writer) error {
	out := make([]jsonEntry, len(entries))
	for i, e := range entries {
		out[i] = jsonEntry{
			ID:            e.ID,
			Kind:          string(e.Kind),
			Content:       e.Content,
			CreatedAt:     formatTimestamp(e.CreatedAt),
			Pinned:        e.Pinned,
			Archived:      e.Archived,
			SourceApp:     e.SourceApp,
			SourceProcess: e.SourceProcess,
			Size:          e.Size,
		}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// exportCSV exports entries as CSV
func exportCSV(entries []*storage.Summary, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)

	header := []string{"id", "created_at", "kind", "content", "pinned", "source_app", "source_process", "size"}
	if err := csvWriter.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range entries {
		record := []string{
			strconv.FormatInt(e.ID, 10),
			formatTimestamp(e.CreatedAt),
			string(e.Kind),
			e.Content,
			strconv.FormatBool(e.Pinned),
			e.SourceApp,
			e.SourceProcess,
			strconv.FormatInt(e.Size, 10),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// formatTimestamp formats a time as RFC 3339 with milliseconds
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000Z07:00")
}

// ParseFormat parses a format string
func ParseFormat(s string) (Format, error) {
	switch s {
	case "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown format: %s (supported: text, json, csv)", s)
	}
}

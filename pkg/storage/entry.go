package storage

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind is the content type of an entry.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFiles Kind = "files"
)

// ParseKind maps user input (including common aliases) to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt":
		return KindText, true
	case "image", "img", "picture":
		return KindImage, true
	case "files", "file":
		return KindFiles, true
	}
	return "", false
}

// Entry is a complete history record, large fields included.
type Entry struct {
	ID            int64
	Kind          Kind
	Content       string
	RichText      string
	HTML          string
	Binary        []byte
	Thumbnail     []byte
	CreatedAt     time.Time
	Pinned        bool
	SourceApp     string
	SourceProcess string
	Hash          string
	Size          int64
}

// Summary is an entry without its large payload fields. Queries return
// summaries; payloads are fetched by id when needed.
type Summary struct {
	ID            int64
	Kind          Kind
	Content       string
	Thumbnail     []byte
	CreatedAt     time.Time
	Pinned        bool
	SourceApp     string
	SourceProcess string
	Hash          string
	Size          int64
	HasPayload    bool
	HasRich       bool
	Archived      bool
	// Truncated is set when Content holds only the first
	// SummaryTextLimit characters; Payload has the full text.
	Truncated bool
}

// Payload holds the large fields of an entry.
type Payload struct {
	Text     string
	Binary   []byte
	RichText string
	HTML     string
}

// Summary returns the summary view of e.
func (e *Entry) Summary() *Summary {
	content, truncated := capText(e.Content)
	return &Summary{
		ID:            e.ID,
		Kind:          e.Kind,
		Content:       content,
		Truncated:     truncated,
		Thumbnail:     e.Thumbnail,
		CreatedAt:     e.CreatedAt,
		Pinned:        e.Pinned,
		SourceApp:     e.SourceApp,
		SourceProcess: e.SourceProcess,
		Hash:          e.Hash,
		Size:          e.Size,
		HasPayload:    len(e.Binary) > 0,
		HasRich:       e.RichText != "" || e.HTML != "",
	}
}

// capText cuts s to SummaryTextLimit characters, as substr does in SQL.
func capText(s string) (string, bool) {
	if utf8.RuneCountInString(s) <= SummaryTextLimit {
		return s, false
	}
	return string([]rune(s)[:SummaryTextLimit]), true
}

// ComputeSize returns the stored byte size of the entry.
func (e *Entry) ComputeSize() int64 {
	return int64(len(e.Content) + len(e.RichText) + len(e.HTML) + len(e.Binary) + len(e.Thumbnail))
}

// DisplayText returns a single-line label of at most width runes.
func (s *Summary) DisplayText(width int) string {
	switch s.Kind {
	case KindFiles:
		paths := strings.Split(s.Content, "\n")
		if len(paths) > 1 {
			return fmt.Sprintf("%d files copied", len(paths))
		}
		return ellipsize(paths[0], width)
	case KindImage:
		return s.Content
	}
	line := strings.Join(strings.Fields(s.Content), " ")
	return ellipsize(line, width)
}

func ellipsize(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

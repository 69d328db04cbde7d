// Package classify turns raw clipboard payloads into history entries,
// applying the security filters and size limits on the way.
package classify

import (
	"strings"

	"github.com/spideyz0r/clipring/pkg/clipboard"
	"github.com/spideyz0r/clipring/pkg/storage"
)

// Skip explains why a payload produced no entry.
type Skip int

const (
	SkipNone Skip = iota
	SkipEmpty
	SkipPasswordManager
	SkipExcludedFormat
	SkipInvalidText
	SkipBadImage
)

func (s Skip) String() string {
	switch s {
	case SkipNone:
		return "none"
	case SkipEmpty:
		return "empty"
	case SkipPasswordManager:
		return "password manager"
	case SkipExcludedFormat:
		return "excluded format"
	case SkipInvalidText:
		return "invalid text"
	case SkipBadImage:
		return "undecodable image"
	}
	return "unknown"
}

// Origin identifies the application that owned the clipboard when the
// change was signalled.
type Origin struct {
	App     string
	Process string
}

// UnknownApp is recorded when the foreground application cannot be found.
const UnknownApp = "Unknown"

// Classifier converts payloads into entries.
type Classifier struct {
	// MaxTextBytes caps stored text; zero means MaxTextBytes.
	MaxTextBytes int
	// ThumbnailEdge is the longest thumbnail edge; zero means ThumbnailEdge.
	ThumbnailEdge int
	// Stat reads file metadata for file-list entries; nil means os.Stat.
	Stat StatFunc
}

// New returns a classifier with the default limits.
func New() *Classifier {
	return &Classifier{}
}

// Classify builds an entry from p. File lists win over images, images win
// over text. A non-zero Skip means no entry should be recorded.
func (c *Classifier) Classify(p *clipboard.Payload, origin Origin) (*storage.Entry, Skip) {
	if p.Empty() {
		return nil, SkipEmpty
	}
	if IsPasswordManager(origin.Process) {
		return nil, SkipPasswordManager
	}
	if HasExcludedFormat(p.Formats) {
		return nil, SkipExcludedFormat
	}

	var (
		e    *storage.Entry
		skip Skip
	)
	switch {
	case len(p.Files) > 0:
		e = c.classifyFiles(p.Files)
	case len(p.Image) > 0:
		e, skip = c.classifyImage(p.Image)
	default:
		e, skip = c.classifyText(p)
	}
	if skip != SkipNone {
		return nil, skip
	}

	e.SourceApp = origin.App
	if e.SourceApp == "" {
		e.SourceApp = UnknownApp
	}
	e.SourceProcess = origin.Process
	e.Hash = storage.EntryHash(e)
	e.Size = e.ComputeSize()
	return e, SkipNone
}

func (c *Classifier) classifyText(p *clipboard.Payload) (*storage.Entry, Skip) {
	if p.Text == "" {
		return nil, SkipEmpty
	}
	if !ValidText(p.Text) {
		return nil, SkipInvalidText
	}
	limit := c.MaxTextBytes
	if limit <= 0 {
		limit = MaxTextBytes
	}
	return &storage.Entry{
		Kind:     storage.KindText,
		Content:  Truncate(p.Text, limit),
		RichText: p.RichText,
		HTML:     p.HTML,
	}, SkipNone
}

// AppFromTitle derives an application name from a window title of the
// form "document - Application", falling back to the process name.
func AppFromTitle(title, process string) string {
	if i := strings.LastIndex(title, " - "); i >= 0 {
		if app := strings.TrimSpace(title[i+3:]); app != "" {
			return app
		}
	}
	if process != "" {
		return process
	}
	return UnknownApp
}

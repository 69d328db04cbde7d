// Package clipboard provides access to the system clipboard and the
// payload model shared by the watcher, classifier and controller.
package clipboard

import (
	"net/url"
	"slices"
	"strings"
)

// Format names carried in Payload.Formats.
const (
	FormatText    = "text/plain"
	FormatRTF     = "text/rtf"
	FormatHTML    = "text/html"
	FormatPNG     = "image/png"
	FormatURIList = "text/uri-list"
)

// Payload is a snapshot of everything the clipboard offered at read time.
type Payload struct {
	// Formats lists every format name advertised by the owner, including
	// ones that carry no data here (e.g. exclusion markers).
	Formats  []string
	Text     string
	RichText string
	HTML     string
	Image    []byte
	Files    []string
}

// Empty reports whether the payload carries no usable data.
func (p *Payload) Empty() bool {
	return p == nil || (p.Text == "" && p.RichText == "" && p.HTML == "" &&
		len(p.Image) == 0 && len(p.Files) == 0)
}

// HasFormat reports whether name was advertised.
func (p *Payload) HasFormat(name string) bool {
	return slices.Contains(p.Formats, name)
}

// Clone returns a deep copy.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	c := *p
	c.Formats = slices.Clone(p.Formats)
	c.Image = slices.Clone(p.Image)
	c.Files = slices.Clone(p.Files)
	return &c
}

// ParseURIList returns the local paths of a text/uri-list body. It returns
// nil unless every non-empty, non-comment line is a file:// URI.
func ParseURIList(text string) []string {
	var paths []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := url.Parse(line)
		if err != nil || u.Scheme != "file" || u.Path == "" {
			return nil
		}
		paths = append(paths, u.Path)
	}
	return paths
}

// JoinURIList renders paths as a text/uri-list body.
func JoinURIList(paths []string) string {
	lines := make([]string, 0, len(paths))
	for _, p := range paths {
		u := url.URL{Scheme: "file", Path: p}
		lines = append(lines, u.String())
	}
	return strings.Join(lines, "\n")
}

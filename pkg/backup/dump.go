package backup

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spideyz0r/clipring/pkg/storage"
)

// ErrMalformed is returned when a backup does not contain a valid dump.
var ErrMalformed = errors.New("malformed backup")

const dumpHeader = "-- clipring history dump v1\n"

// dumpColumns is the column order written to every INSERT statement.
var dumpColumns = []string{
	"id", "kind", "body", "rich_text", "html", "payload", "thumbnail",
	"created_at", "pinned", "source_app", "source_process", "hash", "size",
}

// Entries is the part of the store a dump is written from.
type Entries interface {
	Each(ctx context.Context, fn func(*storage.Entry) error) error
}

// WriteDump writes every live entry as one INSERT statement inside a
// single transaction block.
func WriteDump(ctx context.Context, src Entries, w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprint(bw, dumpHeader)
	fmt.Fprintf(bw, "-- created %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprint(bw, "PRAGMA foreign_keys=OFF;\nBEGIN TRANSACTION;\n")

	prefix := "INSERT INTO entries(" + strings.Join(dumpColumns, ",") + ") VALUES("
	err := src.Each(ctx, func(e *storage.Entry) error {
		bw.WriteString(prefix)
		for i, v := range []string{
			strconv.FormatInt(e.ID, 10),
			quoteText(string(e.Kind)),
			quoteText(e.Content),
			quoteNullText(e.RichText),
			quoteNullText(e.HTML),
			quoteBlob(e.Binary),
			quoteBlob(e.Thumbnail),
			strconv.FormatInt(e.CreatedAt.UnixNano(), 10),
			boolInt(e.Pinned),
			quoteText(e.SourceApp),
			quoteText(e.SourceProcess),
			quoteText(e.Hash),
			strconv.FormatInt(e.Size, 10),
		} {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.WriteString(v)
		}
		_, err := bw.WriteString(");\n")
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to dump entries: %w", err)
	}

	fmt.Fprint(bw, "COMMIT;\n")
	return bw.Flush()
}

func quoteText(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteNullText(s string) string {
	if s == "" {
		return "NULL"
	}
	return quoteText(s)
}

func quoteBlob(b []byte) string {
	if len(b) == 0 {
		return "NULL"
	}
	return "X'" + strings.ToUpper(hex.EncodeToString(b)) + "'"
}

func boolInt(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ParseDump reads a dump produced by WriteDump. Anything other than the
// expected statements, or a missing COMMIT, is reported as ErrMalformed.
func ParseDump(src []byte) ([]*storage.Entry, error) {
	p := &parser{src: string(src)}
	entries, err := p.parse()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return entries, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) parse() ([]*storage.Entry, error) {
	var (
		entries   []*storage.Entry
		begun     bool
		committed bool
	)
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			break
		}
		if committed {
			return nil, p.errorf("unexpected content after COMMIT")
		}

		word, err := p.word()
		if err != nil {
			return nil, err
		}
		switch strings.ToUpper(word) {
		case "PRAGMA":
			if begun {
				return nil, p.errorf("PRAGMA inside transaction")
			}
			if err := p.pragma(); err != nil {
				return nil, err
			}
		case "BEGIN":
			if begun {
				return nil, p.errorf("nested BEGIN")
			}
			if err := p.begin(); err != nil {
				return nil, err
			}
			begun = true
		case "INSERT":
			if !begun {
				return nil, p.errorf("INSERT outside transaction")
			}
			e, err := p.insert()
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		case "COMMIT":
			if !begun {
				return nil, p.errorf("COMMIT without BEGIN")
			}
			if err := p.expect(';'); err != nil {
				return nil, err
			}
			committed = true
		default:
			return nil, p.errorf("unexpected statement %q", word)
		}
	}
	if !committed {
		return nil, errors.New("dump is truncated: no COMMIT")
	}
	return entries, nil
}

func (p *parser) pragma() error {
	name, err := p.word()
	if err != nil {
		return err
	}
	if !strings.EqualFold(name, "foreign_keys") {
		return p.errorf("unsupported pragma %q", name)
	}
	if err := p.expect('='); err != nil {
		return err
	}
	if _, err := p.word(); err != nil {
		return err
	}
	return p.expect(';')
}

func (p *parser) begin() error {
	p.skipSpace()
	if p.peek() != ';' {
		w, err := p.word()
		if err != nil {
			return err
		}
		if !strings.EqualFold(w, "TRANSACTION") {
			return p.errorf("unexpected %q after BEGIN", w)
		}
	}
	return p.expect(';')
}

func (p *parser) insert() (*storage.Entry, error) {
	if err := p.keyword("INTO"); err != nil {
		return nil, err
	}
	if err := p.keyword("entries"); err != nil {
		return nil, err
	}

	var cols []string
	err := p.list(func() error {
		c, err := p.word()
		if err != nil {
			return err
		}
		cols = append(cols, strings.ToLower(c))
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := p.keyword("VALUES"); err != nil {
		return nil, err
	}

	var vals []any
	err = p.list(func() error {
		v, err := p.value()
		if err != nil {
			return err
		}
		vals = append(vals, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := p.expect(';'); err != nil {
		return nil, err
	}

	if len(cols) != len(vals) {
		return nil, p.errorf("%d columns but %d values", len(cols), len(vals))
	}
	return buildEntry(cols, vals)
}

// list parses "(item, item, ...)".
func (p *parser) list(item func() error) error {
	if err := p.expect('('); err != nil {
		return err
	}
	for {
		if err := item(); err != nil {
			return err
		}
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return nil
		default:
			return p.errorf("expected ',' or ')'")
		}
	}
}

func (p *parser) value() (any, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == '\'':
		return p.text()
	case (c == 'X' || c == 'x') && p.pos+1 < len(p.src) && p.src[p.pos+1] == '\'':
		p.pos++
		s, err := p.text()
		if err != nil {
			return nil, err
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, p.errorf("invalid blob literal: %v", err)
		}
		return b, nil
	case c == '-' || (c >= '0' && c <= '9'):
		start := p.pos
		p.pos++
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		n, err := strconv.ParseInt(p.src[start:p.pos], 10, 64)
		if err != nil {
			return nil, p.errorf("invalid integer %q", p.src[start:p.pos])
		}
		return n, nil
	}

	w, err := p.word()
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(w, "NULL") {
		return nil, p.errorf("unexpected value %q", w)
	}
	return nil, nil
}

// text parses a single-quoted literal with '' as the escaped quote.
func (p *parser) text() (string, error) {
	p.pos++ // opening quote
	var sb strings.Builder
	for {
		i := strings.IndexByte(p.src[p.pos:], '\'')
		if i < 0 {
			return "", p.errorf("unterminated string")
		}
		sb.WriteString(p.src[p.pos : p.pos+i])
		p.pos += i + 1
		if p.peek() != '\'' {
			return sb.String(), nil
		}
		sb.WriteByte('\'')
		p.pos++
	}
}

func (p *parser) word() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && isWordByte(p.src[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return "", p.errorf("expected identifier")
	}
	return p.src[start:p.pos], nil
}

func (p *parser) keyword(want string) error {
	w, err := p.word()
	if err != nil {
		return err
	}
	if !strings.EqualFold(w, want) {
		return p.errorf("expected %s, got %q", want, w)
	}
	return nil
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch c := p.src[p.pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.pos++
		case c == '-' && strings.HasPrefix(p.src[p.pos:], "--"):
			end := strings.IndexByte(p.src[p.pos:], '\n')
			if end < 0 {
				p.pos = len(p.src)
			} else {
				p.pos += end + 1
			}
		default:
			return
		}
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// buildEntry maps one parsed row onto an Entry, checking value types.
func buildEntry(cols []string, vals []any) (*storage.Entry, error) {
	e := &storage.Entry{}
	seen := make(map[string]bool, len(cols))

	for i, col := range cols {
		if seen[col] {
			return nil, fmt.Errorf("duplicate column %q", col)
		}
		seen[col] = true

		v := vals[i]
		var err error
		switch col {
		case "id":
			e.ID, err = intValue(col, v)
		case "kind":
			var s string
			if s, err = textValue(col, v); err == nil {
				kind, ok := storage.ParseKind(s)
				if !ok {
					return nil, fmt.Errorf("unknown kind %q", s)
				}
				e.Kind = kind
			}
		case "body":
			e.Content, err = textValue(col, v)
		case "rich_text":
			e.RichText, err = textValue(col, v)
		case "html":
			e.HTML, err = textValue(col, v)
		case "payload":
			e.Binary, err = blobValue(col, v)
		case "thumbnail":
			e.Thumbnail, err = blobValue(col, v)
		case "created_at":
			var n int64
			if n, err = intValue(col, v); err == nil {
				e.CreatedAt = time.Unix(0, n)
			}
		case "pinned":
			var n int64
			n, err = intValue(col, v)
			e.Pinned = n != 0
		case "source_app":
			e.SourceApp, err = textValue(col, v)
		case "source_process":
			e.SourceProcess, err = textValue(col, v)
		case "hash":
			e.Hash, err = textValue(col, v)
		case "size":
			e.Size, err = intValue(col, v)
		default:
			return nil, fmt.Errorf("unknown column %q", col)
		}
		if err != nil {
			return nil, err
		}
	}

	for _, required := range []string{"id", "kind", "body", "created_at"} {
		if !seen[required] {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	if e.ID <= 0 {
		return nil, fmt.Errorf("invalid id %d", e.ID)
	}
	if e.Size == 0 {
		e.Size = e.ComputeSize()
	}
	return e, nil
}

func intValue(col string, v any) (int64, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("column %q: expected integer", col)
	}
	return n, nil
}

func textValue(col string, v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	}
	return "", fmt.Errorf("column %q: expected text", col)
}

func blobValue(col string, v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return t, nil
	}
	return nil, fmt.Errorf("column %q: expected blob", col)
}

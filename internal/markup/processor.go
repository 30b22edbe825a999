// Package markup is a small tag processor for rendered block fragments.
//
// It walks the start tags of an HTML string and lets callers read and edit
// attributes on them. Only tags that were edited are re-serialized; every
// other byte of the input is emitted exactly as it came in, so a Processor
// that makes no edits returns its input unchanged.
package markup

import (
	"errors"
	"io"
	"strings"

	apperrors "github.com/sunmorgn/aria-labels/internal/errors"

	"golang.org/x/net/html"
)

type attribute struct {
	name  string
	value string
}

type tag struct {
	start       int
	end         int
	name        string // lower-cased
	rawName     string // as written in the source
	selfClosing bool
	attrs       []attribute
	dirty       bool
}

func (t *tag) find(name string) int {
	for i, a := range t.attrs {
		if a.name == name {
			return i
		}
	}
	return -1
}

// Processor holds a scanned fragment and a cursor over its start tags.
type Processor struct {
	src  string
	tags []*tag
	cur  int
}

// New scans src. It returns a CodeMalformedMarkup error when the tokenizer
// cannot account for every byte of the input.
func New(src string) (*Processor, error) {
	tags, err := scan(src)
	if err != nil {
		return nil, err
	}
	return &Processor{src: src, tags: tags, cur: -1}, nil
}

func scan(src string) ([]*tag, error) {
	z := html.NewTokenizer(strings.NewReader(src))
	var tags []*tag
	offset := 0
	for {
		tt := z.Next()
		// Raw must be copied before TagName/TagAttr, which rewrite the buffer in place.
		raw := string(z.Raw())
		switch tt {
		case html.ErrorToken:
			if !errors.Is(z.Err(), io.EOF) {
				return nil, apperrors.New(apperrors.CodeMalformedMarkup, "tokenize markup", z.Err())
			}
			if offset != len(src) {
				return nil, apperrors.New(apperrors.CodeMalformedMarkup, "markup has unconsumed trailing bytes", nil)
			}
			return tags, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			if offset+len(raw) > len(src) || src[offset:offset+len(raw)] != raw {
				return nil, apperrors.New(apperrors.CodeMalformedMarkup, "token offsets drifted from source", nil)
			}
			name, hasAttr := z.TagName()
			t := &tag{
				start:       offset,
				end:         offset + len(raw),
				name:        string(name),
				rawName:     raw[1 : 1+len(name)],
				selfClosing: tt == html.SelfClosingTagToken,
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				t.attrs = append(t.attrs, attribute{name: string(key), value: string(val)})
			}
			tags = append(tags, t)
		}
		offset += len(raw)
	}
}

// Len returns the number of start tags in the fragment.
func (p *Processor) Len() int {
	return len(p.tags)
}

// Count returns how many start tags are named name. An empty name counts all tags.
func (p *Processor) Count(name string) int {
	name = strings.ToLower(name)
	n := 0
	for _, t := range p.tags {
		if name == "" || t.name == name {
			n++
		}
	}
	return n
}

// Reset moves the cursor back before the first tag.
func (p *Processor) Reset() {
	p.cur = -1
}

// NextTag advances to the next start tag named name (any tag when name is
// empty) and reports whether one was found. On failure the cursor is left
// past the end and attribute edits become no-ops.
func (p *Processor) NextTag(name string) bool {
	name = strings.ToLower(name)
	for i := p.cur + 1; i < len(p.tags); i++ {
		if name == "" || p.tags[i].name == name {
			p.cur = i
			return true
		}
	}
	p.cur = len(p.tags)
	return false
}

func (p *Processor) current() *tag {
	if p.cur < 0 || p.cur >= len(p.tags) {
		return nil
	}
	return p.tags[p.cur]
}

// TagName returns the lower-cased name of the current tag, or "".
func (p *Processor) TagName() string {
	if t := p.current(); t != nil {
		return t.name
	}
	return ""
}

// GetAttribute returns the value of name on the current tag.
func (p *Processor) GetAttribute(name string) (string, bool) {
	t := p.current()
	if t == nil {
		return "", false
	}
	if i := t.find(strings.ToLower(name)); i >= 0 {
		return t.attrs[i].value, true
	}
	return "", false
}

// SetAttribute sets name=value on the current tag, replacing an existing
// value in place or appending a new attribute. It reports whether a tag was
// current.
func (p *Processor) SetAttribute(name, value string) bool {
	t := p.current()
	if t == nil {
		return false
	}
	name = strings.ToLower(name)
	if i := t.find(name); i >= 0 {
		if t.attrs[i].value != value {
			t.attrs[i].value = value
			t.dirty = true
		}
		return true
	}
	t.attrs = append(t.attrs, attribute{name: name, value: value})
	t.dirty = true
	return true
}

// RemoveAttribute deletes every occurrence of name from the current tag and
// reports whether anything was removed.
func (p *Processor) RemoveAttribute(name string) bool {
	t := p.current()
	if t == nil {
		return false
	}
	name = strings.ToLower(name)
	kept := t.attrs[:0]
	removed := false
	for _, a := range t.attrs {
		if a.name == name {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	t.attrs = kept
	if removed {
		t.dirty = true
	}
	return removed
}

// HTML returns the fragment with edits applied.
func (p *Processor) HTML() string {
	var b strings.Builder
	b.Grow(len(p.src) + 64)
	last := 0
	for _, t := range p.tags {
		if !t.dirty {
			continue
		}
		b.WriteString(p.src[last:t.start])
		writeTag(&b, t)
		last = t.end
	}
	b.WriteString(p.src[last:])
	return b.String()
}

func writeTag(b *strings.Builder, t *tag) {
	b.WriteByte('<')
	b.WriteString(t.rawName)
	for _, a := range t.attrs {
		b.WriteByte(' ')
		b.WriteString(a.name)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.value))
		b.WriteByte('"')
	}
	if t.selfClosing {
		b.WriteString(" /")
	}
	b.WriteByte('>')
}

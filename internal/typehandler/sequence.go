package typehandler

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Per-format delimiters used when a single field carries a sequence of
// values. The escape character escapes the delimiter and itself only.
var sequenceDelims = map[string]byte{
	"delimited":   '|',
	"csv":         '|',
	"fixedlength": '|',
	"xml":         ' ',
}

// SequenceDelim returns the list delimiter for a stream format.
func SequenceDelim(format string) byte {
	if d, ok := sequenceDelims[format]; ok {
		return d
	}
	return '|'
}

// SequenceHandler synthesizes a sequence-of-T handler by delegating each
// element to an element handler and splitting or joining on a delimiter.
type SequenceHandler struct {
	Elem   Handler
	Delim  byte
	Escape byte
}

// NewSequenceHandler wraps elem in a sequence handler using the format's
// delimiter and a backslash escape.
func NewSequenceHandler(elem Handler, format string) *SequenceHandler {
	return &SequenceHandler{Elem: elem, Delim: SequenceDelim(format), Escape: '\\'}
}

func (h *SequenceHandler) Parse(text string) (cty.Value, error) {
	if text == "" {
		return cty.NullVal(cty.List(h.Elem.TargetType())), nil
	}
	parts := h.split(text)
	vals := make([]cty.Value, 0, len(parts))
	for i, part := range parts {
		v, err := h.Elem.Parse(part)
		if err != nil {
			return cty.NilVal, fmt.Errorf("element %d: %w", i, err)
		}
		vals = append(vals, v)
	}
	return cty.ListVal(vals), nil
}

func (h *SequenceHandler) Format(v cty.Value) (string, bool, error) {
	if v.IsNull() {
		return "", false, nil
	}
	var parts []string
	it := v.ElementIterator()
	for it.Next() {
		_, ev := it.Element()
		text, _, err := h.Elem.Format(ev)
		if err != nil {
			return "", false, err
		}
		parts = append(parts, h.escapeText(text))
	}
	return strings.Join(parts, string(h.Delim)), true, nil
}

func (h *SequenceHandler) TargetType() cty.Type { return cty.List(h.Elem.TargetType()) }

// split separates text on the delimiter, honoring the escape character. The
// escape only escapes the delimiter and itself; any other escaped byte is
// kept verbatim along with the escape.
func (h *SequenceHandler) split(text string) []string {
	var parts []string
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == h.Escape && i+1 < len(text) {
			next := text[i+1]
			if next == h.Delim || next == h.Escape {
				b.WriteByte(next)
				i++
				continue
			}
			b.WriteByte(c)
			continue
		}
		if c == h.Delim {
			parts = append(parts, b.String())
			b.Reset()
			continue
		}
		b.WriteByte(c)
	}
	parts = append(parts, b.String())
	return parts
}

func (h *SequenceHandler) escapeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == h.Delim || c == h.Escape {
			b.WriteByte(h.Escape)
		}
		b.WriteByte(c)
	}
	return b.String()
}

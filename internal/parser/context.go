// Package parser holds the runtime parser tree compiled from a stream
// configuration: Field, Segment, Record, Group and Stream components, plus
// the unmarshalling and marshalling contexts that carry all per-record
// transient state. The tree itself is immutable and shared; contexts are
// single-threaded per reader or writer.
package parser

import (
	"context"
	"sort"
	"strings"

	"github.com/vk/flatbind/internal/format"
)

// valueStore implements property.Values over a plain map.
type valueStore map[int]any

func (s valueStore) Get(id int) (any, bool) {
	v, ok := s[id]
	return v, ok
}

func (s valueStore) Set(id int, v any) { s[id] = v }
func (s valueStore) Clear(id int)      { delete(s, id) }

// UnmarshallingContext carries the state of one record being read: the
// tokenized record, the property value slots, positional offset for
// repeating segments, and field conversion errors gathered for the record.
type UnmarshallingContext struct {
	Ctx context.Context

	// Record is the record currently being unmarshalled.
	Record *format.Record
	// Tokenized mirrors the stream format: fields by ordinal vs by offset.
	Tokenized bool

	values valueStore
	offset int

	// FieldErrors aggregates scalar conversion failures for the record.
	FieldErrors []error
}

// NewUnmarshallingContext creates a context for one reader.
func NewUnmarshallingContext(ctx context.Context, tokenized bool) *UnmarshallingContext {
	return &UnmarshallingContext{Ctx: ctx, Tokenized: tokenized, values: make(valueStore)}
}

func (c *UnmarshallingContext) Get(id int) (any, bool) { return c.values.Get(id) }
func (c *UnmarshallingContext) Set(id int, v any)      { c.values.Set(id, v) }
func (c *UnmarshallingContext) Clear(id int)           { c.values.Clear(id) }

// Reset prepares the context for the next record.
func (c *UnmarshallingContext) Reset(rec *format.Record) {
	c.Record = rec
	c.values = make(valueStore)
	c.offset = 0
	c.FieldErrors = c.FieldErrors[:0]
}

// PushOffset shifts field positions for one occurrence of a repeating
// segment; the returned func restores the previous offset.
func (c *UnmarshallingContext) PushOffset(delta int) func() {
	prev := c.offset
	c.offset += delta
	return func() { c.offset = prev }
}

// FieldText extracts field text for the current record. For tokenized
// formats position is the 1-based ordinal; for fixed-length it is the
// 0-based offset and length the width. ok is false past the record's end.
func (c *UnmarshallingContext) FieldText(position, length int) (string, bool) {
	if c.Record == nil {
		return "", false
	}
	if c.Tokenized {
		idx := position - 1 + c.offset
		if idx < 0 || idx >= len(c.Record.Fields) {
			return "", false
		}
		return c.Record.Fields[idx], true
	}
	start := position + c.offset
	if start >= len(c.Record.Text) {
		return "", false
	}
	end := start + length
	if end > len(c.Record.Text) {
		end = len(c.Record.Text)
	}
	return c.Record.Text[start:end], true
}

// AddFieldError records a scalar conversion failure without aborting the
// record.
func (c *UnmarshallingContext) AddFieldError(err error) {
	c.FieldErrors = append(c.FieldErrors, err)
}

// MarshallingContext carries the state of one record being written: the
// property value slots and the staged field text keyed by position.
type MarshallingContext struct {
	Ctx context.Context

	Tokenized bool

	values valueStore
	offset int

	fields map[int]string
	names  map[int]string
	widths map[int]int
	maxPos int
}

// NewMarshallingContext creates a context for one writer.
func NewMarshallingContext(ctx context.Context, tokenized bool) *MarshallingContext {
	return &MarshallingContext{
		Ctx:       ctx,
		Tokenized: tokenized,
		values:    make(valueStore),
		fields:    make(map[int]string),
		names:     make(map[int]string),
		widths:    make(map[int]int),
	}
}

func (c *MarshallingContext) Get(id int) (any, bool) { return c.values.Get(id) }
func (c *MarshallingContext) Set(id int, v any)      { c.values.Set(id, v) }
func (c *MarshallingContext) Clear(id int)           { c.values.Clear(id) }

// Reset prepares the context for the next record.
func (c *MarshallingContext) Reset() {
	c.values = make(valueStore)
	c.fields = make(map[int]string)
	c.names = make(map[int]string)
	c.widths = make(map[int]int)
	c.maxPos = 0
	c.offset = 0
}

// PushOffset shifts positions for one occurrence of a repeating segment.
func (c *MarshallingContext) PushOffset(delta int) func() {
	prev := c.offset
	c.offset += delta
	return func() { c.offset = prev }
}

// SetField stages field text at a position. Tokenized positions are
// 1-based ordinals; fixed-length positions are byte offsets with width.
func (c *MarshallingContext) SetField(position int, text, name string, width int) {
	pos := position + c.offset
	c.fields[pos] = text
	c.names[pos] = name
	c.widths[pos] = width
	end := pos
	if c.Tokenized {
		if end > c.maxPos {
			c.maxPos = end
		}
	} else if end+width > c.maxPos {
		c.maxPos = end + width
	}
}

// ToRecord assembles the staged fields into an output record. Tokenized
// output renders positions 1..max with empty strings back-filling interior
// gaps; fixed-length output lays field text at byte offsets over a
// space-filled line.
func (c *MarshallingContext) ToRecord(name string) *format.Record {
	rec := &format.Record{Name: name}
	if c.Tokenized {
		if c.maxPos == 0 {
			rec.Fields = []string{}
			return rec
		}
		rec.Fields = make([]string, c.maxPos)
		rec.Names = make([]string, c.maxPos)
		for pos, text := range c.fields {
			if pos >= 1 && pos <= c.maxPos {
				rec.Fields[pos-1] = text
				rec.Names[pos-1] = c.names[pos]
			}
		}
		return rec
	}
	var b strings.Builder
	b.Grow(c.maxPos)
	offsets := make([]int, 0, len(c.fields))
	for pos := range c.fields {
		offsets = append(offsets, pos)
	}
	sort.Ints(offsets)
	end := 0
	for _, pos := range offsets {
		for end < pos {
			b.WriteByte(' ')
			end++
		}
		text := c.fields[pos]
		b.WriteString(text)
		end += len(text)
	}
	rec.Text = b.String()
	return rec
}

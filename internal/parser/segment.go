package parser

import (
	"github.com/vk/flatbind/internal/config"
	"github.com/vk/flatbind/internal/property"
)

// NewField creates a field parser. The remaining attributes are set by the
// compiler before the tree is published.
func NewField(name string) *Field {
	return &Field{name: name, MaxOccurs: 1}
}

// Child is a parser nested inside a record or segment: a Field or Segment.
type Child interface {
	Name() string
	Unmarshal(ctx *UnmarshallingContext) error
	Marshal(ctx *MarshallingContext) error
}

// Segment groups child parsers bound to one member of the enclosing
// aggregate. A repeating segment drives its occurrences itself, shifting
// child positions by the segment width per occurrence.
type Segment struct {
	name     string
	Children []Child

	// Property is the bound property: a Bean, Collection or Map, or nil
	// for a purely structural segment.
	Property property.Component

	MinOccurs int
	MaxOccurs int

	// Width is the positional span of one occurrence: declared positions
	// for tokenized formats, bytes for fixed-length.
	Width int
}

// NewSegment creates a segment parser.
func NewSegment(name string) *Segment {
	return &Segment{name: name, MinOccurs: 1, MaxOccurs: 1}
}

func (s *Segment) Name() string { return s.name }

// repeating reports whether the segment aggregates multiple occurrences.
func (s *Segment) repeating() bool {
	return s.MaxOccurs == config.Unbounded || s.MaxOccurs > 1
}

func (s *Segment) Unmarshal(ctx *UnmarshallingContext) error {
	if !s.repeating() {
		for _, c := range s.Children {
			if err := c.Unmarshal(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	acc, _ := s.Property.(interface {
		Accumulate(vals property.Values) error
	})
	for i := 0; ; i++ {
		if s.MaxOccurs != config.Unbounded && i >= s.MaxOccurs {
			break
		}
		restore := ctx.PushOffset(i * s.Width)
		if !s.occupied(ctx) {
			restore()
			break
		}
		for _, c := range s.Children {
			if err := c.Unmarshal(ctx); err != nil {
				restore()
				return err
			}
		}
		restore()
		if acc != nil {
			if err := acc.Accumulate(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// occupied reports whether the record still has content at the segment's
// current offset.
func (s *Segment) occupied(ctx *UnmarshallingContext) bool {
	for _, c := range s.Children {
		if f, ok := c.(*Field); ok {
			if _, present := ctx.FieldText(f.Position, f.Length); present {
				return true
			}
		}
		if sub, ok := c.(*Segment); ok && sub.occupied(ctx) {
			return true
		}
	}
	return false
}

func (s *Segment) Marshal(ctx *MarshallingContext) error {
	if !s.repeating() {
		for _, c := range s.Children {
			if err := c.Marshal(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	occ, ok := s.Property.(interface {
		Length(vals property.Values) int
		Occurrence(vals property.Values, i int) error
	})
	if !ok {
		return nil
	}
	n := occ.Length(ctx)
	if s.MaxOccurs != config.Unbounded && n > s.MaxOccurs {
		n = s.MaxOccurs
	}
	for i := 0; i < n; i++ {
		if err := occ.Occurrence(ctx, i); err != nil {
			return err
		}
		restore := ctx.PushOffset(i * s.Width)
		for _, c := range s.Children {
			if err := c.Marshal(ctx); err != nil {
				restore()
				return err
			}
		}
		restore()
	}
	return nil
}

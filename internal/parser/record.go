package parser

import (
	"reflect"

	"github.com/vk/flatbind/internal/format"
	"github.com/vk/flatbind/internal/property"
)

// Record parses and formats one record layout.
type Record struct {
	name     string
	Children []Child

	// Property is the record's bound aggregate.
	Property property.Component

	MinOccurs int
	MaxOccurs int

	// identifiers are the fields participating in record dispatch, in
	// declared order.
	identifiers []*Field
}

// NewRecord creates a record parser.
func NewRecord(name string) *Record {
	return &Record{name: name}
}

func (r *Record) Name() string { return r.name }

// AddIdentifier registers a dispatch field.
func (r *Record) AddIdentifier(f *Field) {
	r.identifiers = append(r.identifiers, f)
}

// Identified reports whether the record declares dispatch criteria. An
// unidentified record matches any input.
func (r *Record) Identified() bool { return len(r.identifiers) > 0 }

// Matches tests the record's identifier fields left to right against the
// current record.
func (r *Record) Matches(ctx *UnmarshallingContext) bool {
	if ctx.Record.Name != "" {
		// Formats that carry a record name dispatch on it directly.
		return ctx.Record.Name == r.name
	}
	for _, f := range r.identifiers {
		if !f.Matches(ctx) {
			return false
		}
	}
	return true
}

// Unmarshal walks the record's children over the current record and
// materializes the bound aggregate. Scalar conversion errors aggregate on
// the context; the returned value is only valid when ok is true.
func (r *Record) Unmarshal(ctx *UnmarshallingContext) (reflect.Value, bool, error) {
	ctx.Record.Name = r.name
	for _, c := range r.Children {
		if err := c.Unmarshal(ctx); err != nil {
			return reflect.Value{}, false, err
		}
	}
	if len(ctx.FieldErrors) > 0 {
		return reflect.Value{}, false, nil
	}
	return r.Property.GetValue(ctx)
}

// Marshal distributes value over the property tree and formats the
// record's children into a staged output record.
func (r *Record) Marshal(ctx *MarshallingContext, value reflect.Value) (*format.Record, error) {
	ctx.Reset()
	if err := r.Property.Scatter(ctx, value); err != nil {
		return nil, err
	}
	for _, c := range r.Children {
		if err := c.Marshal(ctx); err != nil {
			return nil, err
		}
	}
	rec := ctx.ToRecord(r.name)
	return rec, nil
}

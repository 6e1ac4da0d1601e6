package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flatbind/internal/beanerr"
	"github.com/vk/flatbind/internal/config"
	"github.com/vk/flatbind/internal/property"
	"github.com/vk/flatbind/internal/typehandler"
)

// Field parses and formats one scalar position of a record.
type Field struct {
	name string

	// Position is the 1-based ordinal for tokenized formats or the 0-based
	// byte offset for fixed-length.
	Position int
	// Length is the field width: the fixed-length slice width, or optional
	// padding width for tokenized fields. Zero means unpadded.
	Length       int
	Padding      byte
	JustifyRight bool

	Required  bool
	Default   string
	Literal   string
	Regex     *regexp.Regexp
	MinLength int
	MaxLength int

	MinOccurs int
	MaxOccurs int

	identifier bool

	Handler typehandler.Handler
	// Property is nil for unbound (structural or constant) fields.
	Property *property.Simple
}

func (f *Field) Name() string { return f.name }

// SetIdentifier marks the field as a record identifier and propagates the
// flag up the bound property chain.
func (f *Field) SetIdentifier() {
	f.identifier = true
	if f.Property != nil {
		f.Property.MarkIdentifier()
	}
}

func (f *Field) IsIdentifier() bool { return f.identifier }

// Matches tests the field's identifier criterion against the current
// record text.
func (f *Field) Matches(ctx *UnmarshallingContext) bool {
	text, ok := ctx.FieldText(f.Position, f.Length)
	if !ok {
		return false
	}
	text = f.unpad(text)
	if f.Literal != "" {
		return text == f.Literal
	}
	if f.Regex != nil {
		return f.Regex.MatchString(text)
	}
	// An identifier with neither literal nor regex matches when the text
	// parses cleanly.
	if f.Handler != nil {
		_, err := f.Handler.Parse(text)
		return err == nil
	}
	return true
}

// Unmarshal extracts, validates and converts the field's occurrences,
// storing parsed values on the bound property. Conversion failures are
// aggregated on the context and do not abort the record.
func (f *Field) Unmarshal(ctx *UnmarshallingContext) error {
	occurs := f.countOccurs(ctx)
	for i := 0; i < occurs; i++ {
		text, present := f.occurrenceText(ctx, i)
		if !present {
			break
		}
		text = f.unpad(text)
		if text == "" && f.Default != "" {
			text = f.Default
		}
		if err := f.validate(ctx, text); err != nil {
			ctx.AddFieldError(err)
			continue
		}
		if f.Property == nil {
			continue
		}
		v, err := f.Handler.Parse(text)
		if err != nil {
			ctx.AddFieldError(&beanerr.TypeConversionError{
				RecordName: ctx.Record.Name,
				FieldName:  f.name,
				LineNumber: ctx.Record.LineNumber,
				Text:       text,
				Err:        err,
			})
			continue
		}
		f.Property.SetCty(ctx, v)
	}
	return nil
}

func (f *Field) countOccurs(ctx *UnmarshallingContext) int {
	if f.MaxOccurs == 1 {
		return 1
	}
	// Greedy repetition: consume positions to the record's end, bounded by
	// maxOccurs when it is bounded.
	var available int
	if ctx.Tokenized {
		available = len(ctx.Record.Fields) - (f.Position - 1)
	} else {
		remaining := len(ctx.Record.Text) - f.Position
		if f.Length > 0 {
			available = (remaining + f.Length - 1) / f.Length
		}
	}
	if available < 0 {
		available = 0
	}
	if f.MaxOccurs != config.Unbounded && available > f.MaxOccurs {
		available = f.MaxOccurs
	}
	return available
}

func (f *Field) occurrenceText(ctx *UnmarshallingContext, i int) (string, bool) {
	if ctx.Tokenized {
		return ctx.FieldText(f.Position+i, f.Length)
	}
	return ctx.FieldText(f.Position+i*f.Length, f.Length)
}

func (f *Field) validate(ctx *UnmarshallingContext, text string) error {
	fieldErr := func(cause string) error {
		return &beanerr.TypeConversionError{
			RecordName: ctx.Record.Name,
			FieldName:  f.name,
			LineNumber: ctx.Record.LineNumber,
			Text:       text,
			Err:        fmt.Errorf("%s", cause),
		}
	}
	if text == "" {
		if f.Required {
			return fieldErr("required field is empty")
		}
		return nil
	}
	if f.MinLength > 0 && len(text) < f.MinLength {
		return fieldErr(fmt.Sprintf("length %d is below the minimum %d", len(text), f.MinLength))
	}
	if f.MaxLength > 0 && len(text) > f.MaxLength {
		return fieldErr(fmt.Sprintf("length %d exceeds the maximum %d", len(text), f.MaxLength))
	}
	if f.Regex != nil && !f.identifier && !f.Regex.MatchString(text) {
		return fieldErr("text does not match the field pattern")
	}
	return nil
}

// Marshal formats the field's value into the staged output record. A
// missing value leaves tokenized positions to back-fill and emits pad
// characters over the full width for fixed-length output.
func (f *Field) Marshal(ctx *MarshallingContext) error {
	if f.Literal != "" {
		ctx.SetField(f.Position, f.pad(f.Literal), f.name, f.width())
		return nil
	}
	if f.Property == nil {
		if !ctx.Tokenized {
			ctx.SetField(f.Position, f.pad(""), f.name, f.width())
		}
		return nil
	}

	raw, ok := f.Property.Cty(ctx)
	if !ok {
		return f.marshalMissing(ctx)
	}
	if list, repeating := raw.([]cty.Value); repeating {
		for i, v := range list {
			if f.MaxOccurs != config.Unbounded && i >= f.MaxOccurs {
				break
			}
			if err := f.marshalOne(ctx, v, i); err != nil {
				return err
			}
		}
		return nil
	}
	return f.marshalOne(ctx, raw.(cty.Value), 0)
}

func (f *Field) marshalOne(ctx *MarshallingContext, v cty.Value, i int) error {
	text, present, err := f.Handler.Format(v)
	if err != nil {
		return &beanerr.WriterError{RecordName: f.name, Err: err}
	}
	pos := f.Position + i
	if !ctx.Tokenized {
		pos = f.Position + i*f.Length
	}
	if !present {
		if i == 0 {
			return f.marshalMissing(ctx)
		}
		return nil
	}
	ctx.SetField(pos, f.pad(text), f.name, f.width())
	return nil
}

// marshalMissing handles an absent property value: the default literal is
// emitted when configured, a missing required identifier is a writer
// error, and
// otherwise tokenized positions stay unset for back-fill while
// fixed-length output gets pad characters over the full width.
func (f *Field) marshalMissing(ctx *MarshallingContext) error {
	if f.Default != "" {
		ctx.SetField(f.Position, f.pad(f.Default), f.name, f.width())
		return nil
	}
	if f.identifier && f.Required {
		return &beanerr.WriterError{
			RecordName: f.name,
			Err:        fmt.Errorf("identifier field %q has no value", f.name),
		}
	}
	if !ctx.Tokenized {
		ctx.SetField(f.Position, f.pad(""), f.name, f.width())
	}
	return nil
}

func (f *Field) width() int {
	if f.Length > 0 {
		return f.Length
	}
	return 0
}

// pad fits text to the field width using the pad character and justify
// direction. Unpadded fields pass through; overlong text is truncated for
// fixed-length output.
func (f *Field) pad(text string) string {
	if f.Length <= 0 {
		return text
	}
	if len(text) > f.Length {
		return text[:f.Length]
	}
	padChar := f.Padding
	if padChar == 0 {
		padChar = ' '
	}
	fill := strings.Repeat(string(padChar), f.Length-len(text))
	if f.JustifyRight {
		return fill + text
	}
	return text + fill
}

// unpad strips pad characters from the justified side of the text.
func (f *Field) unpad(text string) string {
	if f.Length <= 0 {
		return text
	}
	padChar := f.Padding
	if padChar == 0 {
		padChar = ' '
	}
	if f.JustifyRight {
		return strings.TrimLeft(text, string(padChar))
	}
	return strings.TrimRight(text, string(padChar))
}

// Package property models the in-memory side of a compiled stream: the
// tree of values a record maps onto. Components come in four variants:
// Simple scalars, Bean aggregates, Collections and Maps. Components are
// immutable after compilation; per-read and per-write state lives in a
// Values store owned by the driving context, keyed by component id.
package property

import (
	"fmt"
	"reflect"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flatbind/internal/accessor"
)

// Values is the transient per-context store components read and write.
// Implemented by the unmarshalling and marshalling contexts.
type Values interface {
	Get(id int) (any, bool)
	Set(id int, v any)
	Clear(id int)
}

// Component is one node of the property tree.
type Component interface {
	// ID is the slot index assigned at compile time.
	ID() int
	Name() string
	// Identifier reports whether the component participates in record
	// dispatch. Marking a child propagates to every enclosing component.
	Identifier() bool
	MarkIdentifier()
	// GoType is the Go type of the produced value. In untyped map mode a
	// Simple reports nil, a Bean or Map reports map[string]any and a
	// Collection reports []any.
	GoType() reflect.Type

	// GetValue materializes the component's value from the store. The bool
	// reports presence; absent optional values return false.
	GetValue(vals Values) (reflect.Value, bool, error)
	// Scatter distributes v into the store so field parsers can format it.
	Scatter(vals Values, v reflect.Value) error
	// ClearValue resets the component's transient state.
	ClearValue(vals Values)
}

type base struct {
	id         int
	name       string
	identifier bool
	parent     Component
}

func (b *base) ID() int          { return b.id }
func (b *base) SetID(id int)     { b.id = id }
func (b *base) Name() string     { return b.name }
func (b *base) Identifier() bool { return b.identifier }

func (b *base) MarkIdentifier() {
	b.identifier = true
	if b.parent != nil {
		b.parent.MarkIdentifier()
	}
}

// SetParent records the enclosing component for identifier propagation.
func (b *base) SetParent(p Component) { b.parent = p }

// Simple is a scalar property backed by a type handler value. A repeating
// simple property accumulates a cty list and converts to a slice member.
type Simple struct {
	base
	// Typ is the Go member type, nil in untyped map mode.
	Typ reflect.Type
	// Repeating marks a field occurring more than once.
	Repeating bool
}

// NewSimple creates a scalar property.
func NewSimple(name string, typ reflect.Type, repeating bool) *Simple {
	return &Simple{base: base{name: name}, Typ: typ, Repeating: repeating}
}

func (s *Simple) GoType() reflect.Type { return s.Typ }

// SetCty stores a parsed scalar. Repeating properties accumulate values in
// occurrence order.
func (s *Simple) SetCty(vals Values, v cty.Value) {
	if !s.Repeating {
		vals.Set(s.id, v)
		return
	}
	var list []cty.Value
	if prev, ok := vals.Get(s.id); ok {
		list = prev.([]cty.Value)
	}
	vals.Set(s.id, append(list, v))
}

// Cty returns the stored scalar or scalar list for formatting.
func (s *Simple) Cty(vals Values) (any, bool) {
	return vals.Get(s.id)
}

func (s *Simple) GetValue(vals Values) (reflect.Value, bool, error) {
	raw, ok := vals.Get(s.id)
	if !ok {
		return reflect.Value{}, false, nil
	}
	if s.Repeating {
		list := raw.([]cty.Value)
		if s.Typ == nil {
			out := make([]any, 0, len(list))
			for _, v := range list {
				n, err := nativeOf(v)
				if err != nil {
					return reflect.Value{}, false, err
				}
				out = append(out, n)
			}
			return reflect.ValueOf(out), true, nil
		}
		if s.Typ.Kind() != reflect.Slice && s.Typ.Kind() != reflect.Array {
			return reflect.Value{}, false, fmt.Errorf("property %q repeats but member type %s is not a sequence", s.name, s.Typ)
		}
		dst := reflect.New(s.Typ).Elem()
		slice := dst
		if s.Typ.Kind() == reflect.Slice {
			slice = reflect.MakeSlice(s.Typ, len(list), len(list))
		}
		for i, v := range list {
			if err := accessor.ToGo(v, slice.Index(i)); err != nil {
				return reflect.Value{}, false, fmt.Errorf("occurrence %d of %q: %w", i, s.name, err)
			}
		}
		if s.Typ.Kind() == reflect.Slice {
			dst.Set(slice)
		}
		return dst, true, nil
	}

	v := raw.(cty.Value)
	if v.IsNull() {
		return reflect.Value{}, false, nil
	}
	if s.Typ == nil {
		n, err := nativeOf(v)
		if err != nil {
			return reflect.Value{}, false, err
		}
		return reflect.ValueOf(n), true, nil
	}
	dst := reflect.New(s.Typ).Elem()
	if err := accessor.ToGo(v, dst); err != nil {
		return reflect.Value{}, false, fmt.Errorf("property %q: %w", s.name, err)
	}
	return dst, true, nil
}

func (s *Simple) Scatter(vals Values, v reflect.Value) error {
	if !v.IsValid() {
		vals.Clear(s.id)
		return nil
	}
	if s.Repeating {
		if v.Kind() == reflect.Interface {
			v = v.Elem()
		}
		if !v.IsValid() || v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
			vals.Clear(s.id)
			return nil
		}
		list := make([]cty.Value, v.Len())
		for i := 0; i < v.Len(); i++ {
			cv, err := accessor.FromGo(v.Index(i))
			if err != nil {
				return fmt.Errorf("occurrence %d of %q: %w", i, s.name, err)
			}
			list[i] = cv
		}
		vals.Set(s.id, list)
		return nil
	}
	cv, err := accessor.FromGo(v)
	if err != nil {
		return fmt.Errorf("property %q: %w", s.name, err)
	}
	vals.Set(s.id, cv)
	return nil
}

func (s *Simple) ClearValue(vals Values) { vals.Clear(s.id) }

func nativeOf(v cty.Value) (any, error) {
	dst := reflect.New(reflect.TypeOf((*any)(nil)).Elem()).Elem()
	if err := accessor.ToGo(v, dst); err != nil {
		return nil, err
	}
	return dst.Interface(), nil
}

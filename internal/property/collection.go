package property

import (
	"fmt"
	"reflect"

	"github.com/vk/flatbind/internal/bean"
)

// Collection aggregates repeated occurrences of its element property into
// an ordered sequence member. The driving parser calls Accumulate after
// each occurrence has populated the element's slots.
type Collection struct {
	base
	// Typ is the Go slice type, nil in untyped map mode.
	Typ  reflect.Type
	Elem Component
}

// NewCollection creates an ordered-sequence property around elem.
func NewCollection(name string, typ reflect.Type, elem Component) *Collection {
	c := &Collection{base: base{name: name}, Typ: typ, Elem: elem}
	if p, ok := elem.(interface{ SetParent(Component) }); ok {
		p.SetParent(c)
	}
	return c
}

func (c *Collection) GoType() reflect.Type {
	if c.Typ == nil {
		return reflect.TypeOf([]any(nil))
	}
	return c.Typ
}

// Accumulate materializes the element from its current slots, appends it to
// the collection's occurrence list and clears the element state for the
// next occurrence.
func (c *Collection) Accumulate(vals Values) error {
	v, ok, err := c.Elem.GetValue(vals)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var list []reflect.Value
	if prev, found := vals.Get(c.id); found {
		list = prev.([]reflect.Value)
	}
	vals.Set(c.id, append(list, v))
	c.Elem.ClearValue(vals)
	return nil
}

func (c *Collection) GetValue(vals Values) (reflect.Value, bool, error) {
	raw, ok := vals.Get(c.id)
	if !ok {
		return reflect.Value{}, false, nil
	}
	list := raw.([]reflect.Value)
	if c.Typ == nil {
		out := make([]any, 0, len(list))
		for _, v := range list {
			if v.IsValid() {
				out = append(out, v.Interface())
			} else {
				out = append(out, nil)
			}
		}
		return reflect.ValueOf(out), true, nil
	}
	appendFn, err := bean.AppenderFor(c.Typ)
	if err != nil {
		return reflect.Value{}, false, fmt.Errorf("collection %q: %w", c.name, err)
	}
	coll := reflect.MakeSlice(c.Typ, 0, len(list))
	for i, v := range list {
		coll, err = appendFn(coll, adapt(v, c.Typ.Elem()))
		if err != nil {
			return reflect.Value{}, false, fmt.Errorf("collection %q element %d: %w", c.name, i, err)
		}
	}
	return coll, true, nil
}

// Scatter splits a sequence member into per-occurrence element values. The
// driving parser calls Occurrence to stage each element before formatting.
func (c *Collection) Scatter(vals Values, v reflect.Value) error {
	if !v.IsValid() {
		c.ClearValue(vals)
		return nil
	}
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		c.ClearValue(vals)
		return nil
	}
	list := make([]reflect.Value, v.Len())
	for i := 0; i < v.Len(); i++ {
		list[i] = v.Index(i)
	}
	vals.Set(c.id, list)
	return nil
}

// Length reports the number of staged occurrences during marshalling.
func (c *Collection) Length(vals Values) int {
	if raw, ok := vals.Get(c.id); ok {
		return len(raw.([]reflect.Value))
	}
	return 0
}

// Occurrence stages occurrence i into the element's slots for formatting.
func (c *Collection) Occurrence(vals Values, i int) error {
	raw, ok := vals.Get(c.id)
	if !ok {
		return fmt.Errorf("collection %q has no staged occurrences", c.name)
	}
	list := raw.([]reflect.Value)
	if i < 0 || i >= len(list) {
		return fmt.Errorf("collection %q occurrence %d out of range", c.name, i)
	}
	return c.Elem.Scatter(vals, list[i])
}

func (c *Collection) ClearValue(vals Values) {
	vals.Clear(c.id)
	c.Elem.ClearValue(vals)
}

package property

import (
	"fmt"
	"reflect"

	"github.com/vk/flatbind/internal/bean"
)

// Map aggregates repeated occurrences of its element property into a keyed
// member. The key is extracted from a designated child of the element.
type Map struct {
	base
	// Typ is the Go map type, nil in untyped map mode.
	Typ  reflect.Type
	Elem Component
	// Key materializes the entry key from the element's current slots.
	Key Component
}

// NewMap creates a keyed-mapping property around elem with keys drawn from
// the key component.
func NewMap(name string, typ reflect.Type, elem, key Component) *Map {
	m := &Map{base: base{name: name}, Typ: typ, Elem: elem, Key: key}
	if p, ok := elem.(interface{ SetParent(Component) }); ok {
		p.SetParent(m)
	}
	return m
}

func (m *Map) GoType() reflect.Type {
	if m.Typ == nil {
		return reflect.TypeOf(map[string]any(nil))
	}
	return m.Typ
}

type mapEntry struct {
	key reflect.Value
	val reflect.Value
}

// Accumulate materializes the element and its key from the current slots
// and stages the entry.
func (m *Map) Accumulate(vals Values) error {
	key, ok, err := m.Key.GetValue(vals)
	if err != nil {
		return err
	}
	v, vok, err := m.Elem.GetValue(vals)
	if err != nil {
		return err
	}
	if !ok && !vok {
		return nil
	}
	if !ok {
		return fmt.Errorf("map %q entry is missing its key", m.name)
	}
	if !vok {
		return fmt.Errorf("map %q entry is missing its value", m.name)
	}
	var entries []mapEntry
	if prev, found := vals.Get(m.id); found {
		entries = prev.([]mapEntry)
	}
	vals.Set(m.id, append(entries, mapEntry{key: key, val: v}))
	m.Elem.ClearValue(vals)
	return nil
}

func (m *Map) GetValue(vals Values) (reflect.Value, bool, error) {
	raw, ok := vals.Get(m.id)
	if !ok {
		return reflect.Value{}, false, nil
	}
	entries := raw.([]mapEntry)
	if m.Typ == nil {
		out := make(map[string]any, len(entries))
		for _, e := range entries {
			out[fmt.Sprint(e.key.Interface())] = e.val.Interface()
		}
		return reflect.ValueOf(out), true, nil
	}
	put, err := bean.PutterFor(m.Typ)
	if err != nil {
		return reflect.Value{}, false, fmt.Errorf("map %q: %w", m.name, err)
	}
	out := reflect.MakeMapWithSize(m.Typ, len(entries))
	for _, e := range entries {
		out, err = put(out, e.key, adapt(e.val, m.Typ.Elem()))
		if err != nil {
			return reflect.Value{}, false, fmt.Errorf("map %q: %w", m.name, err)
		}
	}
	return out, true, nil
}

// Scatter stages map entries as occurrences for marshalling. Iteration
// order follows reflect's map range and is not stable; layouts that need a
// stable order should marshal sequences instead.
func (m *Map) Scatter(vals Values, v reflect.Value) error {
	if !v.IsValid() {
		m.ClearValue(vals)
		return nil
	}
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() || v.Kind() != reflect.Map {
		m.ClearValue(vals)
		return nil
	}
	var entries []mapEntry
	iter := v.MapRange()
	for iter.Next() {
		entries = append(entries, mapEntry{key: iter.Key(), val: iter.Value()})
	}
	vals.Set(m.id, entries)
	return nil
}

// Length reports the number of staged entries during marshalling.
func (m *Map) Length(vals Values) int {
	if raw, ok := vals.Get(m.id); ok {
		return len(raw.([]mapEntry))
	}
	return 0
}

// Occurrence stages entry i of the staged map into the element's slots.
func (m *Map) Occurrence(vals Values, i int) error {
	raw, ok := vals.Get(m.id)
	if !ok {
		return fmt.Errorf("map %q has no staged entries", m.name)
	}
	entries := raw.([]mapEntry)
	if i < 0 || i >= len(entries) {
		return fmt.Errorf("map %q entry %d out of range", m.name, i)
	}
	return m.Elem.Scatter(vals, entries[i].val)
}

func (m *Map) ClearValue(vals Values) {
	vals.Clear(m.id)
	m.Elem.ClearValue(vals)
}

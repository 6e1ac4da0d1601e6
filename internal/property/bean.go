package property

import (
	"fmt"
	"reflect"

	"github.com/vk/flatbind/internal/accessor"
	"github.com/vk/flatbind/internal/bean"
)

// Child binds a nested property to a member of the enclosing bean, through
// a setter accessor, a constructor argument, or both.
type Child struct {
	Prop Component
	// Acc may be nil when the member is only reachable as a constructor
	// argument.
	Acc accessor.Accessor
	// CtorArg is the 0-based constructor-argument index, -1 for none.
	CtorArg int
	// MapKey is the untyped-mode member name used when the bean has no Go
	// type and values assemble into a map.
	MapKey string
}

// Bean is a Complex property producing one aggregate. With a nil Typ the
// bean assembles into a map[string]any instead of a struct.
type Bean struct {
	base
	Typ      reflect.Type
	Children []*Child
	// Ctor is the constructor selected at compile time, nil for zero-value
	// construction.
	Ctor    *bean.Selected
	Factory *bean.Factory
}

// NewBean creates an aggregate property for typ, which may be nil for
// untyped map mode.
func NewBean(name string, typ reflect.Type, factory *bean.Factory) *Bean {
	if typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return &Bean{base: base{name: name}, Typ: typ, Factory: factory}
}

func (b *Bean) GoType() reflect.Type {
	if b.Typ == nil {
		return reflect.TypeOf(map[string]any(nil))
	}
	return reflect.PointerTo(b.Typ)
}

// AddChild appends a bound child and records this bean as its parent.
func (b *Bean) AddChild(c *Child) {
	b.Children = append(b.Children, c)
	if p, ok := c.Prop.(interface{ SetParent(Component) }); ok {
		p.SetParent(b)
	}
}

func (b *Bean) GetValue(vals Values) (reflect.Value, bool, error) {
	if b.Typ == nil {
		return b.getMapValue(vals)
	}

	// Constructor arguments are gathered before instantiation; the bean is
	// only materialized when at least one child is present.
	var args []reflect.Value
	present := false
	if b.Ctor != nil {
		args = make([]reflect.Value, len(b.Ctor.ParamArg))
	}
	childVals := make([]reflect.Value, len(b.Children))
	childOK := make([]bool, len(b.Children))
	for i, c := range b.Children {
		v, ok, err := c.Prop.GetValue(vals)
		if err != nil {
			return reflect.Value{}, false, err
		}
		childVals[i], childOK[i] = v, ok
		if ok {
			present = true
			if c.CtorArg >= 0 && c.CtorArg < len(args) {
				args[c.CtorArg] = adapt(v, b.Ctor.Ctor.Fn.Type().In(c.CtorArg))
			}
		}
	}
	if !present {
		return reflect.Value{}, false, nil
	}

	ptr, err := b.Factory.Instantiate(b.Typ, b.Ctor, args)
	if err != nil {
		return reflect.Value{}, false, err
	}
	for i, c := range b.Children {
		if !childOK[i] || c.Acc == nil || c.CtorArg >= 0 {
			continue
		}
		if err := c.Acc.Set(ptr, adapt(childVals[i], c.Acc.Type())); err != nil {
			return reflect.Value{}, false, fmt.Errorf("bean %q: %w", b.name, err)
		}
	}
	return ptr, true, nil
}

func (b *Bean) getMapValue(vals Values) (reflect.Value, bool, error) {
	out := make(map[string]any)
	present := false
	for _, c := range b.Children {
		v, ok, err := c.Prop.GetValue(vals)
		if err != nil {
			return reflect.Value{}, false, err
		}
		if !ok {
			continue
		}
		present = true
		key := c.MapKey
		if key == "" {
			key = c.Prop.Name()
		}
		if v.IsValid() {
			out[key] = v.Interface()
		} else {
			out[key] = nil
		}
	}
	if !present {
		return reflect.Value{}, false, nil
	}
	return reflect.ValueOf(out), true, nil
}

func (b *Bean) Scatter(vals Values, v reflect.Value) error {
	if !v.IsValid() {
		b.ClearValue(vals)
		return nil
	}
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if b.Typ == nil {
		return b.scatterMap(vals, v)
	}
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			b.ClearValue(vals)
			return nil
		}
		v = v.Elem()
	}
	if v.Type() != b.Typ {
		return fmt.Errorf("bean %q expects %s, got %s", b.name, b.Typ, v.Type())
	}
	ptr := v
	if ptr.CanAddr() {
		ptr = ptr.Addr()
	} else {
		ptr = reflect.New(b.Typ)
		ptr.Elem().Set(v)
	}
	for _, c := range b.Children {
		if c.Acc == nil || !c.Acc.CanRead() {
			continue
		}
		member, err := c.Acc.Get(ptr)
		if err != nil {
			return fmt.Errorf("bean %q: %w", b.name, err)
		}
		if err := c.Prop.Scatter(vals, member); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bean) scatterMap(vals Values, v reflect.Value) error {
	if v.Kind() != reflect.Map {
		return fmt.Errorf("bean %q expects a map in untyped mode, got %s", b.name, v.Type())
	}
	for _, c := range b.Children {
		key := c.MapKey
		if key == "" {
			key = c.Prop.Name()
		}
		member := v.MapIndex(reflect.ValueOf(key))
		if err := c.Prop.Scatter(vals, member); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bean) ClearValue(vals Values) {
	vals.Clear(b.id)
	for _, c := range b.Children {
		c.Prop.ClearValue(vals)
	}
}

// adapt reconciles pointerness between a built child value and the member
// type it is assigned to.
func adapt(v reflect.Value, want reflect.Type) reflect.Value {
	if !v.IsValid() || want == nil {
		return v
	}
	if v.Type().AssignableTo(want) {
		return v
	}
	if v.Kind() == reflect.Ptr && v.Type().Elem().AssignableTo(want) {
		return v.Elem()
	}
	if want.Kind() == reflect.Ptr && v.Type().AssignableTo(want.Elem()) {
		ptr := reflect.New(want.Elem())
		ptr.Elem().Set(v)
		return ptr
	}
	return v
}

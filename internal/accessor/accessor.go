// Package accessor resolves and exercises read/write capabilities for named
// members of target structs.
//
// Resolution probes, in order: explicitly configured getter/setter method
// names (accepted literally or after stripping the conventional Get/Is/Set
// prefixes), getter/setter method pairs derived from the property name,
// then struct fields under the name variants name, Capitalize(name),
// Decapitalize(name), _name and m_name. Embedded structs are walked the way
// an inheritance chain would be. Unexported members are invisible to
// reflection and are always skipped.
package accessor

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// Accessor reads and writes one member of an aggregate.
type Accessor interface {
	// Name is the logical property name the accessor was resolved for.
	Name() string
	// Type is the Go type of the member.
	Type() reflect.Type
	// Get reads the member from target, which must be an addressable struct
	// or a pointer to one.
	Get(target reflect.Value) (reflect.Value, error)
	// Set writes v into the member on target.
	Set(target reflect.Value, v reflect.Value) error
	CanRead() bool
	CanWrite() bool
}

// Config carries explicit resolution overrides from the mapping file.
type Config struct {
	// Getter and Setter name a method to use instead of probing.
	Getter string
	Setter string
	// ConstructorArg marks the member as populated through a constructor
	// argument, making a missing setter acceptable.
	ConstructorArg bool
}

// Resolve finds an accessor for name on beanType. beanType may be a struct
// or pointer-to-struct type.
func Resolve(beanType reflect.Type, name string, cfg Config) (Accessor, error) {
	ptrType := beanType
	if ptrType.Kind() != reflect.Ptr {
		ptrType = reflect.PointerTo(beanType)
	}
	structType := ptrType.Elem()
	if structType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type %s is not a struct", beanType)
	}

	getter, setter := resolveMethods(ptrType, name, cfg)

	if getter == nil || setter == nil {
		if fa := resolveField(structType, name); fa != nil {
			return fa, nil
		}
	}

	if getter != nil || setter != nil {
		return &methodAccessor{name: name, getter: getter, setter: setter}, nil
	}
	if cfg.ConstructorArg {
		// A pure constructor argument needs no accessor at all; the caller
		// falls back to a write-only no-op.
		return nil, nil
	}
	return nil, fmt.Errorf("neither property nor field found with name %q on %s", name, structType)
}

// resolveMethods locates getter and setter methods for name, honoring
// explicit overrides first. Explicit names are accepted literally or after
// stripping the conventional prefixes.
func resolveMethods(ptrType reflect.Type, name string, cfg Config) (getter, setter *reflect.Method) {
	findGetter := func(candidates ...string) *reflect.Method {
		for _, c := range candidates {
			if m, ok := ptrType.MethodByName(c); ok && m.Type.NumIn() == 1 && m.Type.NumOut() >= 1 {
				return &m
			}
		}
		return nil
	}
	findSetter := func(candidates ...string) *reflect.Method {
		for _, c := range candidates {
			if m, ok := ptrType.MethodByName(c); ok && m.Type.NumIn() == 2 {
				return &m
			}
		}
		return nil
	}

	capName := capitalize(name)
	if cfg.Getter != "" {
		getter = findGetter(cfg.Getter, "Get"+capitalize(stripPrefix(cfg.Getter)), "Is"+capitalize(stripPrefix(cfg.Getter)))
	} else {
		getter = findGetter("Get"+capName, "Is"+capName)
	}
	if cfg.Setter != "" {
		setter = findSetter(cfg.Setter, "Set"+capitalize(stripPrefix(cfg.Setter)))
	} else {
		setter = findSetter("Set" + capName)
	}

	// When only half the pair was named explicitly, derive the counterpart
	// from the half that was found.
	if getter != nil && setter == nil && cfg.Getter != "" {
		base := stripPrefix(getter.Name)
		setter = findSetter("Set" + capitalize(base))
	}
	if setter != nil && getter == nil && cfg.Setter != "" {
		base := stripPrefix(setter.Name)
		getter = findGetter("Get"+capitalize(base), "Is"+capitalize(base))
	}
	return getter, setter
}

// resolveField probes struct fields under the documented name variants,
// including fields promoted from embedded structs (the shallowest depth
// wins, as in reflect.Type.FieldByName), with a case-insensitive match as
// the last resort so acronym-styled members like ID still resolve.
func resolveField(structType reflect.Type, name string) *fieldAccessor {
	variants := []string{name, capitalize(name), decapitalize(name), "_" + name, "m_" + name}
	for _, v := range variants {
		if idx := findFieldIndex(structType, v); idx != nil {
			return &fieldAccessor{name: name, index: idx, typ: structType.FieldByIndex(idx).Type}
		}
	}
	if f, ok := structType.FieldByNameFunc(func(n string) bool {
		return strings.EqualFold(n, name)
	}); ok && f.IsExported() {
		return &fieldAccessor{name: name, index: f.Index, typ: f.Type}
	}
	return nil
}

func findFieldIndex(structType reflect.Type, name string) []int {
	if f, ok := structType.FieldByName(name); ok && f.IsExported() {
		return f.Index
	}
	return nil
}

func stripPrefix(name string) string {
	for _, p := range []string{"get", "Get", "is", "Is", "set", "Set"} {
		if len(name) > len(p) && name[:len(p)] == p && unicode.IsUpper(rune(name[len(p)])) {
			return name[len(p):]
		}
	}
	return name
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func decapitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// fieldAccessor reads and writes a struct field located by its index path.
type fieldAccessor struct {
	name  string
	index []int
	typ   reflect.Type
}

func (a *fieldAccessor) Name() string       { return a.name }
func (a *fieldAccessor) Type() reflect.Type { return a.typ }
func (a *fieldAccessor) CanRead() bool      { return true }
func (a *fieldAccessor) CanWrite() bool     { return true }

func (a *fieldAccessor) Get(target reflect.Value) (reflect.Value, error) {
	sv, err := structValue(target)
	if err != nil {
		return reflect.Value{}, err
	}
	return sv.FieldByIndex(a.index), nil
}

func (a *fieldAccessor) Set(target reflect.Value, v reflect.Value) error {
	sv, err := structValue(target)
	if err != nil {
		return err
	}
	field := sv.FieldByIndex(a.index)
	if !field.CanSet() {
		return fmt.Errorf("field %q on %s is not settable", a.name, sv.Type())
	}
	if !v.IsValid() {
		field.Set(reflect.Zero(a.typ))
		return nil
	}
	if !v.Type().AssignableTo(a.typ) {
		if v.Type().ConvertibleTo(a.typ) {
			v = v.Convert(a.typ)
		} else {
			return fmt.Errorf("cannot assign %s to field %q of type %s", v.Type(), a.name, a.typ)
		}
	}
	field.Set(v)
	return nil
}

// methodAccessor reads and writes through a getter/setter method pair. One
// half may be missing, yielding a read-only or write-only member.
type methodAccessor struct {
	name   string
	getter *reflect.Method
	setter *reflect.Method
}

func (a *methodAccessor) Name() string { return a.name }

func (a *methodAccessor) Type() reflect.Type {
	if a.setter != nil {
		return a.setter.Type.In(1)
	}
	return a.getter.Type.Out(0)
}

func (a *methodAccessor) CanRead() bool  { return a.getter != nil }
func (a *methodAccessor) CanWrite() bool { return a.setter != nil }

func (a *methodAccessor) Get(target reflect.Value) (reflect.Value, error) {
	if a.getter == nil {
		return reflect.Value{}, fmt.Errorf("property %q is write-only", a.name)
	}
	out := ptrValue(target).Method(a.getter.Index).Call(nil)
	return out[0], nil
}

func (a *methodAccessor) Set(target reflect.Value, v reflect.Value) error {
	if a.setter == nil {
		return fmt.Errorf("property %q is read-only", a.name)
	}
	in := a.setter.Type.In(1)
	if !v.IsValid() {
		v = reflect.Zero(in)
	} else if !v.Type().AssignableTo(in) {
		if !v.Type().ConvertibleTo(in) {
			return fmt.Errorf("cannot assign %s to property %q of type %s", v.Type(), a.name, in)
		}
		v = v.Convert(in)
	}
	ptrValue(target).Method(a.setter.Index).Call([]reflect.Value{v})
	return nil
}

func structValue(target reflect.Value) (reflect.Value, error) {
	if target.Kind() == reflect.Ptr {
		if target.IsNil() {
			return reflect.Value{}, fmt.Errorf("target is a nil pointer")
		}
		target = target.Elem()
	}
	if target.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("target %s is not a struct", target.Type())
	}
	return target, nil
}

func ptrValue(target reflect.Value) reflect.Value {
	if target.Kind() == reflect.Ptr {
		return target
	}
	if target.CanAddr() {
		return target.Addr()
	}
	ptr := reflect.New(target.Type())
	ptr.Elem().Set(target)
	return ptr
}

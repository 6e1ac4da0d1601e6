package accessor

import (
	"fmt"
	"reflect"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/flatbind/internal/typehandler"
)

var timeGoType = reflect.TypeOf(time.Time{})

// ToGo populates the addressable Go value dst from a property value,
// recursing through slices and maps and unwrapping time capsules.
func ToGo(v cty.Value, dst reflect.Value) error {
	if !dst.CanSet() {
		return fmt.Errorf("destination of type %s is not settable", dst.Type())
	}
	goType := dst.Type()

	if goType == reflect.TypeOf(cty.Value{}) {
		dst.Set(reflect.ValueOf(v))
		return nil
	}
	if v.IsNull() || !v.IsKnown() {
		dst.Set(reflect.Zero(goType))
		return nil
	}

	if goType.Kind() == reflect.Ptr {
		elem := reflect.New(goType.Elem())
		if err := ToGo(v, elem.Elem()); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	if goType == timeGoType {
		if v.Type() != typehandler.TimeType {
			return fmt.Errorf("cannot decode %s into time.Time", v.Type().FriendlyName())
		}
		dst.Set(reflect.ValueOf(typehandler.TimeFromVal(v)))
		return nil
	}

	switch goType.Kind() {
	case reflect.Interface:
		native, err := toNative(v)
		if err != nil {
			return err
		}
		if native != nil {
			dst.Set(reflect.ValueOf(native))
		}
		return nil

	case reflect.Slice, reflect.Array:
		if !v.CanIterateElements() {
			return fmt.Errorf("cannot decode %s into %s", v.Type().FriendlyName(), goType)
		}
		n := v.LengthInt()
		slice := dst
		if goType.Kind() == reflect.Slice {
			slice = reflect.MakeSlice(goType, n, n)
		} else if goType.Len() < n {
			return fmt.Errorf("array %s too short for %d elements", goType, n)
		}
		it := v.ElementIterator()
		for i := 0; it.Next(); i++ {
			_, ev := it.Element()
			if err := ToGo(ev, slice.Index(i)); err != nil {
				return fmt.Errorf("in element %d: %w", i, err)
			}
		}
		if goType.Kind() == reflect.Slice {
			dst.Set(slice)
		}
		return nil

	case reflect.Map:
		if !v.CanIterateElements() {
			return fmt.Errorf("cannot decode %s into %s", v.Type().FriendlyName(), goType)
		}
		m := reflect.MakeMapWithSize(goType, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			kv, ev := it.Element()
			key := reflect.New(goType.Key()).Elem()
			if err := ToGo(kv, key); err != nil {
				return fmt.Errorf("in map key: %w", err)
			}
			val := reflect.New(goType.Elem()).Elem()
			if err := ToGo(ev, val); err != nil {
				return fmt.Errorf("in map value for key %v: %w", key, err)
			}
			m.SetMapIndex(key, val)
		}
		dst.Set(m)
		return nil

	default:
		wantType, err := gocty.ImpliedType(reflect.Zero(goType).Interface())
		if err != nil {
			return fmt.Errorf("cannot imply cty type for %s: %w", goType, err)
		}
		converted, err := convert.Convert(v, wantType)
		if err != nil {
			return fmt.Errorf("cannot convert %s to %s: %w", v.Type().FriendlyName(), goType, err)
		}
		return gocty.FromCtyValue(converted, dst.Addr().Interface())
	}
}

// FromGo converts a Go member value into a property value, wrapping
// time.Time in a capsule and recursing through pointers, slices and maps.
func FromGo(val reflect.Value) (cty.Value, error) {
	if !val.IsValid() {
		return cty.NilVal, fmt.Errorf("invalid source value")
	}
	if val.Type() == reflect.TypeOf(cty.Value{}) {
		return val.Interface().(cty.Value), nil
	}
	if val.Kind() == reflect.Interface && !val.IsNil() {
		val = val.Elem()
	}
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}
		return FromGo(val.Elem())
	}
	if val.Type() == timeGoType {
		return typehandler.TimeVal(val.Interface().(time.Time)), nil
	}

	switch val.Kind() {
	case reflect.Slice, reflect.Array:
		if val.Kind() == reflect.Slice && val.IsNil() {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}
		n := val.Len()
		if n == 0 {
			return cty.ListValEmpty(cty.DynamicPseudoType), nil
		}
		vals := make([]cty.Value, n)
		for i := 0; i < n; i++ {
			ev, err := FromGo(val.Index(i))
			if err != nil {
				return cty.NilVal, fmt.Errorf("in element %d: %w", i, err)
			}
			vals[i] = ev
		}
		return cty.TupleVal(vals), nil

	case reflect.Map:
		if val.IsNil() {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}
		attrs := make(map[string]cty.Value, val.Len())
		iter := val.MapRange()
		for iter.Next() {
			k := iter.Key()
			if k.Kind() != reflect.String {
				return cty.NilVal, fmt.Errorf("unsupported map key type %s", k.Type())
			}
			ev, err := FromGo(iter.Value())
			if err != nil {
				return cty.NilVal, fmt.Errorf("in map value for key %q: %w", k.String(), err)
			}
			attrs[k.String()] = ev
		}
		if len(attrs) == 0 {
			return cty.MapValEmpty(cty.DynamicPseudoType), nil
		}
		return cty.ObjectVal(attrs), nil

	default:
		ctyType, err := gocty.ImpliedType(val.Interface())
		if err != nil {
			return cty.NilVal, fmt.Errorf("cannot imply cty type for %s: %w", val.Type(), err)
		}
		return gocty.ToCtyValue(val.Interface(), ctyType)
	}
}

// toNative lowers a cty value to plain Go for any-typed destinations.
func toNative(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if v.Type() == typehandler.TimeType {
		return typehandler.TimeFromVal(v), nil
	}
	switch {
	case v.Type() == cty.String:
		return v.AsString(), nil
	case v.Type() == cty.Bool:
		return v.True(), nil
	case v.Type() == cty.Number:
		bf := v.AsBigFloat()
		if n, acc := bf.Int64(); acc == 0 {
			return n, nil
		}
		f, _ := bf.Float64()
		return f, nil
	case v.CanIterateElements() && (v.Type().IsListType() || v.Type().IsTupleType() || v.Type().IsSetType()):
		var out []any
		it := v.ElementIterator()
		for it.Next() {
			_, ev := it.Element()
			n, err := toNative(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case v.CanIterateElements():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			kv, ev := it.Element()
			n, err := toNative(ev)
			if err != nil {
				return nil, err
			}
			out[kv.AsString()] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot lower %s to a native value", v.Type().FriendlyName())
}

package bean

import (
	"fmt"
	"reflect"
	"sync"
)

// AppendFunc grows a collection value by one element and returns the
// resulting collection.
type AppendFunc func(coll, elem reflect.Value) (reflect.Value, error)

// appendCache memoizes the append strategy per collection type. Lookups are
// lock-free and insertion is idempotent under races.
var appendCache sync.Map // reflect.Type -> AppendFunc

// AppenderFor resolves the append strategy for a collection type. Only
// slices are appendable; maps go through PutterFor.
func AppenderFor(t reflect.Type) (AppendFunc, error) {
	if fn, ok := appendCache.Load(t); ok {
		return fn.(AppendFunc), nil
	}
	var fn AppendFunc
	switch t.Kind() {
	case reflect.Slice:
		elemType := t.Elem()
		fn = func(coll, elem reflect.Value) (reflect.Value, error) {
			if !coll.IsValid() {
				coll = reflect.MakeSlice(t, 0, 4)
			}
			if !elem.IsValid() {
				elem = reflect.Zero(elemType)
			}
			if !elem.Type().AssignableTo(elemType) {
				if !elem.Type().ConvertibleTo(elemType) {
					return reflect.Value{}, fmt.Errorf("cannot append %s to %s", elem.Type(), t)
				}
				elem = elem.Convert(elemType)
			}
			return reflect.Append(coll, elem), nil
		}
	default:
		return nil, fmt.Errorf("type %s is not an appendable collection", t)
	}
	actual, _ := appendCache.LoadOrStore(t, fn)
	return actual.(AppendFunc), nil
}

// PutFunc inserts a keyed entry into a map value and returns the map.
type PutFunc func(m, key, val reflect.Value) (reflect.Value, error)

var putCache sync.Map // reflect.Type -> PutFunc

// PutterFor resolves the insert strategy for a map type.
func PutterFor(t reflect.Type) (PutFunc, error) {
	if fn, ok := putCache.Load(t); ok {
		return fn.(PutFunc), nil
	}
	if t.Kind() != reflect.Map {
		return nil, fmt.Errorf("type %s is not a map", t)
	}
	keyType, elemType := t.Key(), t.Elem()
	fn := PutFunc(func(m, key, val reflect.Value) (reflect.Value, error) {
		if !m.IsValid() || m.IsNil() {
			m = reflect.MakeMap(t)
		}
		if !key.Type().AssignableTo(keyType) {
			if !key.Type().ConvertibleTo(keyType) {
				return reflect.Value{}, fmt.Errorf("cannot use %s as key of %s", key.Type(), t)
			}
			key = key.Convert(keyType)
		}
		if !val.IsValid() {
			val = reflect.Zero(elemType)
		} else if !val.Type().AssignableTo(elemType) {
			if !val.Type().ConvertibleTo(elemType) {
				return reflect.Value{}, fmt.Errorf("cannot insert %s into %s", val.Type(), t)
			}
			val = val.Convert(elemType)
		}
		m.SetMapIndex(key, val)
		return m, nil
	})
	actual, _ := putCache.LoadOrStore(t, fn)
	return actual.(PutFunc), nil
}

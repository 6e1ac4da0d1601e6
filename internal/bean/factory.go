// Package bean instantiates target aggregates. Constructors are factory
// functions registered per produced type; when a record's constructor-bound
// values are gathered, the best-scoring candidate is selected and invoked,
// falling back to zero-value construction plus setters.
package bean

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Constructor is one registered factory candidate for a bean type.
type Constructor struct {
	// Fn is a func whose first return value is the produced bean (or a
	// pointer to it). A trailing error return is allowed.
	Fn reflect.Value
	// Internal marks a candidate only eligible when the factory allows
	// internal constructors.
	Internal bool
	order    int
}

// NumParams reports the constructor's arity.
func (c *Constructor) NumParams() int { return c.Fn.Type().NumIn() }

// Selected is the outcome of constructor selection: a candidate plus the
// mapping from parameter position to gathered argument position, -1 for
// parameters left at their neutral default.
type Selected struct {
	Ctor     *Constructor
	ParamArg []int
	Score    int
}

// Factory selects constructors and instantiates beans.
type Factory struct {
	mu    sync.RWMutex
	ctors map[reflect.Type][]*Constructor
	next  int

	// AllowInternal permits candidates registered as internal, the analogue
	// of protected constructor access.
	AllowInternal bool
}

// NewFactory creates an empty bean factory.
func NewFactory() *Factory {
	return &Factory{ctors: make(map[reflect.Type][]*Constructor)}
}

// RegisterConstructor adds a factory func candidate. The produced type is
// taken from fn's first return value, with pointers stripped. Registering a
// non-func or a func without returns is a programmer error.
func (f *Factory) RegisterConstructor(fn any, internal bool) {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func || t.NumOut() == 0 {
		panic(fmt.Sprintf("constructor must be a func with at least one return value, got %T", fn))
	}
	produced := t.Out(0)
	if produced.Kind() == reflect.Ptr {
		produced = produced.Elem()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	slog.Debug("Registering bean constructor.", "type", produced.String(), "arity", t.NumIn())
	f.ctors[produced] = append(f.ctors[produced], &Constructor{Fn: v, Internal: internal, order: f.next})
}

// Select ranks the registered candidates for beanType against the gathered
// argument types. Each parameter is matched to at most one unused argument
// whose type is assignable to it: +1 per match, -1 per unmatched reference
// parameter, -2 per unmatched pointer-to-value parameter, -100 per
// unmatched value parameter. The highest score above zero wins; ties fall
// to registration order. A nil Selected means default construction.
func (f *Factory) Select(beanType reflect.Type, argTypes []reflect.Type) *Selected {
	if beanType.Kind() == reflect.Ptr {
		beanType = beanType.Elem()
	}
	f.mu.RLock()
	candidates := f.ctors[beanType]
	f.mu.RUnlock()

	var best *Selected
	for _, c := range candidates {
		if c.Internal && !f.AllowInternal {
			continue
		}
		sel := score(c, argTypes)
		if sel.Score <= 0 {
			continue
		}
		if best == nil || sel.Score > best.Score {
			best = sel
		}
	}
	return best
}

// SelectExact finds the best candidate of arity len(argTypes) whose
// parameters are positionally assignable from the argument types. Used at
// compile time when constructor-argument positions are declared.
func (f *Factory) SelectExact(beanType reflect.Type, argTypes []reflect.Type) (*Selected, error) {
	if beanType.Kind() == reflect.Ptr {
		beanType = beanType.Elem()
	}
	f.mu.RLock()
	candidates := f.ctors[beanType]
	f.mu.RUnlock()

	for _, c := range candidates {
		if c.Internal && !f.AllowInternal {
			continue
		}
		if c.NumParams() != len(argTypes) {
			continue
		}
		ok := true
		mapping := make([]int, len(argTypes))
		for i := range argTypes {
			if argTypes[i] != nil && !assignable(argTypes[i], c.Fn.Type().In(i)) {
				ok = false
				break
			}
			mapping[i] = i
		}
		if ok {
			return &Selected{Ctor: c, ParamArg: mapping, Score: len(argTypes)}, nil
		}
	}
	return nil, fmt.Errorf("no constructor of arity %d found for %s", len(argTypes), beanType)
}

func score(c *Constructor, argTypes []reflect.Type) *Selected {
	t := c.Fn.Type()
	used := make([]bool, len(argTypes))
	sel := &Selected{Ctor: c, ParamArg: make([]int, t.NumIn())}
	for i := 0; i < t.NumIn(); i++ {
		param := t.In(i)
		sel.ParamArg[i] = -1
		for j, at := range argTypes {
			if used[j] || at == nil {
				continue
			}
			if assignable(at, param) {
				used[j] = true
				sel.ParamArg[i] = j
				sel.Score++
				break
			}
		}
		if sel.ParamArg[i] == -1 {
			sel.Score += unmatchedPenalty(param)
		}
	}
	return sel
}

// assignable reports whether a value of type from can be passed as a
// parameter of type to: Go assignability, including interface
// satisfaction. Numeric conversion is not considered.
func assignable(from, to reflect.Type) bool {
	if from.AssignableTo(to) {
		return true
	}
	if to.Kind() == reflect.Interface && from.Implements(to) {
		return true
	}
	return false
}

// unmatchedPenalty grades a parameter left without an argument: reference
// shapes tolerate a nil default, pointers to plain values less so, and bare
// value parameters effectively disqualify the candidate.
func unmatchedPenalty(param reflect.Type) int {
	switch param.Kind() {
	case reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		return -1
	case reflect.Ptr:
		if param.Elem().Kind() == reflect.Struct {
			return -1
		}
		return -2
	default:
		return -100
	}
}

// Instantiate builds a bean. With a selection, the constructor is invoked
// with gathered arguments placed by the recorded mapping and neutral zero
// values elsewhere; without one, a zero value of beanType is allocated.
// The result is always a pointer to the bean.
func (f *Factory) Instantiate(beanType reflect.Type, sel *Selected, args []reflect.Value) (reflect.Value, error) {
	if beanType.Kind() == reflect.Ptr {
		beanType = beanType.Elem()
	}
	if sel == nil {
		return reflect.New(beanType), nil
	}
	t := sel.Ctor.Fn.Type()
	in := make([]reflect.Value, t.NumIn())
	for i := range in {
		param := t.In(i)
		if j := sel.ParamArg[i]; j >= 0 && j < len(args) && args[j].IsValid() {
			arg := args[j]
			if !arg.Type().AssignableTo(param) {
				if arg.Type().ConvertibleTo(param) {
					arg = arg.Convert(param)
				} else {
					return reflect.Value{}, fmt.Errorf("argument %d of type %s not assignable to %s", j, arg.Type(), param)
				}
			}
			in[i] = arg
		} else {
			in[i] = reflect.Zero(param)
		}
	}
	out := sel.Ctor.Fn.Call(in)
	if len(out) > 1 {
		if err, ok := out[len(out)-1].Interface().(error); ok && err != nil {
			return reflect.Value{}, fmt.Errorf("constructor for %s failed: %w", beanType, err)
		}
	}
	result := out[0]
	if result.Kind() != reflect.Ptr {
		ptr := reflect.New(result.Type())
		ptr.Elem().Set(result)
		result = ptr
	}
	return result, nil
}

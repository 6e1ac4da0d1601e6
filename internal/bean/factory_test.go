package bean

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID    int
	Label string
}

func newWidgetFromInt(id int) widget       { return widget{ID: id} }
func newWidgetFromString(s string) widget  { return widget{Label: s} }
func newWidgetBoth(id int, s string) *widget {
	return &widget{ID: id, Label: s}
}

func TestSelectPrefersAssignableCandidate(t *testing.T) {
	f := NewFactory()
	f.RegisterConstructor(newWidgetFromInt, false)
	f.RegisterConstructor(newWidgetFromString, false)

	// A single string argument scores +1 for the string candidate and -100
	// for the unmatched int parameter of the other.
	sel := f.Select(reflect.TypeOf(widget{}), []reflect.Type{reflect.TypeOf("")})
	require.NotNil(t, sel)
	assert.Equal(t, 1, sel.Score)
	assert.Equal(t, reflect.TypeOf(""), sel.Ctor.Fn.Type().In(0))
}

func TestSelectFallsBackToDefaultConstruction(t *testing.T) {
	f := NewFactory()
	f.RegisterConstructor(newWidgetFromInt, false)

	// No argument matches the int parameter: score -100, no selection.
	sel := f.Select(reflect.TypeOf(widget{}), []reflect.Type{reflect.TypeOf("")})
	assert.Nil(t, sel)

	v, err := f.Instantiate(reflect.TypeOf(widget{}), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, widget{}, v.Elem().Interface())
}

func TestSelectExact(t *testing.T) {
	f := NewFactory()
	f.RegisterConstructor(newWidgetFromInt, false)
	f.RegisterConstructor(newWidgetBoth, false)

	sel, err := f.SelectExact(reflect.TypeOf(widget{}), []reflect.Type{reflect.TypeOf(0), reflect.TypeOf("")})
	require.NoError(t, err)
	assert.Equal(t, 2, sel.Ctor.NumParams())

	_, err = f.SelectExact(reflect.TypeOf(widget{}), []reflect.Type{reflect.TypeOf(""), reflect.TypeOf("")})
	assert.ErrorContains(t, err, "no constructor")
}

func TestInstantiateThroughConstructor(t *testing.T) {
	f := NewFactory()
	f.RegisterConstructor(newWidgetBoth, false)
	sel, err := f.SelectExact(reflect.TypeOf(widget{}), []reflect.Type{reflect.TypeOf(0), reflect.TypeOf("")})
	require.NoError(t, err)

	v, err := f.Instantiate(reflect.TypeOf(widget{}), sel, []reflect.Value{
		reflect.ValueOf(7), reflect.ValueOf("seven"),
	})
	require.NoError(t, err)
	assert.Equal(t, widget{ID: 7, Label: "seven"}, v.Elem().Interface())
}

func TestInternalConstructorsAreGated(t *testing.T) {
	f := NewFactory()
	f.RegisterConstructor(newWidgetFromString, true)

	sel := f.Select(reflect.TypeOf(widget{}), []reflect.Type{reflect.TypeOf("")})
	assert.Nil(t, sel)

	f.AllowInternal = true
	sel = f.Select(reflect.TypeOf(widget{}), []reflect.Type{reflect.TypeOf("")})
	assert.NotNil(t, sel)
}

func TestUnmatchedPenalties(t *testing.T) {
	assert.Equal(t, -1, unmatchedPenalty(reflect.TypeOf([]string(nil))))
	assert.Equal(t, -1, unmatchedPenalty(reflect.TypeOf((*widget)(nil))))
	assert.Equal(t, -2, unmatchedPenalty(reflect.TypeOf((*int)(nil))))
	assert.Equal(t, -100, unmatchedPenalty(reflect.TypeOf(0)))
	assert.Equal(t, -100, unmatchedPenalty(reflect.TypeOf(widget{})))
}

func TestAppenderFor(t *testing.T) {
	fn, err := AppenderFor(reflect.TypeOf([]int(nil)))
	require.NoError(t, err)

	coll := reflect.MakeSlice(reflect.TypeOf([]int(nil)), 0, 0)
	coll, err = fn(coll, reflect.ValueOf(1))
	require.NoError(t, err)
	coll, err = fn(coll, reflect.ValueOf(2))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, coll.Interface())

	_, err = AppenderFor(reflect.TypeOf(map[string]int(nil)))
	assert.ErrorContains(t, err, "not an appendable collection")

	// The cache hands back the same strategy on repeat lookups.
	again, err := AppenderFor(reflect.TypeOf([]int(nil)))
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestPutterFor(t *testing.T) {
	fn, err := PutterFor(reflect.TypeOf(map[string]int(nil)))
	require.NoError(t, err)

	var m reflect.Value
	m, err = fn(reflect.Zero(reflect.TypeOf(map[string]int(nil))), reflect.ValueOf("a"), reflect.ValueOf(1))
	require.NoError(t, err)
	m, err = fn(m, reflect.ValueOf("b"), reflect.ValueOf(2))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, m.Interface())
}

func TestTypeRegistry(t *testing.T) {
	r := NewTypeRegistry()
	r.Register("widget", (*widget)(nil))

	typ, err := r.Lookup("widget")
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(widget{}), typ)

	_, err = r.Lookup("gadget")
	assert.ErrorContains(t, err, "not registered")

	assert.Panics(t, func() { r.Register("widget", (*widget)(nil)) })
}

package typehandler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flatbind/internal/beanerr"
)

func TestRegistryResolutionOrder(t *testing.T) {
	r := NewRegistry()
	generic := func() Handler { return &StringHandler{} }
	r.Register("string", "", "", generic)
	r.Register("string", "delimited", "", func() Handler { return &StringHandler{Trim: true} })
	r.Register("string", "delimited", "special", func() Handler { return &EscapeStringHandler{} })

	t.Run("exact type format name wins", func(t *testing.T) {
		h, err := r.Lookup("string", "delimited", "special", nil)
		require.NoError(t, err)
		assert.IsType(t, &EscapeStringHandler{}, h)
	})

	t.Run("type and format fall back past an unknown name", func(t *testing.T) {
		h, err := r.Lookup("string", "delimited", "unknown", nil)
		require.NoError(t, err)
		sh, ok := h.(*StringHandler)
		require.True(t, ok)
		assert.True(t, sh.Trim)
	})

	t.Run("bare type is the last resort", func(t *testing.T) {
		h, err := r.Lookup("string", "fixedlength", "", nil)
		require.NoError(t, err)
		sh, ok := h.(*StringHandler)
		require.True(t, ok)
		assert.False(t, sh.Trim)
	})

	t.Run("unknown type fails", func(t *testing.T) {
		_, err := r.Lookup("widget", "delimited", "", nil)
		assert.ErrorContains(t, err, "no type handler")
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		assert.Panics(t, func() { r.Register("string", "", "", generic) })
	})
}

func TestRegistryHandsOutFreshInstances(t *testing.T) {
	r := NewDefaultRegistry()
	h1, err := r.Lookup("string", "delimited", "", map[string]string{"trim": "true"})
	require.NoError(t, err)
	h2, err := r.Lookup("string", "delimited", "", nil)
	require.NoError(t, err)
	assert.True(t, h1.(*StringHandler).Trim)
	assert.False(t, h2.(*StringHandler).Trim)
}

func TestIntHandler(t *testing.T) {
	h := &IntHandler{}
	v, err := h.Parse("42")
	require.NoError(t, err)
	assert.Equal(t, cty.NumberIntVal(42), v)

	text, ok, err := h.Format(v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", text)

	v, err = h.Parse("")
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = h.Parse("four")
	assert.ErrorContains(t, err, "invalid integer")
}

func TestEscapeStringHandler(t *testing.T) {
	t.Run("null escaping on", func(t *testing.T) {
		h := &EscapeStringHandler{AllowNull: true}
		v, err := h.Parse(`a\\b\nc\0d`)
		require.NoError(t, err)
		assert.Equal(t, "a\\b\nc\x00d", v.AsString())
	})

	t.Run("null escaping off decodes backslash zero to zero", func(t *testing.T) {
		h := &EscapeStringHandler{}
		v, err := h.Parse(`\0`)
		require.NoError(t, err)
		assert.Equal(t, "0", v.AsString())
	})

	t.Run("unknown escapes decode to the escaped character", func(t *testing.T) {
		h := &EscapeStringHandler{}
		v, err := h.Parse(`\x\t`)
		require.NoError(t, err)
		assert.Equal(t, "x\t", v.AsString())
	})

	t.Run("formatting is one-way", func(t *testing.T) {
		h := &EscapeStringHandler{}
		_, _, err := h.Format(cty.StringVal("a"))
		assert.ErrorIs(t, err, beanerr.ErrNotSupported)
	})

	t.Run("single character enforcement", func(t *testing.T) {
		h := &EscapeStringHandler{Single: true}
		_, err := h.Parse("ab")
		assert.ErrorContains(t, err, "single character")
		v, err := h.Parse(`\n`)
		require.NoError(t, err)
		assert.Equal(t, "\n", v.AsString())
	})
}

func TestXMLTimeHandler(t *testing.T) {
	t.Run("time with zone keeps the offset and epoch date", func(t *testing.T) {
		h := NewXMLTimeHandler()
		v, err := h.Parse("13:20:00-05:00")
		require.NoError(t, err)
		tm := TimeFromVal(v)
		assert.Equal(t, 1970, tm.Year())
		assert.Equal(t, time.January, tm.Month())
		assert.Equal(t, 1, tm.Day())
		assert.Equal(t, 13, tm.Hour())
		assert.Equal(t, 20, tm.Minute())
		_, offset := tm.Zone()
		assert.Equal(t, -5*3600, offset)
	})

	t.Run("zone rejected when disallowed", func(t *testing.T) {
		h := NewXMLTimeHandler()
		h.TimeZoneAllowed = false
		_, err := h.Parse("13:20:00-05:00")
		assert.ErrorContains(t, err, "time zone")
		_, err = h.Parse("13:20:00")
		assert.NoError(t, err)
	})

	t.Run("lenient fallback accepts partial forms", func(t *testing.T) {
		h := NewXMLTimeHandler()
		_, err := h.Parse("13:20")
		require.Error(t, err)

		h.Lenient = true
		v, err := h.Parse("13:20")
		require.NoError(t, err)
		assert.Equal(t, 13, TimeFromVal(v).Hour())
	})

	t.Run("strict dateTime", func(t *testing.T) {
		h := NewXMLDateTimeHandler()
		v, err := h.Parse("2011-01-01T13:45:00+01:00")
		require.NoError(t, err)
		tm := TimeFromVal(v)
		assert.Equal(t, 2011, tm.Year())
		_, offset := tm.Zone()
		assert.Equal(t, 3600, offset)
	})
}

func TestBooleanIntegerHandler(t *testing.T) {
	h := NewBooleanIntegerHandler()
	require.NoError(t, h.Configure(map[string]string{"trueValue": "7", "falseValue": "3", "nullValue": "-"}))

	v, err := h.Parse("7")
	require.NoError(t, err)
	assert.True(t, v.True())

	v, err = h.Parse("3")
	require.NoError(t, err)
	assert.False(t, v.True())

	_, err = h.Parse("5")
	assert.ErrorContains(t, err, "matches neither")

	text, ok, err := h.Format(cty.True)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7", text)

	text, ok, err = h.Format(cty.NullVal(cty.Bool))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "-", text)
}

func TestBooleanIntegerHandlerCulture(t *testing.T) {
	h := NewBooleanIntegerHandler()
	require.NoError(t, h.Configure(map[string]string{"trueValue": "1", "culture": "en-US"}))
	text, ok, err := h.Format(cty.True)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", text)

	require.Error(t, h.Configure(map[string]string{"culture": "no such culture"}))
}

func TestSequenceHandler(t *testing.T) {
	h := NewSequenceHandler(&StringHandler{}, "delimited")

	t.Run("split honors the escape", func(t *testing.T) {
		v, err := h.Parse(`a|b\|c|d\\e`)
		require.NoError(t, err)
		var got []string
		it := v.ElementIterator()
		for it.Next() {
			_, ev := it.Element()
			got = append(got, ev.AsString())
		}
		assert.Equal(t, []string{"a", "b|c", `d\e`}, got)
	})

	t.Run("join escapes the delimiter and the escape", func(t *testing.T) {
		v := cty.ListVal([]cty.Value{cty.StringVal("a|b"), cty.StringVal(`c\d`)})
		text, ok, err := h.Format(v)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `a\|b|c\\d`, text)
	})

	t.Run("round trip", func(t *testing.T) {
		orig := cty.ListVal([]cty.Value{cty.StringVal("x|y"), cty.StringVal("z")})
		text, _, err := h.Format(orig)
		require.NoError(t, err)
		back, err := h.Parse(text)
		require.NoError(t, err)
		assert.True(t, orig.RawEquals(back))
	})
}

func TestTimeHandler(t *testing.T) {
	h := &TimeHandler{Pattern: "2006-01-02"}
	v, err := h.Parse("2024-06-30")
	require.NoError(t, err)
	tm := TimeFromVal(v)
	assert.Equal(t, 2024, tm.Year())

	text, ok, err := h.Format(v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-06-30", text)

	require.NoError(t, h.Configure(map[string]string{"pattern": "02/01/2006"}))
	text, _, err = h.Format(v)
	require.NoError(t, err)
	assert.Equal(t, "30/06/2024", text)
}

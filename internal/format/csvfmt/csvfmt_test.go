package csvfmt

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/flatbind/internal/format"
)

func TestReaderHandlesQuoting(t *testing.T) {
	f := NewFactory(Options{})
	r, err := f.CreateReader(strings.NewReader("a,\"b,c\",d\ne,f,g\n"))
	require.NoError(t, err)

	rec, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b,c", "d"}, rec.Fields)
	assert.Equal(t, 1, rec.LineNumber)

	rec, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "f", "g"}, rec.Fields)

	_, err = r.Read()
	assert.Equal(t, io.EOF, err)
}

func TestWriterQuotesWhenNeeded(t *testing.T) {
	f := NewFactory(Options{})
	var sb strings.Builder
	w, err := f.CreateWriter(&sb)
	require.NoError(t, err)

	require.NoError(t, w.Write(&format.Record{Fields: []string{"a", "b,c"}}))
	require.NoError(t, w.Flush())
	assert.Equal(t, "a,\"b,c\"\n", sb.String())
}

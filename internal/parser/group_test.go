package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/flatbind/internal/beanerr"
	"github.com/vk/flatbind/internal/format"
)

// identifiedRecord builds a record definition dispatching on a literal in
// the first position.
func identifiedRecord(name, literal string, min, max int) *Record {
	f := NewField("type")
	f.Position = 1
	f.Literal = literal
	f.SetIdentifier()

	r := NewRecord(name)
	r.MinOccurs = min
	r.MaxOccurs = max
	r.AddIdentifier(f)
	return r
}

func matchCtx(fields ...string) *UnmarshallingContext {
	ctx := NewUnmarshallingContext(context.Background(), true)
	ctx.Reset(&format.Record{LineNumber: 1, Fields: fields})
	return ctx
}

func TestGroupSequential(t *testing.T) {
	t.Run("in-order records accepted", func(t *testing.T) {
		g := NewGroup("root", true)
		r1 := identifiedRecord("R1", "R1", 1, 1)
		r2 := identifiedRecord("R2", "R2", 1, 1)
		g.Children = []Node{r1, r2}
		state := NewGroupState()

		rec, err := g.Match(state, matchCtx("R1", "x"))
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "R1", rec.Name())

		rec, err = g.Match(state, matchCtx("R2", "y"))
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "R2", rec.Name())

		assert.NoError(t, g.Close(state, 3))
	})

	t.Run("out-of-order record raises an occurrence error", func(t *testing.T) {
		g := NewGroup("root", true)
		g.Children = []Node{
			identifiedRecord("R1", "R1", 1, 1),
			identifiedRecord("R2", "R2", 1, 1),
		}
		state := NewGroupState()

		_, err := g.Match(state, matchCtx("R2", "y"))
		var oerr *beanerr.OccurrenceError
		require.ErrorAs(t, err, &oerr)
		assert.Equal(t, "R1", oerr.RecordName)
	})

	t.Run("missing minimum detected at close", func(t *testing.T) {
		g := NewGroup("root", true)
		g.Children = []Node{
			identifiedRecord("R1", "R1", 1, 1),
			identifiedRecord("R2", "R2", 1, 1),
		}
		state := NewGroupState()

		_, err := g.Match(state, matchCtx("R1", "x"))
		require.NoError(t, err)

		var oerr *beanerr.OccurrenceError
		require.ErrorAs(t, g.Close(state, 2), &oerr)
		assert.Equal(t, "R2", oerr.RecordName)
	})

	t.Run("repetition within maxOccurs", func(t *testing.T) {
		g := NewGroup("root", true)
		g.Children = []Node{identifiedRecord("R1", "R1", 1, 3)}
		state := NewGroupState()

		for i := 0; i < 3; i++ {
			rec, err := g.Match(state, matchCtx("R1"))
			require.NoError(t, err)
			require.NotNil(t, rec)
		}
		assert.NoError(t, g.Close(state, 4))
	})
}

func TestGroupUnordered(t *testing.T) {
	g := NewGroup("root", false)
	g.Children = []Node{
		identifiedRecord("R1", "R1", 0, 1),
		identifiedRecord("R2", "R2", 0, 1),
		identifiedRecord("R3", "R3", 0, 1),
	}
	state := NewGroupState()

	rec, err := g.Match(state, matchCtx("R2"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "R2", rec.Name())

	rec, err = g.Match(state, matchCtx("R1"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "R1", rec.Name())

	assert.NoError(t, g.Close(state, 3))
}

func TestGroupNewIteration(t *testing.T) {
	// The group repeats: once every child's minimum is met, a child that is
	// exhausted in the current iteration opens the next one.
	g := NewGroup("root", true)
	g.Children = []Node{identifiedRecord("H", "H", 1, 1)}
	state := NewGroupState()

	rec, err := g.Match(state, matchCtx("H"))
	require.NoError(t, err)
	require.NotNil(t, rec)

	rec, err = g.Match(state, matchCtx("H"))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.NoError(t, g.Close(state, 3))
}

func TestGroupUnidentifiedRecord(t *testing.T) {
	g := NewGroup("root", true)
	g.Children = []Node{identifiedRecord("R1", "R1", 0, 1)}
	state := NewGroupState()

	rec, err := g.Match(state, matchCtx("XX"))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

package flatbind_test

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/flatbind"
)

type nameNumbers struct {
	List  []string
	Array []int
}

func TestDelimitedCollectionRoundTrip(t *testing.T) {
	cfg := &flatbind.StreamConfig{
		Name:   "collections",
		Format: "delimited",
		Children: []flatbind.Component{
			&flatbind.RecordConfig{
				Name: "row",
				Bean: &flatbind.BeanSpec{Type: reflect.TypeOf(nameNumbers{})},
				Children: []flatbind.Component{
					&flatbind.FieldConfig{Name: "list", MinOccurs: 1, MaxOccurs: 3},
					&flatbind.FieldConfig{Name: "array", TypeName: "int", MinOccurs: 1, MaxOccurs: 4},
				},
			},
		},
	}

	factory := flatbind.NewStreamFactory()
	ctx := context.Background()
	require.NoError(t, factory.Compile(ctx, cfg))

	const line = "George,Gary,Jon,1,2,3,4"

	reader, err := factory.CreateReader(ctx, "collections", strings.NewReader(line+"\n"))
	require.NoError(t, err)

	value, err := reader.Read()
	require.NoError(t, err)
	row, ok := value.(*nameNumbers)
	require.True(t, ok)
	assert.Equal(t, []string{"George", "Gary", "Jon"}, row.List)
	assert.Equal(t, []int{1, 2, 3, 4}, row.Array)

	_, err = reader.Read()
	assert.Equal(t, io.EOF, err)

	var sb strings.Builder
	writer, err := factory.CreateWriter(ctx, "collections", &sb)
	require.NoError(t, err)
	require.NoError(t, writer.Write(row))
	require.NoError(t, writer.Flush())
	assert.Equal(t, line+"\n", sb.String())
}

type car struct {
	ID    int
	Color string
	Model string
}

func TestDelimitedPaddedBackFill(t *testing.T) {
	cfg := &flatbind.StreamConfig{
		Name:   "cars",
		Format: "delimited",
		Children: []flatbind.Component{
			&flatbind.RecordConfig{
				Name: "car",
				Bean: &flatbind.BeanSpec{Type: reflect.TypeOf(car{})},
				Children: []flatbind.Component{
					&flatbind.FieldConfig{Name: "id", TypeName: "int", Length: 3},
					&flatbind.FieldConfig{Name: "color"},
					&flatbind.FieldConfig{Name: "model"},
				},
			},
		},
	}

	factory := flatbind.NewStreamFactory()
	ctx := context.Background()
	require.NoError(t, factory.Compile(ctx, cfg))

	var sb strings.Builder
	writer, err := factory.CreateWriter(ctx, "cars", &sb)
	require.NoError(t, err)
	require.NoError(t, writer.Write(&car{ID: 1, Model: "model"}))
	require.NoError(t, writer.Flush())
	assert.Equal(t, "1  ,,model\n", sb.String())
}

func TestFixedLengthPadding(t *testing.T) {
	cfg := &flatbind.StreamConfig{
		Name:   "cars",
		Format: "fixedlength",
		Children: []flatbind.Component{
			&flatbind.RecordConfig{
				Name: "car",
				Bean: &flatbind.BeanSpec{Type: reflect.TypeOf(car{})},
				Children: []flatbind.Component{
					&flatbind.FieldConfig{Name: "id", TypeName: "int", Length: 3, Justify: "right"},
					&flatbind.FieldConfig{Name: "color", Length: 5},
					&flatbind.FieldConfig{Name: "model", Length: 5},
				},
			},
		},
	}

	factory := flatbind.NewStreamFactory()
	ctx := context.Background()
	require.NoError(t, factory.Compile(ctx, cfg))

	var sb strings.Builder
	writer, err := factory.CreateWriter(ctx, "cars", &sb)
	require.NoError(t, err)
	require.NoError(t, writer.Write(&car{ID: 1, Model: "model"}))
	require.NoError(t, writer.Flush())
	assert.Equal(t, "  1     model\n", sb.String())

	// Every emitted record spans the summed field widths.
	assert.Len(t, strings.TrimSuffix(sb.String(), "\n"), 13)

	reader, err := factory.CreateReader(ctx, "cars", strings.NewReader(sb.String()))
	require.NoError(t, err)
	value, err := reader.Read()
	require.NoError(t, err)
	got := value.(*car)
	assert.Equal(t, 1, got.ID)
	assert.Equal(t, "", got.Color)
	assert.Equal(t, "model", got.Model)
}

type typedRow struct {
	Kind string
	Num  int
	Name string
}

func dispatchConfig(ordered bool, minOccurs int) *flatbind.StreamConfig {
	record := func(name string) *flatbind.RecordConfig {
		return &flatbind.RecordConfig{
			Name:      name,
			MinOccurs: minOccurs,
			MaxOccurs: 1,
			Bean:      &flatbind.BeanSpec{Type: reflect.TypeOf(typedRow{})},
			Children: []flatbind.Component{
				&flatbind.FieldConfig{Name: "kind", Identifier: true, Literal: name},
				&flatbind.FieldConfig{Name: "num", TypeName: "int"},
				&flatbind.FieldConfig{Name: "name"},
			},
		}
	}
	return &flatbind.StreamConfig{
		Name:    "dispatch",
		Format:  "delimited",
		Ordered: ordered,
		Children: []flatbind.Component{
			record("R1"), record("R2"), record("R3"),
		},
	}
}

func TestRecordDispatch(t *testing.T) {
	ctx := context.Background()
	const input = "R2,2,name2\nR1,1,name1\n"

	t.Run("unordered accepts any declared order", func(t *testing.T) {
		factory := flatbind.NewStreamFactory()
		require.NoError(t, factory.Compile(ctx, dispatchConfig(false, 0)))

		reader, err := factory.CreateReader(ctx, "dispatch", strings.NewReader(input))
		require.NoError(t, err)

		value, err := reader.Read()
		require.NoError(t, err)
		assert.Equal(t, "R2", reader.RecordName())
		assert.Equal(t, 2, value.(*typedRow).Num)

		value, err = reader.Read()
		require.NoError(t, err)
		assert.Equal(t, "R1", reader.RecordName())
		assert.Equal(t, 1, value.(*typedRow).Num)

		_, err = reader.Read()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("sequential rejects records out of order", func(t *testing.T) {
		factory := flatbind.NewStreamFactory()
		require.NoError(t, factory.Compile(ctx, dispatchConfig(true, 1)))

		reader, err := factory.CreateReader(ctx, "dispatch", strings.NewReader(input))
		require.NoError(t, err)

		_, err = reader.Read()
		var oerr *flatbind.OccurrenceError
		require.ErrorAs(t, err, &oerr)
	})
}

func TestUnidentifiedRecordPolicies(t *testing.T) {
	ctx := context.Background()
	const input = "XX,9,bogus\nR1,1,name1\n"

	t.Run("error policy surfaces the record", func(t *testing.T) {
		factory := flatbind.NewStreamFactory()
		require.NoError(t, factory.Compile(ctx, dispatchConfig(false, 0)))

		reader, err := factory.CreateReader(ctx, "dispatch", strings.NewReader(input))
		require.NoError(t, err)

		_, err = reader.Read()
		var uerr *flatbind.UnidentifiedRecordError
		require.ErrorAs(t, err, &uerr)
		assert.Equal(t, 1, uerr.LineNumber)
	})

	t.Run("skip policy reads past it", func(t *testing.T) {
		cfg := dispatchConfig(false, 0)
		cfg.OnUnidentified = "skip"
		factory := flatbind.NewStreamFactory()
		require.NoError(t, factory.Compile(ctx, cfg))

		reader, err := factory.CreateReader(ctx, "dispatch", strings.NewReader(input))
		require.NoError(t, err)

		value, err := reader.Read()
		require.NoError(t, err)
		assert.Equal(t, "R1", reader.RecordName())
		assert.Equal(t, 1, value.(*typedRow).Num)
	})

	t.Run("error handler may elect to continue", func(t *testing.T) {
		factory := flatbind.NewStreamFactory()
		require.NoError(t, factory.Compile(ctx, dispatchConfig(false, 0)))

		reader, err := factory.CreateReader(ctx, "dispatch", strings.NewReader(input))
		require.NoError(t, err)

		var seen []error
		reader.ErrorHandler = func(err error) error {
			seen = append(seen, err)
			return nil
		}

		value, err := reader.Read()
		require.NoError(t, err)
		assert.Equal(t, "R1", reader.RecordName())
		assert.NotNil(t, value)
		require.Len(t, seen, 1)
	})
}

func TestFieldConversionErrorsAggregate(t *testing.T) {
	ctx := context.Background()
	factory := flatbind.NewStreamFactory()
	require.NoError(t, factory.Compile(ctx, dispatchConfig(false, 0)))

	reader, err := factory.CreateReader(ctx, "dispatch", strings.NewReader("R1,notanumber,name1\nR1,5,ok\n"))
	require.NoError(t, err)

	var handled error
	reader.ErrorHandler = func(err error) error {
		handled = err
		return nil
	}

	value, err := reader.Read()
	require.NoError(t, err)
	assert.Equal(t, 5, value.(*typedRow).Num)

	var terr *flatbind.TypeConversionError
	require.ErrorAs(t, handled, &terr)
	assert.Equal(t, "num", terr.FieldName)
	assert.Equal(t, 1, terr.LineNumber)
}

type address struct {
	Street string
	City   string
}

type contact struct {
	Name      string
	Addresses []address
}

func TestSegmentCollection(t *testing.T) {
	cfg := &flatbind.StreamConfig{
		Name:   "contacts",
		Format: "delimited",
		Children: []flatbind.Component{
			&flatbind.RecordConfig{
				Name: "contact",
				Bean: &flatbind.BeanSpec{Type: reflect.TypeOf(contact{})},
				Children: []flatbind.Component{
					&flatbind.FieldConfig{Name: "name"},
					&flatbind.SegmentConfig{
						Name:       "addresses",
						Collection: "list",
						MaxOccurs:  2,
						Children: []flatbind.Component{
							&flatbind.FieldConfig{Name: "street"},
							&flatbind.FieldConfig{Name: "city"},
						},
					},
				},
			},
		},
	}

	factory := flatbind.NewStreamFactory()
	ctx := context.Background()
	require.NoError(t, factory.Compile(ctx, cfg))

	const line = "joe,main st,springfield,elm st,shelbyville"

	reader, err := factory.CreateReader(ctx, "contacts", strings.NewReader(line+"\n"))
	require.NoError(t, err)
	value, err := reader.Read()
	require.NoError(t, err)

	got := value.(*contact)
	assert.Equal(t, "joe", got.Name)
	assert.Equal(t, []address{
		{Street: "main st", City: "springfield"},
		{Street: "elm st", City: "shelbyville"},
	}, got.Addresses)

	var sb strings.Builder
	writer, err := factory.CreateWriter(ctx, "contacts", &sb)
	require.NoError(t, err)
	require.NoError(t, writer.Write(got))
	require.NoError(t, writer.Flush())
	assert.Equal(t, line+"\n", sb.String())
}

func TestUntypedMapMode(t *testing.T) {
	cfg := &flatbind.StreamConfig{
		Name:   "plain",
		Format: "delimited",
		Children: []flatbind.Component{
			&flatbind.RecordConfig{
				Name: "row",
				Children: []flatbind.Component{
					&flatbind.FieldConfig{Name: "first"},
					&flatbind.FieldConfig{Name: "count", TypeName: "int"},
				},
			},
		},
	}

	factory := flatbind.NewStreamFactory()
	ctx := context.Background()
	require.NoError(t, factory.Compile(ctx, cfg))

	reader, err := factory.CreateReader(ctx, "plain", strings.NewReader("joe,3\n"))
	require.NoError(t, err)
	value, err := reader.Read()
	require.NoError(t, err)

	m, ok := value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "joe", m["first"])
	assert.Equal(t, int64(3), m["count"])

	var sb strings.Builder
	writer, err := factory.CreateWriter(ctx, "plain", &sb)
	require.NoError(t, err)
	require.NoError(t, writer.Write(m))
	require.NoError(t, writer.Flush())
	assert.Equal(t, "joe,3\n", sb.String())
}

type order struct {
	ID   int
	SKUs []string
}

func TestConstructorBindingFromMapping(t *testing.T) {
	const mapping = `
stream "orders" {
  format = "delimited"

  record "order" {
    class = "Order"

    field "id" {
      type     = "int"
      ctor_arg = 1
    }

    field "skus" {
      max_occurs = 3
    }
  }
}
`
	factory := flatbind.NewStreamFactory()
	factory.RegisterType("Order", (*order)(nil))
	factory.RegisterConstructor(func(id int) order { return order{ID: id * 10} })

	ctx := context.Background()
	require.NoError(t, factory.LoadBytes(ctx, []byte(mapping), "orders.hcl"))

	reader, err := factory.CreateReader(ctx, "orders", strings.NewReader("7,a,b\n"))
	require.NoError(t, err)
	value, err := reader.Read()
	require.NoError(t, err)

	got := value.(*order)
	assert.Equal(t, 70, got.ID, "the registered constructor transforms the argument")
	assert.Equal(t, []string{"a", "b"}, got.SKUs)
}

type personXML struct {
	Name string
	Age  int
}

func TestXMLRoundTrip(t *testing.T) {
	cfg := &flatbind.StreamConfig{
		Name:   "people",
		Format: "xml",
		Children: []flatbind.Component{
			&flatbind.RecordConfig{
				Name: "person",
				Bean: &flatbind.BeanSpec{Type: reflect.TypeOf(personXML{})},
				Children: []flatbind.Component{
					&flatbind.FieldConfig{Name: "name"},
					&flatbind.FieldConfig{Name: "age", TypeName: "int"},
				},
			},
		},
	}

	factory := flatbind.NewStreamFactory()
	ctx := context.Background()
	require.NoError(t, factory.Compile(ctx, cfg))

	const input = `<records><person><name>joe</name><age>41</age></person></records>`
	reader, err := factory.CreateReader(ctx, "people", strings.NewReader(input))
	require.NoError(t, err)

	value, err := reader.Read()
	require.NoError(t, err)
	got := value.(*personXML)
	assert.Equal(t, "joe", got.Name)
	assert.Equal(t, 41, got.Age)

	var sb strings.Builder
	writer, err := factory.CreateWriter(ctx, "people", &sb)
	require.NoError(t, err)
	require.NoError(t, writer.Write(got))
	require.NoError(t, writer.Flush())
	assert.Contains(t, sb.String(), "<person><name>joe</name><age>41</age></person>")
}

func TestCompileIdempotency(t *testing.T) {
	ctx := context.Background()

	summarize := func(t *testing.T, factory *flatbind.StreamFactory) string {
		t.Helper()
		tree, err := factory.Describe("dispatch")
		require.NoError(t, err)
		names := factory.StreamNames()
		require.NotEmpty(t, tree)
		return strings.Join(names, ",")
	}

	f1 := flatbind.NewStreamFactory()
	require.NoError(t, f1.Compile(ctx, dispatchConfig(false, 0)))
	f2 := flatbind.NewStreamFactory()
	require.NoError(t, f2.Compile(ctx, dispatchConfig(false, 0)))

	assert.Empty(t, cmp.Diff(summarize(t, f1), summarize(t, f2)))

	// Both compiles parse identical input to identical values.
	read := func(f *flatbind.StreamFactory) []*typedRow {
		reader, err := f.CreateReader(ctx, "dispatch", strings.NewReader("R1,1,a\nR2,2,b\n"))
		require.NoError(t, err)
		var out []*typedRow
		for {
			v, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return out
			}
			require.NoError(t, err)
			out = append(out, v.(*typedRow))
		}
	}
	assert.Empty(t, cmp.Diff(read(f1), read(f2)))
}

func TestReadOnlyModeRejectsWriters(t *testing.T) {
	cfg := dispatchConfig(false, 0)
	cfg.Mode = "read"
	factory := flatbind.NewStreamFactory()
	ctx := context.Background()
	require.NoError(t, factory.Compile(ctx, cfg))

	_, err := factory.CreateWriter(ctx, "dispatch", &strings.Builder{})
	assert.ErrorContains(t, err, "read-only")
}

func TestConfigErrorsAreFatal(t *testing.T) {
	factory := flatbind.NewStreamFactory()
	ctx := context.Background()

	cfg := dispatchConfig(false, 0)
	cfg.Format = "parquet"
	err := factory.Compile(ctx, cfg)
	var cerr *flatbind.ConfigError
	require.ErrorAs(t, err, &cerr)

	_, err = factory.CreateReader(ctx, "dispatch", strings.NewReader(""))
	assert.ErrorContains(t, err, "not compiled")
}

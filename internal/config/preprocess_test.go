package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/flatbind/internal/beanerr"
)

func validStream() *StreamConfig {
	return &StreamConfig{
		Name:   "people",
		Format: FormatDelimited,
		Children: []Component{
			&RecordConfig{
				Name: "person",
				Children: []Component{
					&FieldConfig{Name: "first"},
					&FieldConfig{Name: "last"},
				},
			},
		},
	}
}

func TestPreprocessDefaults(t *testing.T) {
	cfg := validStream()
	require.NoError(t, Preprocess(context.Background(), cfg, nil))

	assert.Equal(t, ModeReadWrite, cfg.Mode)
	assert.Equal(t, UnidentifiedError, cfg.OnUnidentified)
	assert.Equal(t, Unbounded, cfg.MaxOccurs)

	rec := cfg.Children[0].(*RecordConfig)
	assert.Equal(t, Unbounded, rec.MaxOccurs)

	first := rec.Children[0].(*FieldConfig)
	last := rec.Children[1].(*FieldConfig)
	assert.Equal(t, 1, first.Position)
	assert.Equal(t, 2, last.Position)
	assert.Equal(t, "string", first.TypeName)
	assert.Equal(t, 1, first.MinOccurs)
	assert.Equal(t, 1, first.MaxOccurs)
}

func TestPreprocessValidation(t *testing.T) {
	t.Run("unknown format", func(t *testing.T) {
		cfg := validStream()
		cfg.Format = "parquet"
		err := Preprocess(context.Background(), cfg, nil)
		var cerr *beanerr.ConfigError
		require.ErrorAs(t, err, &cerr)
		assert.ErrorContains(t, err, "unknown stream format")
	})

	t.Run("unknown mode", func(t *testing.T) {
		cfg := validStream()
		cfg.Mode = "append"
		assert.ErrorContains(t, Preprocess(context.Background(), cfg, nil), "unknown stream mode")
	})

	t.Run("empty stream", func(t *testing.T) {
		cfg := validStream()
		cfg.Children = nil
		assert.ErrorContains(t, Preprocess(context.Background(), cfg, nil), "no records")
	})

	t.Run("duplicate positions", func(t *testing.T) {
		cfg := validStream()
		rec := cfg.Children[0].(*RecordConfig)
		rec.Children[0].(*FieldConfig).Position = 2
		rec.Children[0].(*FieldConfig).PositionSet = true
		rec.Children[1].(*FieldConfig).Position = 2
		rec.Children[1].(*FieldConfig).PositionSet = true
		assert.ErrorContains(t, Preprocess(context.Background(), cfg, nil), "already used")
	})

	t.Run("maxOccurs below minOccurs", func(t *testing.T) {
		cfg := validStream()
		rec := cfg.Children[0].(*RecordConfig)
		rec.MinOccurs = 3
		rec.MaxOccurs = 2
		assert.ErrorContains(t, Preprocess(context.Background(), cfg, nil), "less than minOccurs")
	})
}

func TestPreprocessFixedLength(t *testing.T) {
	t.Run("offsets pack in declaration order", func(t *testing.T) {
		cfg := &StreamConfig{
			Name:   "cars",
			Format: FormatFixedLength,
			Children: []Component{
				&RecordConfig{
					Name: "car",
					Children: []Component{
						&FieldConfig{Name: "id", Length: 3},
						&FieldConfig{Name: "model", Length: 5},
					},
				},
			},
		}
		require.NoError(t, Preprocess(context.Background(), cfg, nil))
		rec := cfg.Children[0].(*RecordConfig)
		assert.Equal(t, 0, rec.Children[0].(*FieldConfig).Position)
		assert.Equal(t, 3, rec.Children[1].(*FieldConfig).Position)
		assert.Equal(t, " ", rec.Children[0].(*FieldConfig).Padding)
	})

	t.Run("length is required", func(t *testing.T) {
		cfg := &StreamConfig{
			Name:   "cars",
			Format: FormatFixedLength,
			Children: []Component{
				&RecordConfig{Name: "car", Children: []Component{&FieldConfig{Name: "id"}}},
			},
		}
		assert.ErrorContains(t, Preprocess(context.Background(), cfg, nil), "requires a length")
	})

	t.Run("overlapping offsets rejected", func(t *testing.T) {
		cfg := &StreamConfig{
			Name:   "cars",
			Format: FormatFixedLength,
			Children: []Component{
				&RecordConfig{
					Name: "car",
					Children: []Component{
						&FieldConfig{Name: "id", Length: 3, Position: 0, PositionSet: true},
						&FieldConfig{Name: "model", Length: 5, Position: 2, PositionSet: true},
					},
				},
			},
		}
		assert.ErrorContains(t, Preprocess(context.Background(), cfg, nil), "overlap")
	})
}

func TestPreprocessCtorArgs(t *testing.T) {
	bean := &BeanSpec{TypeName: "car"}

	t.Run("contiguous indices accepted", func(t *testing.T) {
		cfg := &StreamConfig{
			Name:   "cars",
			Format: FormatDelimited,
			Children: []Component{
				&RecordConfig{
					Name: "car",
					Bean: bean,
					Children: []Component{
						&FieldConfig{Name: "id", CtorArg: 1},
						&FieldConfig{Name: "model", CtorArg: 2},
					},
				},
			},
		}
		require.NoError(t, Preprocess(context.Background(), cfg, nil))
	})

	t.Run("gap in indices rejected", func(t *testing.T) {
		cfg := &StreamConfig{
			Name:   "cars",
			Format: FormatDelimited,
			Children: []Component{
				&RecordConfig{
					Name: "car",
					Bean: bean,
					Children: []Component{
						&FieldConfig{Name: "id", CtorArg: 1},
						&FieldConfig{Name: "model", CtorArg: 3},
					},
				},
			},
		}
		assert.ErrorContains(t, Preprocess(context.Background(), cfg, nil), "contiguous")
	})

	t.Run("constructor arguments need a bean", func(t *testing.T) {
		cfg := &StreamConfig{
			Name:   "cars",
			Format: FormatDelimited,
			Children: []Component{
				&RecordConfig{
					Name: "car",
					Children: []Component{
						&FieldConfig{Name: "id", CtorArg: 1},
					},
				},
			},
		}
		assert.ErrorContains(t, Preprocess(context.Background(), cfg, nil), "without a bean binding")
	})
}

func TestPreprocessRejectsSharedNodes(t *testing.T) {
	shared := &FieldConfig{Name: "dup"}
	cfg := &StreamConfig{
		Name:   "s",
		Format: FormatDelimited,
		Children: []Component{
			&RecordConfig{Name: "a", Children: []Component{shared}},
			&RecordConfig{Name: "b", Children: []Component{shared}},
		},
	}
	assert.ErrorContains(t, Preprocess(context.Background(), cfg, nil), "appears more than once")
}

func TestPreprocessIdentifierUniqueness(t *testing.T) {
	cfg := &StreamConfig{
		Name:   "s",
		Format: FormatDelimited,
		Children: []Component{
			&RecordConfig{Name: "a", Children: []Component{
				&FieldConfig{Name: "type", Identifier: true, Literal: "X"},
			}},
			&RecordConfig{Name: "b", Children: []Component{
				&FieldConfig{Name: "type", Identifier: true, Literal: "X"},
			}},
		},
	}
	assert.ErrorContains(t, Preprocess(context.Background(), cfg, nil), "share identifier")
}

func TestPreprocessSegments(t *testing.T) {
	t.Run("map segment requires a declared key", func(t *testing.T) {
		cfg := &StreamConfig{
			Name:   "s",
			Format: FormatDelimited,
			Children: []Component{
				&RecordConfig{Name: "r", Children: []Component{
					&SegmentConfig{Name: "seg", Collection: "map", Key: "code", Children: []Component{
						&FieldConfig{Name: "value"},
					}},
				}},
			},
		}
		assert.ErrorContains(t, Preprocess(context.Background(), cfg, nil), "not declared")
	})

	t.Run("unknown collection kind rejected", func(t *testing.T) {
		cfg := &StreamConfig{
			Name:   "s",
			Format: FormatDelimited,
			Children: []Component{
				&RecordConfig{Name: "r", Children: []Component{
					&SegmentConfig{Name: "seg", Collection: "bag", Children: []Component{
						&FieldConfig{Name: "value"},
					}},
				}},
			},
		}
		assert.ErrorContains(t, Preprocess(context.Background(), cfg, nil), "unknown segment collection")
	})
}

// Package schema defines the HCL surface of mapping files and lowers
// parsed blocks into the format-agnostic configuration tree.
package schema

// --- Mapping File Structures ---

// MappingFile is the top-level structure of a mapping file, holding any
// number of stream layouts.
type MappingFile struct {
	Streams []*StreamBlock `hcl:"stream,block"`
}

// StreamBlock represents a `stream` block: one named bidirectional layout.
type StreamBlock struct {
	Name string `hcl:"name,label"`

	Format         string  `hcl:"format"`
	Mode           *string `hcl:"mode,optional"`
	Ordered        *bool   `hcl:"ordered,optional"`
	MinOccurs      *int    `hcl:"min_occurs,optional"`
	MaxOccurs      *int    `hcl:"max_occurs,optional"`
	OnUnidentified *string `hcl:"on_unidentified,optional"`

	Delimiter *string `hcl:"delimiter,optional"`
	Escape    *string `hcl:"escape,optional"`
	Comment   *string `hcl:"comment,optional"`

	Groups  []*GroupBlock  `hcl:"group,block"`
	Records []*RecordBlock `hcl:"record,block"`
}

// GroupBlock represents a `group` block of records repeating together.
// Groups nest arbitrarily.
type GroupBlock struct {
	Name string `hcl:"name,label"`

	MinOccurs *int  `hcl:"min_occurs,optional"`
	MaxOccurs *int  `hcl:"max_occurs,optional"`
	Ordered   *bool `hcl:"ordered,optional"`

	Groups  []*GroupBlock  `hcl:"group,block"`
	Records []*RecordBlock `hcl:"record,block"`
}

// RecordBlock represents a `record` block: one record layout bound to a
// registered type by class name.
type RecordBlock struct {
	Name string `hcl:"name,label"`

	Class     *string `hcl:"class,optional"`
	MinOccurs *int    `hcl:"min_occurs,optional"`
	MaxOccurs *int    `hcl:"max_occurs,optional"`

	Fields   []*FieldBlock   `hcl:"field,block"`
	Segments []*SegmentBlock `hcl:"segment,block"`
}

// SegmentBlock represents a `segment` block binding a bundle of fields to
// one member of the enclosing aggregate.
type SegmentBlock struct {
	Name string `hcl:"name,label"`

	Class      *string `hcl:"class,optional"`
	MinOccurs  *int    `hcl:"min_occurs,optional"`
	MaxOccurs  *int    `hcl:"max_occurs,optional"`
	Collection *string `hcl:"collection,optional"`
	Key        *string `hcl:"key,optional"`

	Fields   []*FieldBlock   `hcl:"field,block"`
	Segments []*SegmentBlock `hcl:"segment,block"`
}

// FieldBlock represents a `field` block: one scalar position.
type FieldBlock struct {
	Name string `hcl:"name,label"`

	Type       *string           `hcl:"type,optional"`
	Handler    *string           `hcl:"handler,optional"`
	Properties map[string]string `hcl:"properties,optional"`

	Position *int    `hcl:"position,optional"`
	Length   *int    `hcl:"length,optional"`
	Padding  *string `hcl:"padding,optional"`
	Justify  *string `hcl:"justify,optional"`

	Required   *bool   `hcl:"required,optional"`
	Default    *string `hcl:"default,optional"`
	Literal    *string `hcl:"literal,optional"`
	Identifier *bool   `hcl:"identifier,optional"`
	Regex      *string `hcl:"regex,optional"`

	MinLength *int `hcl:"min_length,optional"`
	MaxLength *int `hcl:"max_length,optional"`
	MinOccurs *int `hcl:"min_occurs,optional"`
	MaxOccurs *int `hcl:"max_occurs,optional"`

	Getter  *string `hcl:"getter,optional"`
	Setter  *string `hcl:"setter,optional"`
	CtorArg *int    `hcl:"ctor_arg,optional"`
}

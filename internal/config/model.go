// Package config holds the declarative stream configuration tree and the
// preprocessing pass that validates and defaults it ahead of compilation.
//
// The tree is assembled either programmatically or by the mapping-file
// loader in internal/schema. After Preprocess succeeds the tree is treated
// as immutable.
package config

import "reflect"

// Stream formats understood by the engine.
const (
	FormatDelimited   = "delimited"
	FormatFixedLength = "fixedlength"
	FormatCSV         = "csv"
	FormatXML         = "xml"
)

// Stream modes restrict which direction a compiled stream supports.
const (
	ModeRead      = "read"
	ModeWrite     = "write"
	ModeReadWrite = "readwrite"
)

// Unbounded marks a maxOccurs with no upper limit.
const Unbounded = -1

// Policies for records that match no definition.
const (
	UnidentifiedError = "error"
	UnidentifiedSkip  = "skip"
)

// StreamConfig is the root of a stream layout declaration. Its children
// behave as an implicit top-level group.
type StreamConfig struct {
	Name   string
	Format string
	Mode   string

	// Ordered selects the sequential group mode for the root children;
	// false means any declared child may appear in any order.
	Ordered bool

	// MinOccurs and MaxOccurs bound repetitions of the whole layout.
	MinOccurs int
	MaxOccurs int

	// OnUnidentified selects the policy for unmatched records.
	OnUnidentified string

	// Delimiter and Escape configure delimited tokenization; Comment is the
	// prefix that marks comment lines.
	Delimiter string
	Escape    string
	Comment   string

	Children []Component
}

// Component is a node of the layout tree: *GroupConfig, *RecordConfig,
// *SegmentConfig or *FieldConfig.
type Component interface {
	ComponentName() string
}

// GroupConfig groups records that repeat together.
type GroupConfig struct {
	Name      string
	MinOccurs int
	MaxOccurs int
	Ordered   bool
	Children  []Component
}

func (g *GroupConfig) ComponentName() string { return g.Name }

// RecordConfig declares one record layout and its target aggregate.
type RecordConfig struct {
	Name      string
	MinOccurs int
	MaxOccurs int
	Bean      *BeanSpec
	Children  []Component
}

func (r *RecordConfig) ComponentName() string { return r.Name }

// SegmentConfig bundles fields or nested segments bound to one member of
// the enclosing aggregate.
type SegmentConfig struct {
	Name      string
	MinOccurs int
	MaxOccurs int
	Bean      *BeanSpec

	// Collection aggregates repeated occurrences: "" binds a single value,
	// "list" an ordered sequence, "map" a keyed mapping.
	Collection string
	// Key names the child field supplying map keys when Collection is "map".
	Key string

	Children []Component
}

func (s *SegmentConfig) ComponentName() string { return s.Name }

// FieldConfig declares one scalar position within a record.
type FieldConfig struct {
	Name string

	// Position is the 1-based ordinal for delimited formats and the 0-based
	// byte offset for fixed-length. Zero means "assign from declaration
	// order" and is resolved during preprocessing.
	Position int
	// PositionSet distinguishes an explicit position 0 from an absent one.
	PositionSet bool

	// Length is the fixed-length field width in bytes.
	Length int
	// Padding pads fixed-length output; blank defaults to space.
	Padding string
	// Justify is "left" or "right".
	Justify string

	Required bool
	Default  string
	// Literal declares a constant, unbound field.
	Literal string
	// Identifier marks the field as participating in record dispatch.
	Identifier bool
	// Regex matches identifier text when Literal is blank.
	Regex string

	MinLength int
	MaxLength int

	// MinOccurs and MaxOccurs allow a field to repeat into a collection.
	MinOccurs int
	MaxOccurs int
	// Collection is "list" when repeated occurrences aggregate into a
	// sequence member.
	Collection string

	// TypeName names the scalar type; HandlerName selects a registered
	// handler; HandlerProps configure the resolved instance.
	TypeName     string
	HandlerName  string
	HandlerProps map[string]string

	// Getter and Setter override accessor probing on the parent bean.
	Getter string
	Setter string
	// CtorArg is the 1-based constructor-argument position, or 0 when the
	// member is populated through its setter.
	CtorArg int

	// Unbound suppresses property binding, keeping the field structural.
	Unbound bool
}

func (f *FieldConfig) ComponentName() string { return f.Name }

// BeanSpec identifies the target aggregate of a record or segment. Exactly
// one of Type or TypeName must be set; TypeName is resolved against the
// registered type table during preprocessing.
type BeanSpec struct {
	Type     reflect.Type
	TypeName string
}

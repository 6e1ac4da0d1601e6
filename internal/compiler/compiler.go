// Package compiler lowers a preprocessed stream configuration into the
// runtime parser and property trees. The second compile pass walks the
// configuration with two stacks held by a single compile context: one for
// open parser scopes, one for their bound properties, with a distinct
// unbound entry where a parser scope binds no property.
package compiler

import (
	"context"
	"fmt"
	"reflect"
	"regexp"

	"github.com/vk/flatbind/internal/accessor"
	"github.com/vk/flatbind/internal/bean"
	"github.com/vk/flatbind/internal/beanerr"
	"github.com/vk/flatbind/internal/config"
	"github.com/vk/flatbind/internal/ctxlog"
	"github.com/vk/flatbind/internal/format"
	"github.com/vk/flatbind/internal/format/csvfmt"
	"github.com/vk/flatbind/internal/format/delimited"
	"github.com/vk/flatbind/internal/format/fixedlen"
	"github.com/vk/flatbind/internal/format/xmlfmt"
	"github.com/vk/flatbind/internal/parser"
	"github.com/vk/flatbind/internal/property"
	"github.com/vk/flatbind/internal/typehandler"
)

// Compiler turns stream configurations into immutable parser trees.
type Compiler struct {
	Types    *bean.TypeRegistry
	Handlers *typehandler.Registry
	Beans    *bean.Factory
}

// New creates a compiler around the given registries.
func New(types *bean.TypeRegistry, handlers *typehandler.Registry, beans *bean.Factory) *Compiler {
	return &Compiler{Types: types, Handlers: handlers, Beans: beans}
}

// Compile runs both passes over cfg and returns the executable stream.
func (c *Compiler) Compile(ctx context.Context, cfg *config.StreamConfig) (*parser.Stream, error) {
	logger := ctxlog.FromContext(ctx).With("stream", cfg.Name)
	logger.Debug("Compiling stream.")

	if err := config.Preprocess(ctx, cfg, &resolver{c: c}); err != nil {
		return nil, err
	}

	factory, err := formatFactory(cfg)
	if err != nil {
		return nil, beanerr.NewConfigError(cfg.Name, "", err)
	}

	stream := parser.NewStream(cfg.Name, cfg, factory)
	cc := &compileContext{compiler: c, stream: cfg}
	for _, child := range cfg.Children {
		node, err := cc.component(child)
		if err != nil {
			return nil, err
		}
		stream.Root.Children = append(stream.Root.Children, node)
	}
	logger.Debug("Stream compiled.", "records", len(stream.Records()))
	return stream, nil
}

// resolver adapts the compiler's registries to the preprocessor.
type resolver struct {
	c *Compiler
}

func (r *resolver) ResolveBeanType(name string) error {
	_, err := r.c.Types.Lookup(name)
	return err
}

func (r *resolver) ResolveHandler(typeName, fmtName, handlerName string) error {
	_, err := r.c.Handlers.Lookup(typeName, fmtName, handlerName, nil)
	return err
}

func formatFactory(cfg *config.StreamConfig) (format.Factory, error) {
	switch cfg.Format {
	case config.FormatDelimited:
		opts := delimited.Options{Comment: cfg.Comment}
		if cfg.Delimiter != "" {
			opts.Delimiter = cfg.Delimiter[0]
		}
		if cfg.Escape != "" {
			opts.Escape = cfg.Escape[0]
		}
		return delimited.NewFactory(opts), nil
	case config.FormatFixedLength:
		return fixedlen.NewFactory(fixedlen.Options{Comment: cfg.Comment}), nil
	case config.FormatCSV:
		opts := csvfmt.Options{}
		if cfg.Delimiter != "" {
			opts.Comma = rune(cfg.Delimiter[0])
		}
		if cfg.Comment != "" {
			opts.Comment = rune(cfg.Comment[0])
		}
		return csvfmt.NewFactory(opts), nil
	case config.FormatXML:
		return xmlfmt.NewFactory(xmlfmt.Options{}), nil
	}
	return nil, fmt.Errorf("unknown stream format %q", cfg.Format)
}

// scope is one open parser scope and its bound property. A nil prop is the
// unbound entry: the parser scope binds no property.
type scope struct {
	parserName string
	prop       property.Component
}

// compileContext owns the two stacks driving the lockstep walk and hands
// out stable property ids.
type compileContext struct {
	compiler *Compiler
	stream   *config.StreamConfig

	scopes []scope
	nextID int
}

func (cc *compileContext) push(parserName string, prop property.Component) {
	if prop != nil {
		if p, ok := prop.(interface{ SetID(int) }); ok {
			p.SetID(cc.nextID)
			cc.nextID++
		}
	}
	cc.scopes = append(cc.scopes, scope{parserName: parserName, prop: prop})
}

func (cc *compileContext) pop() scope {
	s := cc.scopes[len(cc.scopes)-1]
	cc.scopes = cc.scopes[:len(cc.scopes)-1]
	return s
}

// enclosingBean finds the nearest bound aggregate on the property stack,
// skipping unbound entries.
func (cc *compileContext) enclosingBean() *property.Bean {
	for i := len(cc.scopes) - 1; i >= 0; i-- {
		if b, ok := cc.scopes[i].prop.(*property.Bean); ok {
			return b
		}
	}
	return nil
}

func (cc *compileContext) assignID(prop property.Component) {
	if p, ok := prop.(interface{ SetID(int) }); ok {
		p.SetID(cc.nextID)
		cc.nextID++
	}
}

func (cc *compileContext) configErr(node string, format string, args ...any) error {
	return beanerr.Configf(cc.stream.Name, node, format, args...)
}

// component compiles a group or record into a group-tree node.
func (cc *compileContext) component(c config.Component) (parser.Node, error) {
	switch node := c.(type) {
	case *config.GroupConfig:
		return cc.group(node)
	case *config.RecordConfig:
		return cc.record(node)
	}
	return nil, cc.configErr(c.ComponentName(), "unexpected component %T", c)
}

func (cc *compileContext) group(g *config.GroupConfig) (parser.Node, error) {
	pg := parser.NewGroup(g.Name, g.Ordered)
	pg.MinOccurs = g.MinOccurs
	pg.MaxOccurs = g.MaxOccurs

	// Groups are structural: an unbound entry pairs with the parser scope.
	cc.push(g.Name, nil)
	defer cc.pop()

	for _, child := range g.Children {
		node, err := cc.component(child)
		if err != nil {
			return nil, err
		}
		pg.Children = append(pg.Children, node)
	}
	return pg, nil
}

func (cc *compileContext) record(r *config.RecordConfig) (parser.Node, error) {
	rec := parser.NewRecord(r.Name)
	rec.MinOccurs = r.MinOccurs
	rec.MaxOccurs = r.MaxOccurs

	beanType, err := cc.beanType(r.Bean)
	if err != nil {
		return nil, beanerr.NewConfigError(cc.stream.Name, r.Name, err)
	}
	prop := property.NewBean(r.Name, beanType, cc.compiler.Beans)
	rec.Property = prop

	cc.push(r.Name, prop)
	defer cc.pop()

	for _, child := range r.Children {
		pc, err := cc.recordChild(child, rec)
		if err != nil {
			return nil, err
		}
		rec.Children = append(rec.Children, pc)
	}
	if err := cc.updateConstructor(prop, r.Name); err != nil {
		return nil, err
	}
	return rec, nil
}

func (cc *compileContext) recordChild(c config.Component, rec *parser.Record) (parser.Child, error) {
	switch node := c.(type) {
	case *config.FieldConfig:
		return cc.field(node, rec)
	case *config.SegmentConfig:
		return cc.segment(node, rec)
	}
	return nil, cc.configErr(c.ComponentName(), "unexpected component %T inside a record", c)
}

func (cc *compileContext) field(f *config.FieldConfig, rec *parser.Record) (parser.Child, error) {
	pf := parser.NewField(f.Name)
	pf.Position = f.Position
	pf.Length = f.Length
	if f.Padding != "" {
		pf.Padding = f.Padding[0]
	}
	pf.JustifyRight = f.Justify == "right"
	pf.Required = f.Required
	pf.Default = f.Default
	pf.Literal = f.Literal
	pf.MinLength = f.MinLength
	pf.MaxLength = f.MaxLength
	pf.MinOccurs = f.MinOccurs
	pf.MaxOccurs = f.MaxOccurs
	if f.Regex != "" {
		pf.Regex = regexp.MustCompile(f.Regex)
	}

	handler, err := cc.compiler.Handlers.Lookup(f.TypeName, cc.stream.Format, f.HandlerName, f.HandlerProps)
	if err != nil {
		return nil, beanerr.NewConfigError(cc.stream.Name, f.Name, err)
	}
	pf.Handler = handler

	if !f.Unbound {
		parent := cc.enclosingBean()
		if parent == nil {
			return nil, cc.configErr(f.Name, "field binds a property but no enclosing aggregate is open")
		}
		acc, memberType, err := cc.memberAccessor(parent, f.Name, accessor.Config{
			Getter:         f.Getter,
			Setter:         f.Setter,
			ConstructorArg: f.CtorArg > 0,
		})
		if err != nil {
			return nil, beanerr.NewConfigError(cc.stream.Name, f.Name, err)
		}
		if memberType != nil && memberType.Kind() == reflect.Slice &&
			f.MaxOccurs == 1 && memberType.Elem().Kind() != reflect.Uint8 {
			// A single position holding a sequence member splits and joins
			// on the format's list delimiter.
			handler = typehandler.NewSequenceHandler(handler, cc.stream.Format)
			pf.Handler = handler
		}
		simple := property.NewSimple(f.Name, memberType, f.MaxOccurs != 1)
		cc.assignID(simple)
		pf.Property = simple
		parent.AddChild(&property.Child{
			Prop:    simple,
			Acc:     acc,
			CtorArg: f.CtorArg - 1,
		})
	}

	if f.Identifier {
		pf.SetIdentifier()
		rec.AddIdentifier(pf)
	}
	if err := cc.checkMode(pf.Property, f); err != nil {
		return nil, err
	}
	return pf, nil
}

// memberAccessor resolves the accessor and member type on a typed parent;
// untyped map-mode parents bind without one.
func (cc *compileContext) memberAccessor(parent *property.Bean, name string, acfg accessor.Config) (accessor.Accessor, reflect.Type, error) {
	if parent.Typ == nil {
		return nil, nil, nil
	}
	acc, err := accessor.Resolve(parent.Typ, name, acfg)
	if err != nil {
		return nil, nil, err
	}
	if acc == nil {
		return nil, nil, nil
	}
	return acc, acc.Type(), nil
}

// checkMode enforces the stream mode against the resolved accessor: a
// readable member is required to write and a writable member (or a
// constructor argument) to read.
func (cc *compileContext) checkMode(prop *property.Simple, f *config.FieldConfig) error {
	if prop == nil {
		return nil
	}
	parent := cc.enclosingBean()
	if parent == nil || parent.Typ == nil {
		return nil
	}
	for _, child := range parent.Children {
		if child.Prop != prop {
			continue
		}
		if child.Acc == nil {
			return nil
		}
		mode := cc.stream.Mode
		if (mode == config.ModeRead || mode == config.ModeReadWrite) && !child.Acc.CanWrite() && child.CtorArg < 0 {
			return cc.configErr(f.Name, "member is not writable and the stream mode requires reading")
		}
		if (mode == config.ModeWrite || mode == config.ModeReadWrite) && !child.Acc.CanRead() {
			return cc.configErr(f.Name, "member is not readable and the stream mode requires writing")
		}
	}
	return nil
}

func (cc *compileContext) segment(s *config.SegmentConfig, rec *parser.Record) (parser.Child, error) {
	seg := parser.NewSegment(s.Name)
	seg.MinOccurs = s.MinOccurs
	seg.MaxOccurs = s.MaxOccurs

	parent := cc.enclosingBean()
	if parent == nil {
		return nil, cc.configErr(s.Name, "segment binds a property but no enclosing aggregate is open")
	}

	beanType, err := cc.beanType(s.Bean)
	if err != nil {
		return nil, beanerr.NewConfigError(cc.stream.Name, s.Name, err)
	}

	var acc accessor.Accessor
	var memberType reflect.Type
	if parent.Typ != nil {
		acc, memberType, err = cc.memberAccessor(parent, s.Name, accessor.Config{})
		if err != nil {
			return nil, beanerr.NewConfigError(cc.stream.Name, s.Name, err)
		}
	}

	// The element bean type defaults from the member's element type when
	// the configuration names none.
	elemType := beanType
	if elemType == nil && memberType != nil {
		switch {
		case s.Collection == "list" && memberType.Kind() == reflect.Slice:
			elemType = memberType.Elem()
		case s.Collection == "map" && memberType.Kind() == reflect.Map:
			elemType = memberType.Elem()
		case s.Collection == "":
			elemType = memberType
		}
		for elemType != nil && elemType.Kind() == reflect.Ptr {
			elemType = elemType.Elem()
		}
		if elemType != nil && elemType.Kind() != reflect.Struct {
			elemType = nil
		}
	}

	elem := property.NewBean(s.Name, elemType, cc.compiler.Beans)
	cc.assignID(elem)

	var prop property.Component
	switch s.Collection {
	case "list":
		coll := property.NewCollection(s.Name, sliceType(memberType), elem)
		cc.assignID(coll)
		prop = coll
	case "map":
		// The key child materializes from the element's slots once the
		// occurrence has parsed; it is wired after children compile.
		m := property.NewMap(s.Name, mapType(memberType), elem, nil)
		cc.assignID(m)
		prop = m
	default:
		prop = elem
	}
	seg.Property = prop

	cc.push(s.Name, elem)
	for _, child := range s.Children {
		pc, err := cc.recordChild(child, rec)
		if err != nil {
			cc.pop()
			return nil, err
		}
		seg.Children = append(seg.Children, pc)
	}
	cc.pop()

	if m, ok := prop.(*property.Map); ok {
		key := findChildProp(elem, s.Key)
		if key == nil {
			return nil, cc.configErr(s.Name, "key field %q is not bound inside the segment", s.Key)
		}
		m.Key = key
	}

	if err := cc.updateConstructor(elem, s.Name); err != nil {
		return nil, err
	}

	seg.Width = segmentWidth(seg, cc.stream.Format)

	parent.AddChild(&property.Child{
		Prop:    prop,
		Acc:     acc,
		CtorArg: -1,
	})
	return seg, nil
}

func findChildProp(b *property.Bean, name string) property.Component {
	for _, c := range b.Children {
		if c.Prop.Name() == name {
			return c.Prop
		}
	}
	return nil
}

func sliceType(memberType reflect.Type) reflect.Type {
	if memberType != nil && memberType.Kind() == reflect.Slice {
		return memberType
	}
	return nil
}

func mapType(memberType reflect.Type) reflect.Type {
	if memberType != nil && memberType.Kind() == reflect.Map {
		return memberType
	}
	return nil
}

// segmentWidth is the positional span of one occurrence: declared ordinal
// positions for tokenized formats, bytes for fixed-length.
func segmentWidth(seg *parser.Segment, streamFormat string) int {
	min, max := -1, -1
	var walk func(children []parser.Child)
	walk = func(children []parser.Child) {
		for _, c := range children {
			switch n := c.(type) {
			case *parser.Field:
				span := 1
				if streamFormat == config.FormatFixedLength {
					span = n.Length
					if n.MaxOccurs > 1 {
						span *= n.MaxOccurs
					}
				} else if n.MaxOccurs > 1 {
					span = n.MaxOccurs
				}
				if min == -1 || n.Position < min {
					min = n.Position
				}
				if end := n.Position + span; end > max {
					max = end
				}
			case *parser.Segment:
				walk(n.Children)
			}
		}
	}
	walk(seg.Children)
	if min == -1 {
		return 0
	}
	return max - min
}

// updateConstructor finalizes a popped aggregate: constructor-argument
// children are ordered by index, contiguity was checked during
// preprocessing, and the best candidate of matching arity is selected.
func (cc *compileContext) updateConstructor(b *property.Bean, node string) error {
	if b.Typ == nil {
		return nil
	}
	maxIdx := -1
	for _, c := range b.Children {
		if c.CtorArg > maxIdx {
			maxIdx = c.CtorArg
		}
	}
	if maxIdx < 0 {
		return nil
	}
	argTypes := make([]reflect.Type, maxIdx+1)
	for _, c := range b.Children {
		if c.CtorArg >= 0 {
			argTypes[c.CtorArg] = propGoType(c)
		}
	}
	sel, err := cc.compiler.Beans.SelectExact(b.Typ, argTypes)
	if err != nil {
		return cc.configErr(node, "no suitable constructor for %s: %v", b.Typ.String(), err)
	}
	b.Ctor = sel
	return nil
}

func propGoType(c *property.Child) reflect.Type {
	if c.Acc != nil {
		return c.Acc.Type()
	}
	return c.Prop.GoType()
}

func (cc *compileContext) beanType(spec *config.BeanSpec) (reflect.Type, error) {
	if spec == nil {
		return nil, nil
	}
	if spec.Type != nil {
		t := spec.Type
		if t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		return t, nil
	}
	return cc.compiler.Types.Lookup(spec.TypeName)
}

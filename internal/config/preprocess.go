package config

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/vk/flatbind/internal/beanerr"
	"github.com/vk/flatbind/internal/ctxlog"
)

// Resolver supplies the external lookups preprocessing depends on: type
// names to Go types and scalar types to handler availability.
type Resolver interface {
	ResolveBeanType(name string) error
	ResolveHandler(typeName, format, handlerName string) error
}

// Preprocess is the first compile pass. It validates the tree, applies
// defaults, assigns positions, and verifies the structural invariants the
// parser factory relies on. The tree must not be mutated afterwards.
func Preprocess(ctx context.Context, s *StreamConfig, res Resolver) error {
	logger := ctxlog.FromContext(ctx).With("stream", s.Name)
	logger.Debug("Preprocessing stream configuration.")

	if s.Name == "" {
		return beanerr.Configf("", "", "stream name is required")
	}
	switch s.Format {
	case FormatDelimited, FormatFixedLength, FormatCSV, FormatXML:
	default:
		return beanerr.Configf(s.Name, "", "unknown stream format %q", s.Format)
	}
	switch s.Mode {
	case "":
		s.Mode = ModeReadWrite
	case ModeRead, ModeWrite, ModeReadWrite:
	default:
		return beanerr.Configf(s.Name, "", "unknown stream mode %q", s.Mode)
	}
	switch s.OnUnidentified {
	case "":
		s.OnUnidentified = UnidentifiedError
	case UnidentifiedError, UnidentifiedSkip:
	default:
		return beanerr.Configf(s.Name, "", "unknown unidentified-record policy %q", s.OnUnidentified)
	}
	if s.MaxOccurs == 0 {
		s.MaxOccurs = Unbounded
	}
	if len(s.Children) == 0 {
		return beanerr.Configf(s.Name, "", "stream declares no records")
	}

	p := &preprocessor{stream: s, seen: make(map[Component]int)}
	for _, child := range s.Children {
		if err := p.component(child); err != nil {
			return err
		}
	}
	if err := p.checkIdentifiers(s.Name, s.Children); err != nil {
		return err
	}
	if res != nil {
		if err := p.resolve(res); err != nil {
			return err
		}
	}
	logger.Debug("Preprocessing complete.")
	return nil
}

// DFS colors for cycle and sharing detection.
const (
	colorGray = iota + 1
	colorBlack
)

type preprocessor struct {
	stream *StreamConfig
	seen   map[Component]int

	// flattened views gathered during the walk for later passes
	records []*RecordConfig
	fields  []*FieldConfig
}

func (p *preprocessor) component(c Component) error {
	// Color marking rejects cycles and shared nodes; both would alias
	// compiled parser state.
	if color, ok := p.seen[c]; ok {
		if color == colorGray {
			return beanerr.Configf(p.stream.Name, c.ComponentName(), "configuration tree contains a cycle")
		}
		return beanerr.Configf(p.stream.Name, c.ComponentName(), "configuration node appears more than once")
	}
	p.seen[c] = colorGray
	defer func() { p.seen[c] = colorBlack }()

	switch node := c.(type) {
	case *GroupConfig:
		return p.group(node)
	case *RecordConfig:
		return p.record(node)
	default:
		return beanerr.Configf(p.stream.Name, c.ComponentName(), "component %T may not appear directly under a stream or group", c)
	}
}

func (p *preprocessor) group(g *GroupConfig) error {
	if g.Name == "" {
		return beanerr.Configf(p.stream.Name, "", "group name is required")
	}
	if g.MaxOccurs == 0 {
		g.MaxOccurs = Unbounded
	}
	if g.MaxOccurs != Unbounded && g.MaxOccurs < g.MinOccurs {
		return beanerr.Configf(p.stream.Name, g.Name, "maxOccurs %d is less than minOccurs %d", g.MaxOccurs, g.MinOccurs)
	}
	if len(g.Children) == 0 {
		return beanerr.Configf(p.stream.Name, g.Name, "group declares no children")
	}
	for _, child := range g.Children {
		if err := p.component(child); err != nil {
			return err
		}
	}
	return p.checkIdentifiers(g.Name, g.Children)
}

func (p *preprocessor) record(r *RecordConfig) error {
	if r.Name == "" {
		return beanerr.Configf(p.stream.Name, "", "record name is required")
	}
	if r.MaxOccurs == 0 {
		r.MaxOccurs = Unbounded
	}
	if r.MaxOccurs != Unbounded && r.MaxOccurs < r.MinOccurs {
		return beanerr.Configf(p.stream.Name, r.Name, "maxOccurs %d is less than minOccurs %d", r.MaxOccurs, r.MinOccurs)
	}
	if len(r.Children) == 0 {
		return beanerr.Configf(p.stream.Name, r.Name, "record declares no fields")
	}
	p.records = append(p.records, r)

	rw := &recordWalk{p: p, record: r}
	if err := rw.children(r.Children, r.Bean); err != nil {
		return err
	}
	if err := rw.assignPositions(); err != nil {
		return err
	}
	return rw.checkCtorArgs()
}

// recordWalk accumulates per-record state: declared fields in order and the
// constructor-argument bindings per bean scope.
type recordWalk struct {
	p      *preprocessor
	record *RecordConfig
	fields []*FieldConfig
	// ctorScopes collects ctor-arg indices per bean-owning component.
	ctorScopes []ctorScope
}

type ctorScope struct {
	owner   string
	indices []int
}

func (w *recordWalk) children(children []Component, bean *BeanSpec) error {
	scope := ctorScope{owner: w.record.Name}
	for _, c := range children {
		if color, ok := w.p.seen[c]; ok {
			if color == colorGray {
				return beanerr.Configf(w.p.stream.Name, c.ComponentName(), "configuration tree contains a cycle")
			}
			return beanerr.Configf(w.p.stream.Name, c.ComponentName(), "configuration node appears more than once")
		}
		w.p.seen[c] = colorGray

		switch node := c.(type) {
		case *FieldConfig:
			if err := w.field(node); err != nil {
				return err
			}
			if node.CtorArg > 0 {
				scope.indices = append(scope.indices, node.CtorArg-1)
			}
		case *SegmentConfig:
			if err := w.segment(node); err != nil {
				return err
			}
		default:
			return beanerr.Configf(w.p.stream.Name, c.ComponentName(), "component %T may not appear inside a record", c)
		}
		w.p.seen[c] = colorBlack
	}
	if len(scope.indices) > 0 {
		if bean == nil {
			return beanerr.Configf(w.p.stream.Name, w.record.Name, "constructor arguments declared without a bean binding")
		}
		w.ctorScopes = append(w.ctorScopes, scope)
	}
	return nil
}

func (w *recordWalk) segment(s *SegmentConfig) error {
	if s.Name == "" {
		return beanerr.Configf(w.p.stream.Name, w.record.Name, "segment name is required")
	}
	if s.MaxOccurs == 0 {
		s.MaxOccurs = 1
	}
	if s.MinOccurs == 0 && s.MaxOccurs == 1 && s.Collection == "" {
		s.MinOccurs = 1
	}
	switch s.Collection {
	case "", "list", "map":
	default:
		return beanerr.Configf(w.p.stream.Name, s.Name, "unknown segment collection kind %q", s.Collection)
	}
	if s.Collection == "map" && s.Key == "" {
		return beanerr.Configf(w.p.stream.Name, s.Name, "map segment requires a key field")
	}
	if s.Collection == "map" {
		found := false
		for _, c := range s.Children {
			if f, ok := c.(*FieldConfig); ok && f.Name == s.Key {
				found = true
				break
			}
		}
		if !found {
			return beanerr.Configf(w.p.stream.Name, s.Name, "key field %q is not declared in the segment", s.Key)
		}
	}
	if len(s.Children) == 0 {
		return beanerr.Configf(w.p.stream.Name, s.Name, "segment declares no children")
	}
	sub := &recordWalk{p: w.p, record: w.record}
	if err := sub.children(s.Children, s.Bean); err != nil {
		return err
	}
	w.fields = append(w.fields, sub.fields...)
	w.ctorScopes = append(w.ctorScopes, sub.ctorScopes...)
	return nil
}

func (w *recordWalk) field(f *FieldConfig) error {
	if f.Name == "" && f.Literal == "" {
		return beanerr.Configf(w.p.stream.Name, w.record.Name, "field name is required")
	}
	if f.CtorArg < 0 {
		return beanerr.Configf(w.p.stream.Name, f.Name, "constructor-argument position must be 1 or greater")
	}
	if f.MaxOccurs == 0 {
		f.MaxOccurs = 1
	}
	if f.MaxOccurs != Unbounded && f.MaxOccurs < f.MinOccurs {
		return beanerr.Configf(w.p.stream.Name, f.Name, "maxOccurs %d is less than minOccurs %d", f.MaxOccurs, f.MinOccurs)
	}
	if f.MinOccurs == 0 && f.MaxOccurs == 1 {
		f.MinOccurs = 1
	}
	if f.MaxOccurs != 1 && f.Collection == "" && !f.Unbound {
		f.Collection = "list"
	}
	if f.TypeName == "" {
		f.TypeName = "string"
	}
	if f.Literal != "" {
		f.Unbound = true
		if f.Regex != "" {
			return beanerr.Configf(w.p.stream.Name, f.Name, "literal and regex are mutually exclusive")
		}
	}
	if f.Regex != "" {
		if _, err := regexp.Compile(f.Regex); err != nil {
			return beanerr.Configf(w.p.stream.Name, f.Name, "invalid regex: %v", err)
		}
	}
	if f.MaxLength != 0 && f.MaxLength < f.MinLength {
		return beanerr.Configf(w.p.stream.Name, f.Name, "maxLength %d is less than minLength %d", f.MaxLength, f.MinLength)
	}
	if w.p.stream.Format == FormatFixedLength {
		if f.Length <= 0 {
			return beanerr.Configf(w.p.stream.Name, f.Name, "fixed-length field requires a length")
		}
		if f.Padding == "" {
			f.Padding = " "
		}
		if len(f.Padding) != 1 {
			return beanerr.Configf(w.p.stream.Name, f.Name, "padding must be a single character")
		}
		if f.Justify == "" {
			f.Justify = "left"
		}
		if f.Justify != "left" && f.Justify != "right" {
			return beanerr.Configf(w.p.stream.Name, f.Name, "unknown justify %q", f.Justify)
		}
	}
	w.fields = append(w.fields, f)
	w.p.fields = append(w.p.fields, f)
	return nil
}

// assignPositions fills unset positions from declaration order and checks
// them per the stream format: delimited positions must be 1 or greater and
// unique, fixed-length ranges must not overlap. Declaration order is not
// checked against position order.
func (w *recordWalk) assignPositions() error {
	format := w.p.stream.Format
	if format == FormatFixedLength {
		// Offsets default to packing fields in declaration order.
		next := 0
		for _, f := range w.fields {
			if f.PositionSet {
				next = f.Position + f.Length*maxOccursSpan(f)
				continue
			}
			f.Position = next
			f.PositionSet = true
			next += f.Length * maxOccursSpan(f)
		}
		ranges := make([][2]int, 0, len(w.fields))
		for _, f := range w.fields {
			span := f.Length * maxOccursSpan(f)
			ranges = append(ranges, [2]int{f.Position, f.Position + span})
		}
		sort.Slice(ranges, func(i, j int) bool { return ranges[i][0] < ranges[j][0] })
		for i := 1; i < len(ranges); i++ {
			if ranges[i][0] < ranges[i-1][1] {
				return beanerr.Configf(w.p.stream.Name, w.record.Name, "fixed-length fields overlap at offset %d", ranges[i][0])
			}
		}
		return nil
	}

	// Delimited ordinals are 1-based; an unset position continues right
	// after the span of the previously declared field.
	next := 1
	taken := make(map[int]string)
	for _, f := range w.fields {
		if !f.PositionSet {
			f.Position = next
			f.PositionSet = true
		}
		if f.Position < 1 {
			return beanerr.Configf(w.p.stream.Name, f.Name, "delimited position must be 1 or greater, got %d", f.Position)
		}
		if other, dup := taken[f.Position]; dup {
			return beanerr.Configf(w.p.stream.Name, f.Name, "position %d already used by field %q", f.Position, other)
		}
		taken[f.Position] = f.Name
		span := maxOccursSpan(f)
		for i := 1; i < span; i++ {
			taken[f.Position+i] = f.Name
		}
		next = f.Position + span
	}
	return nil
}

// maxOccursSpan is the number of positions a field may occupy. Unbounded
// repetition consumes the record tail and reserves a single declared slot.
func maxOccursSpan(f *FieldConfig) int {
	if f.MaxOccurs == Unbounded || f.MaxOccurs < 1 {
		return 1
	}
	return f.MaxOccurs
}

// checkCtorArgs verifies that constructor-argument indices per bean scope
// are contiguous 0..N-1.
func (w *recordWalk) checkCtorArgs() error {
	for _, scope := range w.ctorScopes {
		idx := append([]int(nil), scope.indices...)
		sort.Ints(idx)
		for i, v := range idx {
			if v != i {
				return beanerr.Configf(w.p.stream.Name, scope.owner,
					"constructor-argument indices must be contiguous from 0, got %v", idx)
			}
		}
	}
	return nil
}

// checkIdentifiers verifies that identified records are distinguishable
// within their enclosing group: no two records may share the same literal
// identifier at the same position.
func (p *preprocessor) checkIdentifiers(group string, children []Component) error {
	type idKey struct {
		pos     int
		literal string
	}
	seen := make(map[idKey]string)
	for _, c := range children {
		r, ok := c.(*RecordConfig)
		if !ok {
			continue
		}
		for _, rc := range r.Children {
			f, ok := rc.(*FieldConfig)
			if !ok || !f.Identifier || f.Literal == "" {
				continue
			}
			key := idKey{pos: f.Position, literal: f.Literal}
			if other, dup := seen[key]; dup {
				return beanerr.Configf(p.stream.Name, group,
					"records %q and %q share identifier %q at position %d", other, r.Name, f.Literal, f.Position)
			}
			seen[key] = r.Name
		}
	}
	return nil
}

// resolve confirms every named bean type and scalar handler is available.
func (p *preprocessor) resolve(res Resolver) error {
	for _, r := range p.records {
		if r.Bean != nil && r.Bean.Type == nil {
			if err := res.ResolveBeanType(r.Bean.TypeName); err != nil {
				return beanerr.NewConfigError(p.stream.Name, r.Name, err)
			}
		}
	}
	for _, f := range p.fields {
		if err := res.ResolveHandler(f.TypeName, p.stream.Format, f.HandlerName); err != nil {
			return beanerr.NewConfigError(p.stream.Name, f.Name, fmt.Errorf("field type unresolvable: %w", err))
		}
	}
	return nil
}

package schema

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/flatbind/internal/config"
	"github.com/vk/flatbind/internal/ctxlog"
)

// LoadFile parses a mapping file and lowers every stream block into a
// configuration tree.
func LoadFile(ctx context.Context, path string) ([]*config.StreamConfig, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading mapping file.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse mapping file %s: %w", path, diags)
	}

	var mapping MappingFile
	if diags := gohcl.DecodeBody(file.Body, nil, &mapping); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode mapping file %s: %w", path, diags)
	}
	return lower(ctx, &mapping)
}

// LoadBytes parses mapping source held in memory.
func LoadBytes(ctx context.Context, src []byte, filename string) ([]*config.StreamConfig, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse mapping source %s: %w", filename, diags)
	}
	var mapping MappingFile
	if diags := gohcl.DecodeBody(file.Body, nil, &mapping); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode mapping source %s: %w", filename, diags)
	}
	return lower(ctx, &mapping)
}

func lower(ctx context.Context, mapping *MappingFile) ([]*config.StreamConfig, error) {
	logger := ctxlog.FromContext(ctx)
	out := make([]*config.StreamConfig, 0, len(mapping.Streams))
	for _, sb := range mapping.Streams {
		cfg := lowerStream(sb)
		logger.Debug("Lowered stream block.", "stream", cfg.Name, "format", cfg.Format)
		out = append(out, cfg)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("mapping file declares no streams")
	}
	return out, nil
}

func lowerStream(sb *StreamBlock) *config.StreamConfig {
	cfg := &config.StreamConfig{
		Name:           sb.Name,
		Format:         sb.Format,
		Mode:           strOr(sb.Mode, ""),
		Ordered:        boolOr(sb.Ordered, true),
		MinOccurs:      intOr(sb.MinOccurs, 0),
		MaxOccurs:      intOr(sb.MaxOccurs, 0),
		OnUnidentified: strOr(sb.OnUnidentified, ""),
		Delimiter:      strOr(sb.Delimiter, ""),
		Escape:         strOr(sb.Escape, ""),
		Comment:        strOr(sb.Comment, ""),
	}
	for _, gb := range sb.Groups {
		cfg.Children = append(cfg.Children, lowerGroup(gb))
	}
	for _, rb := range sb.Records {
		cfg.Children = append(cfg.Children, lowerRecord(rb))
	}
	return cfg
}

func lowerGroup(gb *GroupBlock) *config.GroupConfig {
	g := &config.GroupConfig{
		Name:      gb.Name,
		MinOccurs: intOr(gb.MinOccurs, 0),
		MaxOccurs: intOr(gb.MaxOccurs, 0),
		Ordered:   boolOr(gb.Ordered, true),
	}
	for _, sub := range gb.Groups {
		g.Children = append(g.Children, lowerGroup(sub))
	}
	for _, rb := range gb.Records {
		g.Children = append(g.Children, lowerRecord(rb))
	}
	return g
}

func lowerRecord(rb *RecordBlock) *config.RecordConfig {
	r := &config.RecordConfig{
		Name:      rb.Name,
		MinOccurs: intOr(rb.MinOccurs, 0),
		MaxOccurs: intOr(rb.MaxOccurs, 0),
	}
	if rb.Class != nil {
		r.Bean = &config.BeanSpec{TypeName: *rb.Class}
	}
	for _, fb := range rb.Fields {
		r.Children = append(r.Children, lowerField(fb))
	}
	for _, sb := range rb.Segments {
		r.Children = append(r.Children, lowerSegment(sb))
	}
	return r
}

func lowerSegment(sb *SegmentBlock) *config.SegmentConfig {
	s := &config.SegmentConfig{
		Name:       sb.Name,
		MinOccurs:  intOr(sb.MinOccurs, 0),
		MaxOccurs:  intOr(sb.MaxOccurs, 0),
		Collection: strOr(sb.Collection, ""),
		Key:        strOr(sb.Key, ""),
	}
	if sb.Class != nil {
		s.Bean = &config.BeanSpec{TypeName: *sb.Class}
	}
	for _, fb := range sb.Fields {
		s.Children = append(s.Children, lowerField(fb))
	}
	for _, sub := range sb.Segments {
		s.Children = append(s.Children, lowerSegment(sub))
	}
	return s
}

func lowerField(fb *FieldBlock) *config.FieldConfig {
	f := &config.FieldConfig{
		Name:         fb.Name,
		TypeName:     strOr(fb.Type, ""),
		HandlerName:  strOr(fb.Handler, ""),
		HandlerProps: fb.Properties,
		Length:       intOr(fb.Length, 0),
		Padding:      strOr(fb.Padding, ""),
		Justify:      strOr(fb.Justify, ""),
		Required:     boolOr(fb.Required, false),
		Default:      strOr(fb.Default, ""),
		Literal:      strOr(fb.Literal, ""),
		Identifier:   boolOr(fb.Identifier, false),
		Regex:        strOr(fb.Regex, ""),
		MinLength:    intOr(fb.MinLength, 0),
		MaxLength:    intOr(fb.MaxLength, 0),
		MinOccurs:    intOr(fb.MinOccurs, 0),
		MaxOccurs:    intOr(fb.MaxOccurs, 0),
		Getter:       strOr(fb.Getter, ""),
		Setter:       strOr(fb.Setter, ""),
		CtorArg:      intOr(fb.CtorArg, 0),
	}
	if fb.Position != nil {
		f.Position = *fb.Position
		f.PositionSet = true
	}
	return f
}

func strOr(p *string, def string) string {
	if p != nil {
		return *p
	}
	return def
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

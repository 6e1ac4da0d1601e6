package parser

import (
	"github.com/vk/flatbind/internal/config"
	"github.com/vk/flatbind/internal/format"
)

// Stream is the root of a compiled parser tree: the record-group layout
// plus the format factory that frames records. A Stream is immutable and
// safe to share across goroutines; per-use state lives in readers and
// writers.
type Stream struct {
	name   string
	Format string
	Mode   string

	// Root is the implicit top-level group holding the stream's records.
	Root *Group

	// Factory frames records for the stream's format.
	Factory format.Factory

	// OnUnidentified selects the policy for unmatched input records.
	OnUnidentified string
}

// NewStream creates a stream parser root.
func NewStream(name string, cfg *config.StreamConfig, factory format.Factory) *Stream {
	root := NewGroup(name, cfg.Ordered)
	root.MinOccurs = cfg.MinOccurs
	root.MaxOccurs = cfg.MaxOccurs
	return &Stream{
		name:           name,
		Format:         cfg.Format,
		Mode:           cfg.Mode,
		Root:           root,
		Factory:        factory,
		OnUnidentified: cfg.OnUnidentified,
	}
}

func (s *Stream) Name() string { return s.name }

// Records walks the group tree collecting every record definition in
// declaration order.
func (s *Stream) Records() []*Record {
	var out []*Record
	var walk func(g *Group)
	walk = func(g *Group) {
		for _, child := range g.Children {
			switch n := child.(type) {
			case *Record:
				out = append(out, n)
			case *Group:
				walk(n)
			}
		}
	}
	walk(s.Root)
	return out
}

// FindRecord locates a record definition by name.
func (s *Stream) FindRecord(name string) *Record {
	for _, r := range s.Records() {
		if r.Name() == name {
			return r
		}
	}
	return nil
}

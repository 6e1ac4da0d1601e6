// Package flatbind is a bidirectional mapping engine between flat textual
// records and Go values. A declarative stream layout, built in code or
// loaded from an HCL mapping file, is compiled once into an immutable
// parser tree; readers unmarshal record streams into registered types and
// writers marshal those values back into text.
package flatbind

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/vk/flatbind/internal/bean"
	"github.com/vk/flatbind/internal/beanerr"
	"github.com/vk/flatbind/internal/compiler"
	"github.com/vk/flatbind/internal/config"
	"github.com/vk/flatbind/internal/ctxlog"
	"github.com/vk/flatbind/internal/fsutil"
	"github.com/vk/flatbind/internal/parser"
	"github.com/vk/flatbind/internal/schema"
	"github.com/vk/flatbind/internal/typehandler"
)

// Re-exported configuration surface.
type (
	// StreamConfig declares a stream layout programmatically.
	StreamConfig = config.StreamConfig
	// Component is a node of the layout tree.
	Component = config.Component
	// GroupConfig groups records repeating together.
	GroupConfig = config.GroupConfig
	// RecordConfig declares one record layout.
	RecordConfig = config.RecordConfig
	// SegmentConfig bundles fields bound to one member.
	SegmentConfig = config.SegmentConfig
	// FieldConfig declares one scalar position.
	FieldConfig = config.FieldConfig
	// BeanSpec names the target type of a record or segment.
	BeanSpec = config.BeanSpec

	// Reader unmarshals records into values.
	Reader = parser.Reader
	// Writer marshals values into records.
	Writer = parser.Writer
	// ErrorHandler intercepts per-record read errors.
	ErrorHandler = parser.ErrorHandler

	// TypeHandler converts one scalar type between text and values.
	TypeHandler = typehandler.Handler

	// ConfigError reports an invalid stream configuration.
	ConfigError = beanerr.ConfigError
	// TypeConversionError reports one field that failed to parse.
	TypeConversionError = beanerr.TypeConversionError
	// UnidentifiedRecordError reports input matching no record definition.
	UnidentifiedRecordError = beanerr.UnidentifiedRecordError
	// OccurrenceError reports min/max occurrence violations.
	OccurrenceError = beanerr.OccurrenceError
	// WriterError reports an aggregate that cannot be marshalled.
	WriterError = beanerr.WriterError
)

// Unbounded marks a maxOccurs with no upper limit.
const Unbounded = config.Unbounded

// StreamFactory compiles stream layouts and hands out readers and writers.
// Registration and compilation happen up front; afterwards the factory and
// its compiled streams are safe for concurrent use.
type StreamFactory struct {
	types    *bean.TypeRegistry
	handlers *typehandler.Registry
	beans    *bean.Factory
	comp     *compiler.Compiler

	mu      sync.RWMutex
	streams map[string]*parser.Stream
}

// NewStreamFactory creates a factory with the built-in type handlers.
func NewStreamFactory() *StreamFactory {
	types := bean.NewTypeRegistry()
	handlers := typehandler.NewDefaultRegistry()
	beans := bean.NewFactory()
	return &StreamFactory{
		types:    types,
		handlers: handlers,
		beans:    beans,
		comp:     compiler.New(types, handlers, beans),
		streams:  make(map[string]*parser.Stream),
	}
}

// RegisterType binds a mapping-file class name to a Go type given by
// prototype, typically a zero-value pointer such as (*Order)(nil).
func (f *StreamFactory) RegisterType(name string, prototype any) {
	f.types.Register(name, prototype)
}

// RegisterConstructor adds a factory func candidate for the type produced
// by fn's first return value.
func (f *StreamFactory) RegisterConstructor(fn any) {
	f.beans.RegisterConstructor(fn, false)
}

// RegisterInternalConstructor adds a candidate only eligible when internal
// constructor access is allowed.
func (f *StreamFactory) RegisterInternalConstructor(fn any) {
	f.beans.RegisterConstructor(fn, true)
}

// AllowInternalConstructors toggles eligibility of internal constructor
// candidates, the analogue of protected constructor access.
func (f *StreamFactory) AllowInternalConstructors(allow bool) {
	f.beans.AllowInternal = allow
}

// RegisterHandler binds a custom type handler factory. Format and name may
// be empty for format-agnostic and anonymous handlers.
func (f *StreamFactory) RegisterHandler(typeName, format, name string, factory func() TypeHandler) {
	f.handlers.Register(typeName, format, name, factory)
}

// Compile validates and compiles a stream layout, making it available to
// CreateReader and CreateWriter. Compiling a second layout under the same
// name replaces the first.
func (f *StreamFactory) Compile(ctx context.Context, cfg *StreamConfig) error {
	stream, err := f.comp.Compile(ctx, cfg)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.streams[stream.Name()] = stream
	f.mu.Unlock()
	ctxlog.FromContext(ctx).Info("Stream compiled.", "stream", stream.Name())
	return nil
}

// Load compiles every stream declared by the mapping path: a single .hcl
// file, or a directory searched recursively for .hcl files.
func (f *StreamFactory) Load(ctx context.Context, path string) error {
	files, err := fsutil.FindMappingFiles(path, ".hcl")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no mapping files found under %s", path)
	}
	for _, file := range files {
		configs, err := schema.LoadFile(ctx, file)
		if err != nil {
			return err
		}
		for _, cfg := range configs {
			if err := f.Compile(ctx, cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadBytes compiles mapping source held in memory.
func (f *StreamFactory) LoadBytes(ctx context.Context, src []byte, filename string) error {
	configs, err := schema.LoadBytes(ctx, src, filename)
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		if err := f.Compile(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

func (f *StreamFactory) stream(name string) (*parser.Stream, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.streams[name]
	if !ok {
		return nil, fmt.Errorf("stream %q is not compiled", name)
	}
	return s, nil
}

// Describe returns the compiled parser tree for diagnostic dumps.
func (f *StreamFactory) Describe(streamName string) (any, error) {
	return f.stream(streamName)
}

// StreamNames lists the compiled streams.
func (f *StreamFactory) StreamNames() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.streams))
	for name := range f.streams {
		names = append(names, name)
	}
	return names
}

// CreateReader opens a reader for the named stream over in. The reader is
// single-threaded; the caller closes it.
func (f *StreamFactory) CreateReader(ctx context.Context, streamName string, in io.Reader) (*Reader, error) {
	s, err := f.stream(streamName)
	if err != nil {
		return nil, err
	}
	return parser.NewReader(ctx, s, in)
}

// CreateWriter opens a writer for the named stream over out. The writer is
// single-threaded; the caller flushes and closes it.
func (f *StreamFactory) CreateWriter(ctx context.Context, streamName string, out io.Writer) (*Writer, error) {
	s, err := f.stream(streamName)
	if err != nil {
		return nil, err
	}
	return parser.NewWriter(ctx, s, out)
}

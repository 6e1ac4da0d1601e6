package parser

import (
	"context"
	"fmt"
	"io"
	"reflect"

	"github.com/google/uuid"

	"github.com/vk/flatbind/internal/beanerr"
	"github.com/vk/flatbind/internal/config"
	"github.com/vk/flatbind/internal/ctxlog"
	"github.com/vk/flatbind/internal/format"
	"github.com/vk/flatbind/internal/property"
)

// Writer marshals aggregates onto an output stream. A Writer is
// single-threaded and owns its underlying record writer until Close.
type Writer struct {
	stream *Stream
	fw     format.Writer
	closer io.Closer

	ctx *MarshallingContext

	id string
}

// NewWriter creates a writer over out. When out implements io.Closer,
// Close releases it after a final flush.
func NewWriter(ctx context.Context, stream *Stream, out io.Writer) (*Writer, error) {
	if stream.Mode == config.ModeRead {
		return nil, fmt.Errorf("stream %q is read-only", stream.Name())
	}
	fw, err := stream.Factory.CreateWriter(out)
	if err != nil {
		return nil, fmt.Errorf("creating %s writer: %w", stream.Format, err)
	}
	w := &Writer{
		stream: stream,
		fw:     fw,
		ctx:    NewMarshallingContext(ctx, stream.Factory.Tokenized()),
		id:     uuid.NewString(),
	}
	if c, ok := out.(io.Closer); ok {
		w.closer = c
	}
	ctxlog.FromContext(ctx).Debug("Writer created.", "stream", stream.Name(), "writer_id", w.id)
	return w, nil
}

// Write marshals value using the record definition selected by the value's
// type, falling back to the stream's single record.
func (w *Writer) Write(value any) error {
	def, err := w.selectRecord(value)
	if err != nil {
		return err
	}
	return w.writeRecord(def, value)
}

// WriteRecord marshals value using the named record definition.
func (w *Writer) WriteRecord(name string, value any) error {
	def := w.stream.FindRecord(name)
	if def == nil {
		return &beanerr.WriterError{RecordName: name, Err: fmt.Errorf("stream %q declares no record %q", w.stream.Name(), name)}
	}
	return w.writeRecord(def, value)
}

func (w *Writer) writeRecord(def *Record, value any) error {
	rec, err := def.Marshal(w.ctx, reflect.ValueOf(value))
	if err != nil {
		return err
	}
	if err := w.fw.Write(rec); err != nil {
		return &beanerr.WriterError{RecordName: def.Name(), Err: err}
	}
	return nil
}

// selectRecord picks the definition whose bound bean type matches the
// value. A stream with one record always uses it.
func (w *Writer) selectRecord(value any) (*Record, error) {
	records := w.stream.Records()
	if len(records) == 1 {
		return records[0], nil
	}
	t := reflect.TypeOf(value)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	for _, def := range records {
		b, ok := def.Property.(*property.Bean)
		if !ok || b.Typ == nil {
			continue
		}
		if b.Typ == t {
			return def, nil
		}
	}
	return nil, &beanerr.WriterError{
		RecordName: fmt.Sprintf("%T", value),
		Err:        fmt.Errorf("no record definition matches type %T", value),
	}
}

// Flush forces buffered records onto the underlying stream.
func (w *Writer) Flush() error {
	return w.fw.Flush()
}

// Close flushes and releases the underlying stream when it is closable.
func (w *Writer) Close() error {
	if err := w.fw.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

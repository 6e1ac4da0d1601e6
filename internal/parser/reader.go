package parser

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/vk/flatbind/internal/beanerr"
	"github.com/vk/flatbind/internal/config"
	"github.com/vk/flatbind/internal/ctxlog"
	"github.com/vk/flatbind/internal/format"
)

// ErrorHandler inspects a per-record error. Returning nil skips the record
// and continues reading; returning an error stops the reader with it.
type ErrorHandler func(err error) error

// Reader unmarshals records from an input stream. A Reader is
// single-threaded and owns its underlying record reader until Close.
type Reader struct {
	stream *Stream
	fr     format.Reader
	closer io.Closer

	ctx    *UnmarshallingContext
	state  *GroupState
	filled bool

	recordName string
	lineNumber int

	// ErrorHandler receives type-conversion, unidentified-record and
	// occurrence errors. When nil, errors stop the reader.
	ErrorHandler ErrorHandler

	id string
}

// NewReader creates a reader over in. When in implements io.Closer, Close
// releases it.
func NewReader(ctx context.Context, stream *Stream, in io.Reader) (*Reader, error) {
	if stream.Mode == config.ModeWrite {
		return nil, fmt.Errorf("stream %q is write-only", stream.Name())
	}
	fr, err := stream.Factory.CreateReader(in)
	if err != nil {
		return nil, fmt.Errorf("creating %s reader: %w", stream.Format, err)
	}
	r := &Reader{
		stream: stream,
		fr:     fr,
		ctx:    NewUnmarshallingContext(ctx, stream.Factory.Tokenized()),
		state:  NewGroupState(),
		id:     uuid.NewString(),
	}
	if c, ok := in.(io.Closer); ok {
		r.closer = c
	}
	ctxlog.FromContext(ctx).Debug("Reader created.", "stream", stream.Name(), "reader_id", r.id)
	return r, nil
}

// RecordName is the name of the last record read.
func (r *Reader) RecordName() string { return r.recordName }

// LineNumber is the input line of the last record read.
func (r *Reader) LineNumber() int { return r.lineNumber }

// Read unmarshals the next aggregate, returning io.EOF at end of input.
// Records the error handler elects to skip are silently consumed.
func (r *Reader) Read() (any, error) {
	logger := ctxlog.FromContext(r.ctx.Ctx).With("stream", r.stream.Name(), "reader_id", r.id)
	for {
		rec, err := r.fr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if closeErr := r.stream.Root.Close(r.state, r.lineNumber); closeErr != nil {
					if handled := r.handle(closeErr); handled != nil {
						return nil, handled
					}
				}
				return nil, io.EOF
			}
			return nil, err
		}
		r.lineNumber = rec.LineNumber
		r.ctx.Reset(rec)

		def, err := r.stream.Root.Match(r.state, r.ctx)
		if err != nil {
			logger.Warn("Record rejected by group constraints.", "line", rec.LineNumber, "error", err)
			if handled := r.handle(err); handled != nil {
				return nil, handled
			}
			continue
		}
		if def == nil {
			uerr := &beanerr.UnidentifiedRecordError{
				StreamName: r.stream.Name(),
				LineNumber: rec.LineNumber,
				Text:       recordText(rec),
			}
			if r.stream.OnUnidentified == config.UnidentifiedSkip {
				logger.Debug("Skipping unidentifiable record.", "line", rec.LineNumber)
				continue
			}
			logger.Warn("Unidentifiable record.", "line", rec.LineNumber)
			if handled := r.handle(uerr); handled != nil {
				return nil, handled
			}
			continue
		}

		r.recordName = def.Name()
		value, ok, err := def.Unmarshal(r.ctx)
		if err != nil {
			return nil, err
		}
		if len(r.ctx.FieldErrors) > 0 {
			ferr := errors.Join(r.ctx.FieldErrors...)
			logger.Warn("Record had field conversion errors.", "record", def.Name(), "line", rec.LineNumber, "count", len(r.ctx.FieldErrors))
			if handled := r.handle(ferr); handled != nil {
				return nil, handled
			}
			continue
		}
		if !ok {
			// A record whose properties were all absent yields nothing.
			continue
		}
		return value.Interface(), nil
	}
}

// handle routes an error through the configured handler. A nil result
// means the record is skipped.
func (r *Reader) handle(err error) error {
	if r.ErrorHandler == nil {
		return err
	}
	return r.ErrorHandler(err)
}

// Close releases the underlying stream when it is closable.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func recordText(rec *format.Record) string {
	if rec.Text != "" {
		return rec.Text
	}
	text := ""
	for i, f := range rec.Fields {
		if i > 0 {
			text += ","
		}
		text += f
	}
	return text
}

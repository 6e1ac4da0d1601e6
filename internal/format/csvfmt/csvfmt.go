// Package csvfmt frames RFC 4180 CSV records over encoding/csv, with
// quoting and embedded newlines handled by the standard library.
package csvfmt

import (
	"encoding/csv"
	"io"

	"github.com/vk/flatbind/internal/format"
)

// Options configure CSV framing.
type Options struct {
	// Comma separates fields; defaults to ','.
	Comma rune
	// Comment skips lines starting with this rune.
	Comment rune
}

// Factory creates CSV readers and writers.
type Factory struct {
	Options Options
}

// NewFactory creates a factory with defaulted options.
func NewFactory(opts Options) *Factory {
	if opts.Comma == 0 {
		opts.Comma = ','
	}
	return &Factory{Options: opts}
}

func (f *Factory) Name() string    { return "csv" }
func (f *Factory) Tokenized() bool { return true }

func (f *Factory) CreateReader(r io.Reader) (format.Reader, error) {
	cr := csv.NewReader(r)
	cr.Comma = f.Options.Comma
	cr.Comment = f.Options.Comment
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return &reader{r: cr}, nil
}

func (f *Factory) CreateWriter(w io.Writer) (format.Writer, error) {
	cw := csv.NewWriter(w)
	cw.Comma = f.Options.Comma
	return &writer{w: cw}, nil
}

type reader struct {
	r *csv.Reader
}

func (r *reader) Read() (*format.Record, error) {
	fields, err := r.r.Read()
	if err != nil {
		return nil, err
	}
	line, _ := r.r.FieldPos(0)
	return &format.Record{LineNumber: line, Fields: fields}, nil
}

type writer struct {
	w *csv.Writer
}

func (w *writer) Write(rec *format.Record) error {
	return w.w.Write(rec.Fields)
}

func (w *writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

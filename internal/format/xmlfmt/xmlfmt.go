// Package xmlfmt frames flat-element XML records: each record is one child
// element of the document root, and each field is one child element of the
// record holding character data. Nested structure beyond that is out of
// scope for the engine's XML support.
package xmlfmt

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/vk/flatbind/internal/format"
)

// Options configure XML framing.
type Options struct {
	// RootElement wraps all records; defaults to "records".
	RootElement string
}

// Factory creates XML readers and writers.
type Factory struct {
	Options Options
}

// NewFactory creates a factory with defaulted options.
func NewFactory(opts Options) *Factory {
	if opts.RootElement == "" {
		opts.RootElement = "records"
	}
	return &Factory{Options: opts}
}

func (f *Factory) Name() string    { return "xml" }
func (f *Factory) Tokenized() bool { return true }

func (f *Factory) CreateReader(r io.Reader) (format.Reader, error) {
	return &reader{d: xml.NewDecoder(r)}, nil
}

func (f *Factory) CreateWriter(w io.Writer) (format.Writer, error) {
	return &writer{w: w, root: f.Options.RootElement}, nil
}

type reader struct {
	d     *xml.Decoder
	depth int
}

func (r *reader) Read() (*format.Record, error) {
	// Skip to the next element at record depth (directly under the root).
	for {
		tok, err := r.d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			r.depth++
			if r.depth == 2 {
				return r.readRecord(t)
			}
		case xml.EndElement:
			r.depth--
		}
	}
}

func (r *reader) readRecord(start xml.StartElement) (*format.Record, error) {
	rec := &format.Record{
		Name:       start.Name.Local,
		LineNumber: lineOf(r.d),
	}
	var fieldName string
	var text strings.Builder
	depth := 0
	for {
		tok, err := r.d.Token()
		if err != nil {
			return nil, fmt.Errorf("unterminated record element %q: %w", rec.Name, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				fieldName = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 1 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 0 {
				r.depth--
				return rec, nil
			}
			if depth == 1 {
				rec.Names = append(rec.Names, fieldName)
				rec.Fields = append(rec.Fields, text.String())
			}
			depth--
		}
	}
}

func lineOf(d *xml.Decoder) int {
	// InputPos reports the position after the current token.
	line, _ := d.InputPos()
	return line
}

type writer struct {
	w      io.Writer
	root   string
	opened bool
}

func (w *writer) Write(rec *format.Record) error {
	if !w.opened {
		if _, err := fmt.Fprintf(w.w, "<%s>\n", w.root); err != nil {
			return err
		}
		w.opened = true
	}
	var b strings.Builder
	fmt.Fprintf(&b, "  <%s>", rec.Name)
	for i, field := range rec.Fields {
		name := "field"
		if i < len(rec.Names) && rec.Names[i] != "" {
			name = rec.Names[i]
		}
		fmt.Fprintf(&b, "<%s>%s</%s>", name, escapeText(field), name)
	}
	fmt.Fprintf(&b, "</%s>\n", rec.Name)
	_, err := io.WriteString(w.w, b.String())
	return err
}

func escapeText(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}

func (w *writer) Flush() error {
	if w.opened {
		if _, err := fmt.Fprintf(w.w, "</%s>\n", w.root); err != nil {
			return err
		}
		w.opened = false
	}
	return nil
}

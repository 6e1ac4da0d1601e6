package typehandler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// XMLDateTimeHandler parses the W3C XML Schema lexical forms for date, time
// and dateTime. A strict layout set anchored to yyyy-MM-dd is tried first;
// when Lenient is set, partial forms (time-only, zone-only) are accepted as
// a fallback with an implicit 1970-01-01 date. The time variant always
// replaces the date portion with the Unix epoch.
type XMLDateTimeHandler struct {
	// Kind selects which lexical space applies: "date", "time" or "dateTime".
	Kind string
	// Lenient enables the fallback layout set.
	Lenient bool
	// TimeZoneAllowed rejects values carrying a non-zero zone offset when
	// false. The offset is taken from the value's total zone offset.
	TimeZoneAllowed bool
	// OutputPattern overrides the layout used by Format.
	OutputPattern string
}

// NewXMLDateHandler returns a handler for xs:date values.
func NewXMLDateHandler() *XMLDateTimeHandler {
	return &XMLDateTimeHandler{Kind: "date", TimeZoneAllowed: true, OutputPattern: "2006-01-02"}
}

// NewXMLTimeHandler returns a handler for xs:time values.
func NewXMLTimeHandler() *XMLDateTimeHandler {
	return &XMLDateTimeHandler{Kind: "time", TimeZoneAllowed: true, OutputPattern: "15:04:05"}
}

// NewXMLDateTimeHandler returns a handler for xs:dateTime values.
func NewXMLDateTimeHandler() *XMLDateTimeHandler {
	return &XMLDateTimeHandler{Kind: "dateTime", TimeZoneAllowed: true, OutputPattern: "2006-01-02T15:04:05Z07:00"}
}

// Layout sets per kind. The strict sets anchor on a full date (or full time
// for the time kind); lenient sets accept partial forms.
var (
	xmlDateStrict = []string{
		"2006-01-02",
		"2006-01-02Z07:00",
	}
	xmlTimeStrict = []string{
		"15:04:05",
		"15:04:05.999999999",
		"15:04:05Z07:00",
		"15:04:05.999999999Z07:00",
	}
	xmlDateTimeStrict = []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05.999999999Z07:00",
	}
	xmlLenient = []string{
		"2006-01-02",
		"2006-01-02T15:04",
		"15:04",
		"15:04Z07:00",
		"Z07:00",
	}
)

func (h *XMLDateTimeHandler) strictLayouts() []string {
	switch h.Kind {
	case "date":
		return xmlDateStrict
	case "time":
		return xmlTimeStrict
	default:
		return xmlDateTimeStrict
	}
}

func (h *XMLDateTimeHandler) Parse(text string) (cty.Value, error) {
	if text == "" {
		return cty.NullVal(TimeType), nil
	}
	t, err := parseFirst(h.strictLayouts(), text)
	if err != nil && h.Lenient {
		t, err = parseFirst(xmlLenient, text)
		if err == nil && t.Year() == 0 {
			// Partial forms carry no date; anchor them on 1970-01-01.
			t = time.Date(1970, time.January, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
		}
	}
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid %s value %q", h.Kind, text)
	}
	if !h.TimeZoneAllowed {
		if _, offset := t.Zone(); offset != 0 {
			return cty.NilVal, fmt.Errorf("%s value %q carries a time zone offset", h.Kind, text)
		}
	}
	if h.Kind == "time" {
		t = time.Date(1970, time.January, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	}
	return TimeVal(t), nil
}

func parseFirst(layouts []string, text string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("no layout matched %q", text)
}

func (h *XMLDateTimeHandler) Format(v cty.Value) (string, bool, error) {
	if v.IsNull() {
		return "", false, nil
	}
	return TimeFromVal(v).Format(h.OutputPattern), true, nil
}

func (h *XMLDateTimeHandler) TargetType() cty.Type { return TimeType }

func (h *XMLDateTimeHandler) Configure(props map[string]string) error {
	for k, val := range props {
		switch k {
		case "lenient":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid lenient value %q: %w", val, err)
			}
			h.Lenient = b
		case "timeZoneAllowed":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid timeZoneAllowed value %q: %w", val, err)
			}
			h.TimeZoneAllowed = b
		case "pattern":
			h.OutputPattern = val
		default:
			return fmt.Errorf("unknown property %q for xml date handler", k)
		}
	}
	return nil
}

package typehandler

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Canonical type names accepted in mapping files.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
	TypeTime   = "time"
)

// CtyType maps a mapping-file type name to its property value type.
func CtyType(typeName string) (cty.Type, error) {
	switch typeName {
	case TypeString, "char":
		return cty.String, nil
	case TypeInt, "byte", "short", "long":
		return cty.Number, nil
	case TypeFloat, "double", "decimal":
		return cty.Number, nil
	case TypeBool:
		return cty.Bool, nil
	case TypeTime, "date", "datetime":
		return TimeType, nil
	}
	return cty.NilType, fmt.Errorf("unknown field type %q", typeName)
}

func registerBuiltins(r *Registry) {
	r.Register(TypeString, "", "", func() Handler { return &StringHandler{} })
	r.Register("char", "", "", func() Handler { return &StringHandler{Trim: false} })
	r.Register(TypeInt, "", "", func() Handler { return &IntHandler{} })
	r.Register("byte", "", "", func() Handler { return &IntHandler{} })
	r.Register("short", "", "", func() Handler { return &IntHandler{} })
	r.Register("long", "", "", func() Handler { return &IntHandler{} })
	r.Register(TypeFloat, "", "", func() Handler { return &FloatHandler{} })
	r.Register("double", "", "", func() Handler { return &FloatHandler{} })
	r.Register("decimal", "", "", func() Handler { return &FloatHandler{} })
	r.Register(TypeBool, "", "", func() Handler { return &BoolHandler{} })
	r.Register(TypeTime, "", "", func() Handler { return &TimeHandler{Pattern: time.RFC3339} })
	r.Register("date", "", "", func() Handler { return &TimeHandler{Pattern: "2006-01-02"} })
	r.Register("datetime", "", "", func() Handler { return &TimeHandler{Pattern: "2006-01-02 15:04:05"} })

	// XML streams carry W3C schema lexical date/time forms.
	r.Register(TypeTime, "xml", "", func() Handler { return NewXMLDateTimeHandler() })
	r.Register("date", "xml", "", func() Handler { return NewXMLDateHandler() })
	r.Register("datetime", "xml", "", func() Handler { return NewXMLDateTimeHandler() })

	// Named opt-in handlers.
	r.Register(TypeString, "", "escape", func() Handler { return &EscapeStringHandler{} })
	r.Register("char", "", "escapeChar", func() Handler { return &EscapeStringHandler{Single: true} })
	r.Register(TypeBool, "", "booleanInteger", func() Handler { return NewBooleanIntegerHandler() })
	r.Register(TypeTime, "xml", "xmlTime", func() Handler { return NewXMLTimeHandler() })
	r.Register(TypeTime, "xml", "xmlDate", func() Handler { return NewXMLDateHandler() })
	r.Register(TypeTime, "xml", "xmlDateTime", func() Handler { return NewXMLDateTimeHandler() })
}

// StringHandler passes text through unchanged. Trim strips surrounding
// whitespace on parse.
type StringHandler struct {
	Trim bool
}

func (h *StringHandler) Parse(text string) (cty.Value, error) {
	if text == "" {
		return cty.NullVal(cty.String), nil
	}
	if h.Trim {
		text = trimSpace(text)
	}
	return cty.StringVal(text), nil
}

func (h *StringHandler) Format(v cty.Value) (string, bool, error) {
	if v.IsNull() {
		return "", false, nil
	}
	return v.AsString(), true, nil
}

func (h *StringHandler) TargetType() cty.Type { return cty.String }

func (h *StringHandler) Configure(props map[string]string) error {
	for k, val := range props {
		switch k {
		case "trim":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid trim value %q: %w", val, err)
			}
			h.Trim = b
		default:
			return fmt.Errorf("unknown property %q for string handler", k)
		}
	}
	return nil
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

// IntHandler converts whole numbers.
type IntHandler struct{}

func (h *IntHandler) Parse(text string) (cty.Value, error) {
	if text == "" {
		return cty.NullVal(cty.Number), nil
	}
	n, err := strconv.ParseInt(trimSpace(text), 10, 64)
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid integer %q: %w", text, err)
	}
	return cty.NumberIntVal(n), nil
}

func (h *IntHandler) Format(v cty.Value) (string, bool, error) {
	if v.IsNull() {
		return "", false, nil
	}
	n, _ := v.AsBigFloat().Int64()
	return strconv.FormatInt(n, 10), true, nil
}

func (h *IntHandler) TargetType() cty.Type { return cty.Number }

// FloatHandler converts floating point numbers.
type FloatHandler struct{}

func (h *FloatHandler) Parse(text string) (cty.Value, error) {
	if text == "" {
		return cty.NullVal(cty.Number), nil
	}
	f, err := strconv.ParseFloat(trimSpace(text), 64)
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid number %q: %w", text, err)
	}
	return cty.NumberVal(big.NewFloat(f)), nil
}

func (h *FloatHandler) Format(v cty.Value) (string, bool, error) {
	if v.IsNull() {
		return "", false, nil
	}
	f, _ := v.AsBigFloat().Float64()
	return strconv.FormatFloat(f, 'g', -1, 64), true, nil
}

func (h *FloatHandler) TargetType() cty.Type { return cty.Number }

// BoolHandler converts the literals "true" and "false" in any casing
// accepted by strconv.ParseBool.
type BoolHandler struct{}

func (h *BoolHandler) Parse(text string) (cty.Value, error) {
	if text == "" {
		return cty.NullVal(cty.Bool), nil
	}
	b, err := strconv.ParseBool(trimSpace(text))
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid boolean %q: %w", text, err)
	}
	return cty.BoolVal(b), nil
}

func (h *BoolHandler) Format(v cty.Value) (string, bool, error) {
	if v.IsNull() {
		return "", false, nil
	}
	return strconv.FormatBool(v.True()), true, nil
}

func (h *BoolHandler) TargetType() cty.Type { return cty.Bool }

// TimeHandler converts timestamps using a Go reference layout pattern.
type TimeHandler struct {
	Pattern string
	loc     *time.Location
}

func (h *TimeHandler) Parse(text string) (cty.Value, error) {
	if text == "" {
		return cty.NullVal(TimeType), nil
	}
	loc := h.loc
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(h.Pattern, trimSpace(text), loc)
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid timestamp %q: %w", text, err)
	}
	return TimeVal(t), nil
}

func (h *TimeHandler) Format(v cty.Value) (string, bool, error) {
	if v.IsNull() {
		return "", false, nil
	}
	return TimeFromVal(v).Format(h.Pattern), true, nil
}

func (h *TimeHandler) TargetType() cty.Type { return TimeType }

func (h *TimeHandler) Configure(props map[string]string) error {
	for k, val := range props {
		switch k {
		case "pattern":
			h.Pattern = val
		case "timezone":
			loc, err := time.LoadLocation(val)
			if err != nil {
				return fmt.Errorf("invalid timezone %q: %w", val, err)
			}
			h.loc = loc
		default:
			return fmt.Errorf("unknown property %q for time handler", k)
		}
	}
	return nil
}

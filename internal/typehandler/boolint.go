package typehandler

import (
	"fmt"
	"strconv"

	"github.com/zclconf/go-cty/cty"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// BooleanIntegerHandler maps booleans to integer literals. An input equal to
// TrueValue parses as true, FalseValue as false, anything else fails.
// Formatting emits the configured literal under the configured culture.
type BooleanIntegerHandler struct {
	TrueValue  int64
	FalseValue int64
	NullValue  string
	printer    *message.Printer
}

// NewBooleanIntegerHandler returns a handler mapping 1 to true and 0 to
// false with an empty null literal.
func NewBooleanIntegerHandler() *BooleanIntegerHandler {
	return &BooleanIntegerHandler{TrueValue: 1, FalseValue: 0}
}

func (h *BooleanIntegerHandler) Parse(text string) (cty.Value, error) {
	if text == "" || text == h.NullValue {
		return cty.NullVal(cty.Bool), nil
	}
	n, err := strconv.ParseInt(trimSpace(text), 10, 64)
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid boolean integer %q: %w", text, err)
	}
	switch n {
	case h.TrueValue:
		return cty.True, nil
	case h.FalseValue:
		return cty.False, nil
	}
	return cty.NilVal, fmt.Errorf("boolean integer %d matches neither %d nor %d", n, h.TrueValue, h.FalseValue)
}

func (h *BooleanIntegerHandler) Format(v cty.Value) (string, bool, error) {
	if v.IsNull() {
		if h.NullValue == "" {
			return "", false, nil
		}
		return h.NullValue, true, nil
	}
	n := h.FalseValue
	if v.True() {
		n = h.TrueValue
	}
	if h.printer != nil {
		return h.printer.Sprintf("%d", n), true, nil
	}
	return strconv.FormatInt(n, 10), true, nil
}

func (h *BooleanIntegerHandler) TargetType() cty.Type { return cty.Bool }

func (h *BooleanIntegerHandler) Configure(props map[string]string) error {
	for k, val := range props {
		switch k {
		case "trueValue", "falseValue":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", k, val, err)
			}
			if k == "trueValue" {
				h.TrueValue = n
			} else {
				h.FalseValue = n
			}
		case "nullValue":
			h.NullValue = val
		case "culture":
			tag, err := language.Parse(val)
			if err != nil {
				return fmt.Errorf("invalid culture %q: %w", val, err)
			}
			h.printer = message.NewPrinter(tag)
		default:
			return fmt.Errorf("unknown property %q for boolean integer handler", k)
		}
	}
	return nil
}

package typehandler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flatbind/internal/beanerr"
)

// EscapeStringHandler decodes backslash escape sequences while parsing
// string and single-character fields. Recognized sequences are \\, \n, \r,
// \t and \f, plus \0 when null escaping is enabled; any other escaped
// character decodes to itself.
//
// Formatting is one-way: the marshalling path never re-escapes, so Format
// returns beanerr.ErrNotSupported.
type EscapeStringHandler struct {
	// Single restricts parsed output to exactly one character.
	Single bool
	// AllowNull enables the \0 sequence, decoding to NUL.
	AllowNull bool
}

func (h *EscapeStringHandler) Parse(text string) (cty.Value, error) {
	if text == "" {
		return cty.NullVal(cty.String), nil
	}
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '\\' || i+1 == len(text) {
			b.WriteByte(c)
			continue
		}
		i++
		switch text[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'f':
			b.WriteByte('\f')
		case '0':
			if h.AllowNull {
				b.WriteByte(0)
			} else {
				b.WriteByte('0')
			}
		default:
			b.WriteByte(text[i])
		}
	}
	s := b.String()
	if h.Single && len([]rune(s)) != 1 {
		return cty.NilVal, fmt.Errorf("expected a single character, got %q", s)
	}
	return cty.StringVal(s), nil
}

func (h *EscapeStringHandler) Format(v cty.Value) (string, bool, error) {
	return "", false, beanerr.ErrNotSupported
}

func (h *EscapeStringHandler) TargetType() cty.Type { return cty.String }

func (h *EscapeStringHandler) Configure(props map[string]string) error {
	for k, val := range props {
		switch k {
		case "allowNull":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid allowNull value %q: %w", val, err)
			}
			h.AllowNull = b
		default:
			return fmt.Errorf("unknown property %q for escape handler", k)
		}
	}
	return nil
}

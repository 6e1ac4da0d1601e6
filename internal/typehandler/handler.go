// Package typehandler converts between field text and typed property values.
//
// A Handler owns one scalar conversion: Parse turns record text into a
// cty.Value and Format renders a cty.Value back into record text. Handlers
// are looked up through a Registry keyed by target type, stream format and
// handler name, most specific key first.
package typehandler

import (
	"fmt"
	"reflect"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// TimeType is the capsule type carrying time.Time property values. cty has
// no native temporal type, so date and time handlers produce capsules and
// accessors unwrap them.
var TimeType = cty.Capsule("time", reflect.TypeOf(time.Time{}))

// TimeVal wraps t in a TimeType capsule value.
func TimeVal(t time.Time) cty.Value {
	c := t
	return cty.CapsuleVal(TimeType, &c)
}

// TimeFromVal unwraps a TimeType capsule value.
func TimeFromVal(v cty.Value) time.Time {
	return *(v.EncapsulatedValue().(*time.Time))
}

// Handler converts one scalar type between record text and property values.
type Handler interface {
	// Parse converts field text into a value. Empty text yields a null value
	// of the target type. A malformed value yields an error.
	Parse(text string) (cty.Value, error)

	// Format renders a value as field text. ok reports whether the field is
	// present; a false ok marks the field absent from the output record.
	Format(v cty.Value) (text string, ok bool, err error)

	// TargetType is the cty type this handler produces and consumes.
	TargetType() cty.Type
}

// Configurable is implemented by handlers that accept mapping-file
// properties such as a pattern, a lenient flag or a culture.
type Configurable interface {
	Configure(props map[string]string) error
}

// configure applies props to h when h supports configuration. Handlers that
// take no properties reject a non-empty props map.
func configure(h Handler, props map[string]string) (Handler, error) {
	if len(props) == 0 {
		return h, nil
	}
	c, ok := h.(Configurable)
	if !ok {
		return nil, fmt.Errorf("handler for %s does not accept properties", h.TargetType().FriendlyName())
	}
	if err := c.Configure(props); err != nil {
		return nil, err
	}
	return h, nil
}

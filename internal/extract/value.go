package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is one extracted measurement: either a number or absent.
// The zero Value is absent.
type Value struct {
	v       float64
	present bool
}

// Present wraps a located number.
func Present(v float64) Value { return Value{v: v, present: true} }

// Absent is the explicit "no value" marker.
func Absent() Value { return Value{} }

// Float returns the number and whether it is present.
func (x Value) Float() (float64, bool) { return x.v, x.present }

func (x Value) IsAbsent() bool { return !x.present }

func (x Value) String() string {
	if !x.present {
		return "absent"
	}
	return strconv.FormatFloat(x.v, 'f', -1, 64)
}

// MarshalJSON encodes an absent value as null.
func (x Value) MarshalJSON() ([]byte, error) {
	if !x.present {
		return []byte("null"), nil
	}
	return json.Marshal(x.v)
}

func (x *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*x = Absent()
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("extract value: %w", err)
	}
	*x = Present(f)
	return nil
}

// Vector holds one Value per requested field, in request order.
type Vector []Value

// Complete reports whether every value is present.
func (vec Vector) Complete() bool {
	for _, v := range vec {
		if v.IsAbsent() {
			return false
		}
	}
	return true
}

// AbsentIndexes returns the positions of absent values.
func (vec Vector) AbsentIndexes() []int {
	var out []int
	for i, v := range vec {
		if v.IsAbsent() {
			out = append(out, i)
		}
	}
	return out
}

// Floats returns the plain numbers; ok is false when any value is absent.
func (vec Vector) Floats() (out []float64, ok bool) {
	out = make([]float64, len(vec))
	for i, v := range vec {
		f, present := v.Float()
		if !present {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// Value is a measurement that is either present with a number or absent.
// A measured zero is Present(0), never Absent.
type Value struct {
	v  float64
	ok bool
}

// Present wraps a measured number.
func Present(v float64) Value {
	return Value{v: v, ok: true}
}

// Absent returns the marker for "no valid value available".
func Absent() Value {
	return Value{}
}

// Get returns the number and whether it is present.
func (v Value) Get() (float64, bool) {
	return v.v, v.ok
}

// IsAbsent reports whether no value is available.
func (v Value) IsAbsent() bool {
	return !v.ok
}

func (v Value) String() string {
	if !v.ok {
		return "absent"
	}
	return strconv.FormatFloat(v.v, 'f', -1, 64)
}

// MarshalJSON encodes absent values as null so consumers can tell missing from zero.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Absent()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	*v = Present(f)
	return nil
}

// meanOf averages the present values, returning Absent when there are none.
func meanOf(values []float64) Value {
	if len(values) == 0 {
		return Absent()
	}
	return Present(stat.Mean(values, nil))
}

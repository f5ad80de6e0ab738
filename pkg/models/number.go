package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Number is a numeric field that model output sometimes renders as a
// string such as "$1,234". Unparseable strings decode as zero.
type Number float64

// UnmarshalJSON accepts JSON numbers and formatted numeric strings.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, _ := ParseAmount(s)
		*n = Number(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// Int is an integer field such as a year or page number that model output
// sometimes quotes ("2023") or renders as a float (2023.0).
type Int int

// UnmarshalJSON accepts integers, floats and numeric strings. Unparseable
// strings decode as zero.
func (i *Int) UnmarshalJSON(data []byte) error {
	var n Number
	if err := n.UnmarshalJSON(data); err != nil {
		return err
	}
	*i = Int(n)
	return nil
}

// Int64 truncates the number.
func (n *Number) Int64() int64 {
	if n == nil {
		return 0
	}
	return int64(*n)
}

// Float returns the value, zero for nil.
func (n *Number) Float() float64 {
	if n == nil {
		return 0
	}
	return float64(*n)
}

// ParseAmount parses "$1,234.50", "23,252" or "12%" style cell values.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// AnyNumber converts a decoded JSON value into a float.
func AnyNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		return ParseAmount(t)
	}
	return 0, false
}

package dataset

import (
	"strings"

	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

// DType is the storage type of a column.
type DType int

const (
	// Object is raw text as read from the file.
	Object DType = iota
	// Categorical holds a finite set of string levels.
	Categorical
	// Integer holds whole numbers, stored as float64.
	Integer
	// Float holds real numbers.
	Float
	// Temporal holds timestamps, stored as Unix seconds.
	Temporal
)

var dtypeNames = map[DType]string{
	Object:      "object",
	Categorical: "categorical",
	Integer:     "integer",
	Float:       "float",
	Temporal:    "temporal",
}

func (d DType) String() string {
	if s, ok := dtypeNames[d]; ok {
		return s
	}
	return "unknown"
}

// Numeric reports whether values of this dtype can enter a design matrix directly.
func (d DType) Numeric() bool {
	return d == Integer || d == Float || d == Temporal
}

// MarshalText implements encoding.TextMarshaler.
func (d DType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DType) UnmarshalText(text []byte) error {
	v, err := ParseDType(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDType accepts the canonical names plus a few common aliases.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "object", "string", "str":
		return Object, nil
	case "categorical", "category":
		return Categorical, nil
	case "integer", "int", "int64":
		return Integer, nil
	case "float", "float64", "double":
		return Float, nil
	case "temporal", "datetime", "date", "time":
		return Temporal, nil
	}
	return Object, errors.NewValidationError("dtype", "unknown dtype", s)
}

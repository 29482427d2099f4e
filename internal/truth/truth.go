// Package truth provides the four-valued truth domain of partial models.
package truth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/mangle/ast"
)

// Value is a four-valued truth value.
type Value uint8

const (
	// False means the fact definitely does not hold.
	False Value = iota
	// True means the fact holds.
	True
	// Unknown means the fact is not decided yet.
	Unknown
	// Error means the fact is contradictory.
	Error
)

// Values lists every truth value in declaration order.
var Values = [...]Value{False, True, Unknown, Error}

var (
	// ErrUnknownLiteral is returned for literals outside the Literal enumeration.
	ErrUnknownLiteral = errors.New("unknown logic literal")
	// ErrInvalidValue is returned when a string does not name a truth value.
	ErrInvalidValue = errors.New("invalid truth value")
)

var valueNames = [...]string{
	False:   "false",
	True:    "true",
	Unknown: "unknown",
	Error:   "error",
}

// String returns the lowercase name of the value.
func (v Value) String() string {
	if int(v) < len(valueNames) {
		return valueNames[v]
	}
	return fmt.Sprintf("truth.Value(%d)", uint8(v))
}

// Valid reports whether v is one of the four truth values.
func (v Value) Valid() bool {
	return v <= Error
}

// IsMust reports whether the fact certainly holds (TRUE, or ERROR which holds and fails at once).
func (v Value) IsMust() bool {
	return v == True || v == Error
}

// IsMay reports whether the fact may still hold.
func (v Value) IsMay() bool {
	return v != False
}

// Name returns the Mangle name constant for the value, e.g. "/true".
func (v Value) Name() string {
	return "/" + v.String()
}

var constants = func() [len(valueNames)]ast.Constant {
	var out [len(valueNames)]ast.Constant
	for i := range valueNames {
		c, err := ast.Name(Value(i).Name())
		if err != nil {
			panic(fmt.Sprintf("truth: invalid name constant %q: %v", Value(i).Name(), err))
		}
		out[i] = c
	}
	return out
}()

// Constant returns the value as a Mangle name constant.
func (v Value) Constant() ast.Constant {
	if !v.Valid() {
		return constants[Error]
	}
	return constants[v]
}

// ParseValue parses the lowercase name of a truth value.
func ParseValue(s string) (Value, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return True, nil
	case "false":
		return False, nil
	case "unknown":
		return Unknown, nil
	case "error":
		return Error, nil
	}
	return Error, fmt.Errorf("%w: %q", ErrInvalidValue, s)
}

// MarshalText implements encoding.TextMarshaler.
func (v Value) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidValue, uint8(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Value) UnmarshalText(text []byte) error {
	parsed, err := ParseValue(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

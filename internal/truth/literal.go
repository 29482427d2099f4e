package truth

import (
	"fmt"
	"strings"
)

// Literal is a logic value written in a specification.
// ERROR is a state of the model and has no literal.
type Literal uint8

const (
	LiteralFalse Literal = iota
	LiteralTrue
	LiteralUnknown
)

func (l Literal) String() string {
	switch l {
	case LiteralFalse:
		return "false"
	case LiteralTrue:
		return "true"
	case LiteralUnknown:
		return "unknown"
	}
	return fmt.Sprintf("truth.Literal(%d)", uint8(l))
}

// ParseLiteral parses a specification literal.
func ParseLiteral(s string) (Literal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return LiteralTrue, nil
	case "false":
		return LiteralFalse, nil
	case "unknown":
		return LiteralUnknown, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLiteral, s)
}

// FromLiteral maps a specification literal to its truth value.
// Literals outside the enumeration are rejected instead of mapped to Error.
func FromLiteral(l Literal) (Value, error) {
	switch l {
	case LiteralTrue:
		return True, nil
	case LiteralFalse:
		return False, nil
	case LiteralUnknown:
		return Unknown, nil
	}
	return Error, fmt.Errorf("%w: %d", ErrUnknownLiteral, uint8(l))
}

// MustFromLiteral is FromLiteral for literals that were already validated.
func MustFromLiteral(l Literal) Value {
	v, err := FromLiteral(l)
	if err != nil {
		panic(err)
	}
	return v
}

// MarshalText implements encoding.TextMarshaler.
func (l Literal) MarshalText() ([]byte, error) {
	if _, err := FromLiteral(l); err != nil {
		return nil, err
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Literal) UnmarshalText(text []byte) error {
	parsed, err := ParseLiteral(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Package model implements the keyed relations, store, and snapshots of partial models.
//
// A Relation is a schema object: a name, an arity, and a default truth value.
// Truth values per tuple live in a Snapshot created by the Store that owns the schema.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxArity is the largest arity supported by the relational representation.
const MaxArity = 2

// Tuple is an immutable sequence of node ids used as a relation key.
// Tuples are comparable: equal id sequences are equal keys.
type Tuple struct {
	size uint8
	ids  [MaxArity]int
}

// Of1 returns the unary tuple (a).
func Of1(a int) Tuple {
	return Tuple{size: 1, ids: [MaxArity]int{a}}
}

// Of2 returns the binary tuple (a, b).
func Of2(a, b int) Tuple {
	return Tuple{size: 2, ids: [MaxArity]int{a, b}}
}

// Of builds a tuple from ids. More than MaxArity ids is an error.
func Of(ids ...int) (Tuple, error) {
	if len(ids) > MaxArity {
		return Tuple{}, fmt.Errorf("%w: tuple of size %d", ErrUnsupportedArity, len(ids))
	}
	t := Tuple{size: uint8(len(ids))}
	copy(t.ids[:], ids)
	return t, nil
}

// Size returns the number of ids in the tuple.
func (t Tuple) Size() int {
	return int(t.size)
}

// Get returns the id at position i.
func (t Tuple) Get(i int) int {
	if i < 0 || i >= int(t.size) {
		panic(fmt.Sprintf("model: tuple index %d out of range for size %d", i, t.size))
	}
	return t.ids[i]
}

// IDs returns a copy of the ids in the tuple.
func (t Tuple) IDs() []int {
	out := make([]int, t.size)
	copy(out, t.ids[:t.size])
	return out
}

func (t Tuple) String() string {
	parts := make([]string, t.size)
	for i := range parts {
		parts[i] = strconv.Itoa(t.ids[i])
	}
	return "(" + strings.Join(parts, ",") + ")"
}

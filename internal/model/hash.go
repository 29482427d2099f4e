package model

import (
	"fmt"
	"math"
)

// HashProvider encodes tuples into the uint64 keys used by snapshot storage.
// Encode must be injective over valid keys and Decode its inverse.
type HashProvider interface {
	Encode(t Tuple) (uint64, error)
	Decode(key uint64, arity int) Tuple
}

// PackedHashProvider packs up to two 32-bit node ids into one key.
// Keys sort by first id, then second id, so snapshot iteration is ordered.
type PackedHashProvider struct{}

// DefaultHashProvider is used when a relation does not set its own.
var DefaultHashProvider HashProvider = PackedHashProvider{}

// Encode implements HashProvider.
func (PackedHashProvider) Encode(t Tuple) (uint64, error) {
	var key uint64
	for i := 0; i < t.Size(); i++ {
		id := t.ids[i]
		if id < 0 || uint64(id) > math.MaxUint32 {
			return 0, fmt.Errorf("%w: %d", ErrNodeOutOfRange, id)
		}
		key = key<<32 | uint64(id)
	}
	return key, nil
}

// Decode implements HashProvider.
func (PackedHashProvider) Decode(key uint64, arity int) Tuple {
	switch arity {
	case 1:
		return Of1(int(key))
	case 2:
		return Of2(int(key>>32), int(key&math.MaxUint32))
	}
	return Tuple{}
}

package model

import (
	"fmt"

	"partialmodel/internal/truth"
)

// Relation is a named, arity-typed mapping from tuples to truth values.
// It carries no data; storage lives in snapshots.
type Relation struct {
	name         string
	arity        int
	defaultValue truth.Value
	hashProvider HashProvider
}

// RelationOption customizes a Relation.
type RelationOption func(*Relation)

// WithHashProvider sets the key encoding used by snapshot storage.
func WithHashProvider(h HashProvider) RelationOption {
	return func(r *Relation) {
		if h != nil {
			r.hashProvider = h
		}
	}
}

// NewRelation creates a relation. Arity limits are enforced by the Store.
func NewRelation(name string, arity int, defaultValue truth.Value, opts ...RelationOption) *Relation {
	r := &Relation{
		name:         name,
		arity:        arity,
		defaultValue: defaultValue,
		hashProvider: DefaultHashProvider,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relation) Name() string               { return r.name }
func (r *Relation) Arity() int                 { return r.arity }
func (r *Relation) DefaultValue() truth.Value  { return r.defaultValue }
func (r *Relation) HashProvider() HashProvider { return r.hashProvider }

// IsValidKey reports whether the tuple size matches the relation arity.
func (r *Relation) IsValidKey(t Tuple) bool {
	return t.Size() == r.arity
}

func (r *Relation) String() string {
	return fmt.Sprintf("%s/%d", r.name, r.arity)
}

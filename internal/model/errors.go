package model

import "errors"

var (
	// ErrUnsupportedArity is returned for relations or tuples with arity outside {1, 2}.
	ErrUnsupportedArity = errors.New("relation with arity above 2 is not supported")
	// ErrDuplicateRelation is returned when two relations in a schema share a name.
	ErrDuplicateRelation = errors.New("duplicate relation name")
	// ErrUnknownRelation is returned when a relation is not part of the snapshot schema.
	ErrUnknownRelation = errors.New("relation is not part of the store schema")
	// ErrInvalidKey is returned when a tuple does not fit the relation arity.
	ErrInvalidKey = errors.New("invalid key for relation")
	// ErrNodeOutOfRange is returned for node ids the hash provider cannot encode.
	ErrNodeOutOfRange = errors.New("node id out of range")
	// ErrInvalidValue is returned when writing a value outside the truth domain.
	ErrInvalidValue = errors.New("invalid truth value")
	// ErrDefaultNotCounted is returned by Count for a relation's default value.
	ErrDefaultNotCounted = errors.New("default value is not counted")
)

package mapping

import "errors"

var (
	// ErrReservedRelationMissing is returned when the built-in library lacks exists or equals.
	ErrReservedRelationMissing = errors.New("reserved relation not found in builtin problem")
	// ErrUnknownStatement is returned for statement kinds the mapper does not handle.
	ErrUnknownStatement = errors.New("unknown statement kind")
	// ErrUnresolvedNode is returned when an assertion argument has no identifier.
	ErrUnresolvedNode = errors.New("assertion argument is not a known node")
	// ErrUnresolvedRelation is returned when an assertion targets an undeclared relation.
	ErrUnresolvedRelation = errors.New("assertion relation is not declared")
	// ErrAllocatorFrozen is returned when allocating after the universe was frozen.
	ErrAllocatorFrozen = errors.New("identifier allocator is frozen")
)

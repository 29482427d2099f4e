package model

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"partialmodel/internal/logging"
)

// Store owns a fixed relation schema and creates snapshots over it.
type Store struct {
	relations []*Relation
	byName    map[string]*Relation
	members   map[*Relation]struct{}
	logger    *logging.Logger
}

// NewStore fixes the schema. Relation names must be unique and arities in {1, 2}.
// Passing the same relation twice is harmless.
func NewStore(relations []*Relation) (*Store, error) {
	s := &Store{
		byName:  make(map[string]*Relation, len(relations)),
		members: make(map[*Relation]struct{}, len(relations)),
		logger:  logging.Get(logging.CategoryStore),
	}
	for _, r := range relations {
		if r == nil {
			continue
		}
		if _, ok := s.members[r]; ok {
			continue
		}
		if r.arity < 1 || r.arity > MaxArity {
			return nil, fmt.Errorf("%w: %s has arity %d", ErrUnsupportedArity, r.name, r.arity)
		}
		if other, ok := s.byName[r.name]; ok {
			return nil, fmt.Errorf("%w: %s (arity %d and %d)", ErrDuplicateRelation, r.name, other.arity, r.arity)
		}
		s.byName[r.name] = r
		s.members[r] = struct{}{}
		s.relations = append(s.relations, r)
	}
	sort.Slice(s.relations, func(i, j int) bool {
		return s.relations[i].name < s.relations[j].name
	})
	s.logger.Debug("store created with %d relations", len(s.relations))
	return s, nil
}

// Relations returns the schema sorted by relation name.
func (s *Store) Relations() []*Relation {
	out := make([]*Relation, len(s.relations))
	copy(out, s.relations)
	return out
}

// Relation looks a relation up by name.
func (s *Store) Relation(name string) (*Relation, bool) {
	r, ok := s.byName[name]
	return r, ok
}

// Contains reports whether r is part of the schema.
func (s *Store) Contains(r *Relation) bool {
	_, ok := s.members[r]
	return ok
}

// CreateSnapshot returns a new snapshot in which every tuple holds its relation's default.
func (s *Store) CreateSnapshot() *Snapshot {
	snap := &Snapshot{
		id:    uuid.New(),
		store: s,
		data:  make(map[*Relation]*relationData, len(s.relations)),
	}
	for _, r := range s.relations {
		snap.data[r] = newRelationData(r)
	}
	s.logger.Debug("snapshot %s created", snap.id)
	return snap
}

package mapping

import (
	"fmt"

	"partialmodel/internal/model"
	"partialmodel/internal/problem"
	"partialmodel/internal/truth"
)

// Reserved holds the relations every model shares, captured from the built-in library.
type Reserved struct {
	Exists *model.Relation
	Equals *model.Relation
}

// schema is the result of extracting one specification.
type schema struct {
	problem   *problem.Problem
	relations map[problem.Relation]*model.Relation
	order     []problem.Relation

	enumNodes   NodeTable
	uniqueNodes NodeTable
	newNodes    NodeTable
	nodes       NodeTable
}

func (m *Mapper) extract(p *problem.Problem, alloc *Allocator) (*schema, error) {
	s := &schema{
		problem:     p,
		relations:   make(map[problem.Relation]*model.Relation),
		enumNodes:   make(NodeTable),
		uniqueNodes: make(NodeTable),
		newNodes:    make(NodeTable),
		nodes:       make(NodeTable),
	}

	allocate := func(table NodeTable, n *problem.Node) error {
		id, err := alloc.Allocate()
		if err != nil {
			return err
		}
		table[n] = id
		return nil
	}

	for _, st := range p.Statements {
		switch decl := st.(type) {
		case *problem.ClassDeclaration:
			s.addRelation(decl, m.newRelation(decl.Name, 1))
			if !decl.Abstract {
				if decl.NewNode == nil {
					return nil, fmt.Errorf("%w: class %s has no prototype node", ErrUnresolvedNode, decl.Name)
				}
				if err := allocate(s.newNodes, decl.NewNode); err != nil {
					return nil, err
				}
			}
			for _, ref := range decl.References {
				s.addRelation(ref, m.newRelation(ref.Name, 2))
			}
		case *problem.EnumDeclaration:
			s.addRelation(decl, m.newRelation(decl.Name, 1))
			for _, lit := range decl.Literals {
				if err := allocate(s.enumNodes, lit); err != nil {
					return nil, err
				}
			}
		case *problem.IndividualDeclaration:
			for _, n := range decl.Nodes {
				if err := allocate(s.uniqueNodes, n); err != nil {
					return nil, err
				}
			}
		case *problem.PredicateDefinition:
			s.addRelation(decl, m.newRelation(decl.Name, 1))
		case *problem.Assertion:
			// applied once the snapshot is populated
		default:
			return nil, fmt.Errorf("%w: %T in %s", ErrUnknownStatement, st, p.Name)
		}
	}

	for _, n := range p.Nodes {
		if err := allocate(s.nodes, n); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (m *Mapper) newRelation(name string, arity int) *model.Relation {
	return model.NewRelation(name, arity, truth.False, model.WithHashProvider(m.hashProvider))
}

func (s *schema) addRelation(decl problem.Relation, r *model.Relation) {
	s.relations[decl] = r
	s.order = append(s.order, decl)
}

// reserved captures the exists and equals handles of a library schema.
func (s *schema) reserved() (Reserved, error) {
	var res Reserved
	for _, decl := range s.order {
		r := s.relations[decl]
		switch {
		case decl.RelationName() == problem.ExistsRelation && r.Arity() == 1:
			res.Exists = r
		case decl.RelationName() == problem.EqualsRelation && r.Arity() == 2:
			res.Equals = r
		}
	}
	if res.Exists == nil {
		return res, fmt.Errorf("%w: %s", ErrReservedRelationMissing, problem.ExistsRelation)
	}
	if res.Equals == nil {
		return res, fmt.Errorf("%w: %s", ErrReservedRelationMissing, problem.EqualsRelation)
	}
	return res, nil
}

// isErrorPredicate reports whether decl is an always-failing predicate.
func isErrorPredicate(decl problem.Relation) bool {
	pd, ok := decl.(*problem.PredicateDefinition)
	return ok && pd.Error
}

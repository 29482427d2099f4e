package mapping

import (
	"fmt"

	"partialmodel/internal/model"
	"partialmodel/internal/problem"
	"partialmodel/internal/truth"
)

// writer performs the population passes on one snapshot.
type writer struct {
	snap   *model.Snapshot
	writes int
}

func (w *writer) put(r *model.Relation, t model.Tuple, v truth.Value) error {
	if err := w.snap.Put(r, t, v); err != nil {
		return fmt.Errorf("put %v%v: %w", r, t, err)
	}
	w.writes++
	return nil
}

// fillUnknown writes UNKNOWN over the full domain of every relation except
// those backing error predicates, which keep their default.
func (w *writer) fillUnknown(schemas []*schema, u Universe) error {
	for _, s := range schemas {
		for _, decl := range s.order {
			if isErrorPredicate(decl) {
				continue
			}
			if err := w.fillRelation(s.relations[decl], truth.Unknown, u); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *writer) fillRelation(r *model.Relation, v truth.Value, u Universe) error {
	switch r.Arity() {
	case 1:
		for i := 0; i < u.Len(); i++ {
			if err := w.put(r, model.Of1(i), v); err != nil {
				return err
			}
		}
	case 2:
		for i := 0; i < u.Len(); i++ {
			for j := 0; j < u.Len(); j++ {
				if err := w.put(r, model.Of2(i, j), v); err != nil {
					return err
				}
			}
		}
	default:
		return fmt.Errorf("%w: %s has arity %d", model.ErrUnsupportedArity, r.Name(), r.Arity())
	}
	return nil
}

// fillExists marks every node as existing except prototypes, whose existence is undecided.
func (w *writer) fillExists(exists *model.Relation, u Universe) error {
	for i := 0; i < u.Len(); i++ {
		v := truth.True
		if u.IsNew(i) {
			v = truth.Unknown
		}
		if err := w.put(exists, model.Of1(i), v); err != nil {
			return err
		}
	}
	return nil
}

// fillEquals writes the identity relation: FALSE off the diagonal, TRUE on it,
// except UNKNOWN for prototypes which may stand for several objects.
func (w *writer) fillEquals(equals *model.Relation, u Universe) error {
	for i := 0; i < u.Len(); i++ {
		for j := 0; j < u.Len(); j++ {
			v := truth.False
			if i == j {
				v = truth.True
				if u.IsNew(i) {
					v = truth.Unknown
				}
			}
			if err := w.put(equals, model.Of2(i, j), v); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyStatements writes assertions, prototype class membership and enum
// literal membership of p, overwriting earlier passes.
func (w *writer) applyStatements(pm *PartialModel, p *problem.Problem) error {
	for _, st := range p.Statements {
		switch decl := st.(type) {
		case *problem.Assertion:
			if err := w.applyAssertion(pm, decl); err != nil {
				return err
			}
		case *problem.ClassDeclaration:
			if decl.Abstract {
				continue
			}
			if err := w.putMember(pm, decl, decl.NewNode); err != nil {
				return err
			}
		case *problem.EnumDeclaration:
			for _, lit := range decl.Literals {
				if err := w.putMember(pm, decl, lit); err != nil {
					return err
				}
			}
		case *problem.IndividualDeclaration, *problem.PredicateDefinition:
			// nothing to assert
		default:
			return fmt.Errorf("%w: %T in %s", ErrUnknownStatement, st, p.Name)
		}
	}
	return nil
}

func (w *writer) putMember(pm *PartialModel, decl problem.Relation, n *problem.Node) error {
	r, ok := pm.Relation(decl)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnresolvedRelation, decl.RelationName())
	}
	id, ok := pm.NodeID(n)
	if !ok {
		return fmt.Errorf("%w: %v in %s", ErrUnresolvedNode, n, decl.RelationName())
	}
	return w.put(r, model.Of1(id), truth.True)
}

func (w *writer) applyAssertion(pm *PartialModel, a *problem.Assertion) error {
	r, ok := pm.Relation(a.Relation)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnresolvedRelation, a.Relation.RelationName())
	}
	ids := make([]int, len(a.Arguments))
	for i, n := range a.Arguments {
		id, ok := pm.NodeID(n)
		if !ok {
			return fmt.Errorf("%w: %v in assertion %v", ErrUnresolvedNode, n, a)
		}
		ids[i] = id
	}
	t, err := model.Of(ids...)
	if err != nil {
		return fmt.Errorf("assertion %v: %w", a, err)
	}
	v, err := truth.FromLiteral(a.Value)
	if err != nil {
		return fmt.Errorf("assertion %v: %w", a, err)
	}
	return w.put(r, t, v)
}

package query

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrArityMismatch is returned when a substitution does not match its view's arity.
	ErrArityMismatch = errors.New("substitution length does not match view arity")
	// ErrNilTerm is returned for a nil substitution entry.
	ErrNilTerm = errors.New("nil term in substitution")
)

// Atom is one conjunct of a clause.
type Atom interface {
	// Unify replaces every variable with its canonical instance in env. It is idempotent.
	Unify(env Environment)
	// CollectVariables adds every variable of the atom to into.
	CollectVariables(into VariableSet)
	String() string
}

// RelationAtom constrains a tuple of terms to be in a view.
type RelationAtom struct {
	view         View
	substitution []Term
	negated      bool
}

// NewRelationAtom creates a positive atom over view.
func NewRelationAtom(view View, terms ...Term) (*RelationAtom, error) {
	if len(terms) != view.Arity() {
		return nil, fmt.Errorf("%w: %s has arity %d, got %d terms", ErrArityMismatch, view.Name(), view.Arity(), len(terms))
	}
	for i, t := range terms {
		if t == nil {
			return nil, fmt.Errorf("%w: position %d of %s", ErrNilTerm, i, view.Name())
		}
		if v, ok := t.(*Variable); ok && v == nil {
			return nil, fmt.Errorf("%w: position %d of %s", ErrNilTerm, i, view.Name())
		}
	}
	return &RelationAtom{view: view, substitution: append([]Term(nil), terms...)}, nil
}

// NewNegatedAtom creates an atom that holds when the tuple is not in view.
func NewNegatedAtom(view View, terms ...Term) (*RelationAtom, error) {
	a, err := NewRelationAtom(view, terms...)
	if err != nil {
		return nil, err
	}
	a.negated = true
	return a, nil
}

func (a *RelationAtom) View() View { return a.view }

// Substitution returns a copy of the atom's terms.
func (a *RelationAtom) Substitution() []Term { return append([]Term(nil), a.substitution...) }

func (a *RelationAtom) Negated() bool { return a.negated }

// Unify implements Atom.
func (a *RelationAtom) Unify(env Environment) {
	for i, t := range a.substitution {
		if v, ok := t.(*Variable); ok {
			a.substitution[i] = env.Canonical(v)
		}
	}
}

// CollectVariables implements Atom.
func (a *RelationAtom) CollectVariables(into VariableSet) {
	for _, t := range a.substitution {
		if v, ok := t.(*Variable); ok {
			into.Add(v)
		}
	}
}

func (a *RelationAtom) String() string {
	parts := make([]string, len(a.substitution))
	for i, t := range a.substitution {
		parts[i] = t.String()
	}
	prefix := ""
	if a.negated {
		prefix = "!"
	}
	return fmt.Sprintf("%s%s(%s)", prefix, a.view.Name(), strings.Join(parts, ", "))
}

// EquivalenceAtom constrains two variables to be equal, or different when not positive.
type EquivalenceAtom struct {
	Positive    bool
	Left, Right *Variable
}

// Equal creates a positive equivalence.
func Equal(left, right *Variable) *EquivalenceAtom {
	return &EquivalenceAtom{Positive: true, Left: left, Right: right}
}

// NotEqual creates a negative equivalence.
func NotEqual(left, right *Variable) *EquivalenceAtom {
	return &EquivalenceAtom{Left: left, Right: right}
}

// Unify implements Atom.
func (a *EquivalenceAtom) Unify(env Environment) {
	a.Left = env.Canonical(a.Left)
	a.Right = env.Canonical(a.Right)
}

// CollectVariables implements Atom.
func (a *EquivalenceAtom) CollectVariables(into VariableSet) {
	into.Add(a.Left)
	into.Add(a.Right)
}

func (a *EquivalenceAtom) String() string {
	op := "!="
	if a.Positive {
		op = "="
	}
	return fmt.Sprintf("%s %s %s", a.Left, op, a.Right)
}

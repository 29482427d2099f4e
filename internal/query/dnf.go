package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateParameter is returned when a DNF names a parameter twice.
var ErrDuplicateParameter = errors.New("duplicate parameter")

// Clause is a conjunction of atoms.
type Clause struct {
	atoms []Atom
}

// NewClause creates a conjunction.
func NewClause(atoms ...Atom) *Clause {
	return &Clause{atoms: append([]Atom(nil), atoms...)}
}

// Atoms returns a copy of the clause's conjuncts.
func (c *Clause) Atoms() []Atom { return append([]Atom(nil), c.atoms...) }

// Unify unifies every atom against env.
func (c *Clause) Unify(env Environment) {
	for _, a := range c.atoms {
		a.Unify(env)
	}
}

// Variables returns every variable occurring in the clause.
func (c *Clause) Variables() VariableSet {
	vars := make(VariableSet)
	for _, a := range c.atoms {
		a.CollectVariables(vars)
	}
	return vars
}

func (c *Clause) String() string {
	parts := make([]string, len(c.atoms))
	for i, a := range c.atoms {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

// DNF is a named disjunction of clauses over shared parameters.
type DNF struct {
	name       string
	parameters []*Variable
	clauses    []*Clause
}

// NewDNF unifies every clause against the parameters. Variables that are not
// parameters stay local to their clause.
func NewDNF(name string, parameters []*Variable, clauses ...*Clause) (*DNF, error) {
	env := make(Environment, len(parameters))
	for _, p := range parameters {
		if _, dup := env[p.Name()]; dup {
			return nil, fmt.Errorf("%w: %s in %s", ErrDuplicateParameter, p.Name(), name)
		}
		env[p.Name()] = p
	}
	for _, c := range clauses {
		c.Unify(env.Clone())
	}
	return &DNF{
		name:       name,
		parameters: append([]*Variable(nil), parameters...),
		clauses:    append([]*Clause(nil), clauses...),
	}, nil
}

func (d *DNF) Name() string { return d.name }

// Parameters returns a copy of the parameter list.
func (d *DNF) Parameters() []*Variable { return append([]*Variable(nil), d.parameters...) }

// Clauses returns a copy of the clause list.
func (d *DNF) Clauses() []*Clause { return append([]*Clause(nil), d.clauses...) }

// Views returns the views referenced by the DNF in first-occurrence order.
func (d *DNF) Views() []View {
	seen := make(map[View]bool)
	var views []View
	for _, c := range d.clauses {
		for _, a := range c.atoms {
			ra, ok := a.(*RelationAtom)
			if !ok || seen[ra.view] {
				continue
			}
			seen[ra.view] = true
			views = append(views, ra.view)
		}
	}
	return views
}

func (d *DNF) String() string {
	params := make([]string, len(d.parameters))
	for i, p := range d.parameters {
		params[i] = p.Name()
	}
	var b strings.Builder
	for i, c := range d.clauses {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s(%s) <-> %s", d.name, strings.Join(params, ", "), c)
	}
	return b.String()
}

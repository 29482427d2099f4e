// Package problem defines the resolved specification tree consumed by the mapper.
//
// Statements form a closed set: ClassDeclaration, EnumDeclaration,
// IndividualDeclaration, PredicateDefinition and Assertion. Declarations that own a
// relation implement Relation. All cross references are resolved pointers.
package problem

import (
	"fmt"

	"partialmodel/internal/truth"
)

// Node is a named object of the specification. Nodes compare by identity.
type Node struct {
	Name string
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return n.Name
}

// Problem is one resolved specification.
type Problem struct {
	Name       string
	Statements []Statement
	// Nodes are plain nodes not introduced by any declaration: explicitly listed
	// ones first, then the ones introduced implicitly by assertions.
	Nodes []*Node
}

// Statement is implemented by the five statement kinds only.
type Statement interface {
	statement()
}

// Relation is implemented by declarations that own a relation.
type Relation interface {
	RelationName() string
	relation()
}

// ClassDeclaration declares a class and its references.
type ClassDeclaration struct {
	Name       string
	Abstract   bool
	SuperTypes []*ClassDeclaration
	// NewNode is the prototype object of a concrete class. Nil for abstract classes.
	NewNode    *Node
	References []*ReferenceDeclaration
}

// ReferenceDeclaration declares a binary reference owned by a class.
type ReferenceDeclaration struct {
	Name        string
	Owner       *ClassDeclaration
	Target      *ClassDeclaration
	Opposite    *ReferenceDeclaration
	Containment bool
	Many        bool
}

// EnumDeclaration declares an enumeration and its literal nodes.
type EnumDeclaration struct {
	Name     string
	Literals []*Node
}

// IndividualDeclaration declares a group of named individuals.
type IndividualDeclaration struct {
	Nodes []*Node
}

// PredicateDefinition declares a predicate. Error predicates always fail.
type PredicateDefinition struct {
	Name       string
	Error      bool
	Parameters []string
}

// Assertion sets the truth value of one tuple of a relation.
type Assertion struct {
	Relation  Relation
	Arguments []*Node
	Value     truth.Literal
}

func (*ClassDeclaration) statement()      {}
func (*EnumDeclaration) statement()       {}
func (*IndividualDeclaration) statement() {}
func (*PredicateDefinition) statement()   {}
func (*Assertion) statement()             {}

func (*ClassDeclaration) relation()     {}
func (*ReferenceDeclaration) relation() {}
func (*EnumDeclaration) relation()      {}
func (*PredicateDefinition) relation()  {}

func (c *ClassDeclaration) RelationName() string     { return c.Name }
func (r *ReferenceDeclaration) RelationName() string { return r.Name }
func (e *EnumDeclaration) RelationName() string      { return e.Name }
func (p *PredicateDefinition) RelationName() string  { return p.Name }

// QualifiedName returns Owner::name, or the bare name when the owner is unknown.
func (r *ReferenceDeclaration) QualifiedName() string {
	if r.Owner == nil {
		return r.Name
	}
	return r.Owner.Name + "::" + r.Name
}

func (a *Assertion) String() string {
	args := make([]any, len(a.Arguments))
	for i, n := range a.Arguments {
		args[i] = n
	}
	return fmt.Sprintf("%s%v: %s", a.Relation.RelationName(), args, a.Value)
}

// Relations returns every relation declared by the problem in statement order,
// references following their class.
func (p *Problem) Relations() []Relation {
	var out []Relation
	for _, s := range p.Statements {
		switch st := s.(type) {
		case *ClassDeclaration:
			out = append(out, st)
			for _, ref := range st.References {
				out = append(out, ref)
			}
		case *EnumDeclaration:
			out = append(out, st)
		case *PredicateDefinition:
			out = append(out, st)
		}
	}
	return out
}

// FindRelation returns the declared relation with the given name.
// References also match by their qualified name.
func (p *Problem) FindRelation(name string) (Relation, bool) {
	for _, r := range p.Relations() {
		if r.RelationName() == name {
			return r, true
		}
		if ref, ok := r.(*ReferenceDeclaration); ok && ref.QualifiedName() == name {
			return r, true
		}
	}
	return nil, false
}

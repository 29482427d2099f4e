// Package query provides the relational query primitives read by incremental
// matching engines: views over relations, variables, atoms, and the runtime
// context through which an engine reads a snapshot and follows its changes.
package query

import (
	"fmt"

	"partialmodel/internal/model"
	"partialmodel/internal/truth"
)

// View is a read-only projection of one relation. A tuple is in the view when it
// holds a non-default value accepted by Matches. Views compare by identity.
type View interface {
	Name() string
	Relation() *model.Relation
	Arity() int
	Matches(t model.Tuple, v truth.Value) bool
}

// Holds reports whether t with value v is in the view.
func Holds(view View, t model.Tuple, v truth.Value) bool {
	return v != view.Relation().DefaultValue() && view.Matches(t, v)
}

type baseView struct {
	name string
	rel  *model.Relation
}

func (b baseView) Name() string              { return b.name }
func (b baseView) Relation() *model.Relation { return b.rel }
func (b baseView) Arity() int                { return b.rel.Arity() }

// KeyOnlyView contains every tuple holding a non-default value.
type KeyOnlyView struct {
	baseView
}

// NewKeyOnlyView creates a view named after its relation.
func NewKeyOnlyView(rel *model.Relation) *KeyOnlyView {
	return &KeyOnlyView{baseView{name: rel.Name(), rel: rel}}
}

// Matches implements View.
func (*KeyOnlyView) Matches(model.Tuple, truth.Value) bool { return true }

// TruthView contains the tuples whose value is in an accepted set.
type TruthView struct {
	baseView
	accept [len(truth.Values)]bool
}

// NewTruthView creates a view accepting the given values.
func NewTruthView(name string, rel *model.Relation, values ...truth.Value) *TruthView {
	v := &TruthView{baseView: baseView{name: name, rel: rel}}
	for _, value := range values {
		if value.Valid() {
			v.accept[value] = true
		}
	}
	return v
}

// MustView contains the tuples that certainly hold (TRUE or ERROR).
func MustView(rel *model.Relation) *TruthView {
	return NewTruthView("must_"+rel.Name(), rel, truth.True, truth.Error)
}

// MayView contains the tuples that may hold (anything but FALSE).
func MayView(rel *model.Relation) *TruthView {
	return NewTruthView("may_"+rel.Name(), rel, truth.True, truth.Unknown, truth.Error)
}

// Matches implements View.
func (v *TruthView) Matches(_ model.Tuple, value truth.Value) bool {
	return value.Valid() && v.accept[value]
}

// FilteredView contains the tuples accepted by an arbitrary filter.
type FilteredView struct {
	baseView
	filter func(model.Tuple, truth.Value) bool
}

// NewFilteredView creates a view backed by filter.
func NewFilteredView(name string, rel *model.Relation, filter func(model.Tuple, truth.Value) bool) *FilteredView {
	return &FilteredView{baseView: baseView{name: name, rel: rel}, filter: filter}
}

// Matches implements View.
func (v *FilteredView) Matches(t model.Tuple, value truth.Value) bool {
	return v.filter(t, value)
}

func viewString(v View) string {
	return fmt.Sprintf("%s[%s]", v.Name(), v.Relation())
}

package query

import (
	"sort"
	"strconv"
)

// Term is a substitution entry: a *Variable or a Constant.
type Term interface {
	term()
	String() string
}

// Variable is a free variable of a query. Variables compare by identity; unification
// makes atoms that name the same variable share one instance.
type Variable struct {
	name string
}

// NewVariable creates a variable.
func NewVariable(name string) *Variable {
	return &Variable{name: name}
}

func (v *Variable) Name() string   { return v.name }
func (v *Variable) String() string { return v.name }
func (*Variable) term()            {}

// Constant is a bound node identifier.
type Constant int

func (c Constant) String() string { return strconv.Itoa(int(c)) }
func (Constant) term()            {}

// Environment maps variable names to their canonical instances.
type Environment map[string]*Variable

// Canonical returns the environment's instance for v's name, adopting v if the name is new.
func (env Environment) Canonical(v *Variable) *Variable {
	if existing, ok := env[v.name]; ok {
		return existing
	}
	env[v.name] = v
	return v
}

// Clone returns a shallow copy of the environment.
func (env Environment) Clone() Environment {
	out := make(Environment, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// VariableSet accumulates variables.
type VariableSet map[*Variable]struct{}

// Add adds v to the set.
func (s VariableSet) Add(v *Variable) {
	s[v] = struct{}{}
}

// Contains reports whether v is in the set.
func (s VariableSet) Contains(v *Variable) bool {
	_, ok := s[v]
	return ok
}

// Names returns the sorted variable names.
func (s VariableSet) Names() []string {
	names := make([]string, 0, len(s))
	for v := range s {
		names = append(names, v.name)
	}
	sort.Strings(names)
	return names
}

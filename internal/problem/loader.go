package problem

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"partialmodel/internal/truth"
)

var (
	// ErrInvalidStatement is returned for statements that are not exactly one kind.
	ErrInvalidStatement = errors.New("invalid statement")
	// ErrUnresolved is returned for references to undeclared relations or classes.
	ErrUnresolved = errors.New("unresolved reference")
	// ErrDuplicateDeclaration is returned when a name is declared twice.
	ErrDuplicateDeclaration = errors.New("duplicate declaration")
	// ErrArgumentCount is returned when an assertion does not match its relation arity.
	ErrArgumentCount = errors.New("wrong number of assertion arguments")
)

// NewNodeSuffix names the prototype node of a concrete class, as in "Person::new".
const NewNodeSuffix = "::new"

type rawProblem struct {
	Problem    string         `yaml:"problem"`
	Nodes      []string       `yaml:"nodes"`
	Statements []rawStatement `yaml:"statements"`
}

type rawReference struct {
	Name        string `yaml:"name"`
	Target      string `yaml:"target"`
	Opposite    string `yaml:"opposite"`
	Containment bool   `yaml:"containment"`
	Many        bool   `yaml:"many"`
}

type rawStatement struct {
	Class      string         `yaml:"class"`
	Abstract   bool           `yaml:"abstract"`
	Extends    []string       `yaml:"extends"`
	References []rawReference `yaml:"references"`

	Enum     string   `yaml:"enum"`
	Literals []string `yaml:"literals"`

	Individuals []string `yaml:"individuals"`

	Pred       string   `yaml:"pred"`
	Error      bool     `yaml:"error"`
	Parameters []string `yaml:"parameters"`

	Assert string         `yaml:"assert"`
	Args   []string       `yaml:"args"`
	Value  *truth.Literal `yaml:"value"`
}

func (s rawStatement) kinds() int {
	n := 0
	for _, set := range []bool{s.Class != "", s.Enum != "", len(s.Individuals) > 0, s.Pred != "", s.Assert != ""} {
		if set {
			n++
		}
	}
	return n
}

// Option configures Parse and Load.
type Option func(*resolver)

// WithLibrary makes the declarations of lib visible to the parsed problem.
func WithLibrary(lib *Problem) Option {
	return func(r *resolver) {
		r.library = lib
	}
}

// Load reads and resolves a YAML problem file.
func Load(path string, opts ...Option) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read problem %s: %w", path, err)
	}
	p, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("problem %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and resolves a YAML problem.
// Assertion arguments naming no declared node introduce new plain nodes.
func Parse(data []byte, opts ...Option) (*Problem, error) {
	var raw rawProblem
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse problem: %w", err)
	}

	r := &resolver{
		classes:   make(map[string]*ClassDeclaration),
		relations: make(map[string]Relation),
		nodes:     make(map[string]*Node),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r.resolve(raw)
}

type resolver struct {
	library   *Problem
	problem   *Problem
	classes   map[string]*ClassDeclaration
	relations map[string]Relation
	nodes     map[string]*Node
}

func (r *resolver) resolve(raw rawProblem) (*Problem, error) {
	r.problem = &Problem{Name: raw.Problem}

	type pending struct {
		index, slot int
		st          rawStatement
	}
	var assertions []pending

	// Declarations first so assertions can refer to names declared after them.
	for i, st := range raw.Statements {
		if st.kinds() != 1 {
			return nil, fmt.Errorf("%w: statement %d declares %d kinds", ErrInvalidStatement, i, st.kinds())
		}
		var err error
		switch {
		case st.Class != "":
			err = r.declareClass(st)
		case st.Enum != "":
			err = r.declareEnum(st)
		case len(st.Individuals) > 0:
			err = r.declareIndividuals(st)
		case st.Pred != "":
			err = r.declareRelation(st.Pred, &PredicateDefinition{Name: st.Pred, Error: st.Error, Parameters: st.Parameters})
		case st.Assert != "":
			assertions = append(assertions, pending{index: i, slot: len(r.problem.Statements), st: st})
			r.problem.Statements = append(r.problem.Statements, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
	}

	for _, name := range raw.Nodes {
		if _, err := r.declareNode(name); err != nil {
			return nil, err
		}
		r.problem.Nodes = append(r.problem.Nodes, r.nodes[name])
	}

	if err := r.resolveClasses(raw); err != nil {
		return nil, err
	}

	for _, p := range assertions {
		a, err := r.assertion(p.st)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", p.index, err)
		}
		r.problem.Statements[p.slot] = a
	}
	return r.problem, nil
}

func (r *resolver) declareNode(name string) (*Node, error) {
	if _, ok := r.nodes[name]; ok {
		return nil, fmt.Errorf("%w: node %s", ErrDuplicateDeclaration, name)
	}
	n := &Node{Name: name}
	r.nodes[name] = n
	return n, nil
}

func (r *resolver) declareRelation(name string, rel Relation) error {
	if _, ok := r.relations[name]; ok {
		return fmt.Errorf("%w: relation %s", ErrDuplicateDeclaration, name)
	}
	r.relations[name] = rel
	if st, ok := rel.(Statement); ok {
		r.problem.Statements = append(r.problem.Statements, st)
	}
	return nil
}

func (r *resolver) declareClass(st rawStatement) error {
	class := &ClassDeclaration{Name: st.Class, Abstract: st.Abstract}
	if err := r.declareRelation(st.Class, class); err != nil {
		return err
	}
	r.classes[st.Class] = class
	if !st.Abstract {
		n, err := r.declareNode(st.Class + NewNodeSuffix)
		if err != nil {
			return err
		}
		class.NewNode = n
	}
	for _, raw := range st.References {
		ref := &ReferenceDeclaration{
			Name:        raw.Name,
			Owner:       class,
			Containment: raw.Containment,
			Many:        raw.Many,
		}
		// references are not statements; register the name only
		if _, ok := r.relations[raw.Name]; ok {
			return fmt.Errorf("%w: relation %s", ErrDuplicateDeclaration, raw.Name)
		}
		r.relations[raw.Name] = ref
		r.relations[ref.QualifiedName()] = ref
		class.References = append(class.References, ref)
	}
	return nil
}

func (r *resolver) declareEnum(st rawStatement) error {
	enum := &EnumDeclaration{Name: st.Enum}
	if err := r.declareRelation(st.Enum, enum); err != nil {
		return err
	}
	for _, lit := range st.Literals {
		n, err := r.declareNode(lit)
		if err != nil {
			return err
		}
		enum.Literals = append(enum.Literals, n)
	}
	return nil
}

func (r *resolver) declareIndividuals(st rawStatement) error {
	decl := &IndividualDeclaration{}
	for _, name := range st.Individuals {
		n, err := r.declareNode(name)
		if err != nil {
			return err
		}
		decl.Nodes = append(decl.Nodes, n)
	}
	r.problem.Statements = append(r.problem.Statements, decl)
	return nil
}

func (r *resolver) class(name string) (*ClassDeclaration, error) {
	if c, ok := r.classes[name]; ok {
		return c, nil
	}
	if r.library != nil {
		if rel, ok := r.library.FindRelation(name); ok {
			if c, ok := rel.(*ClassDeclaration); ok {
				return c, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: class %s", ErrUnresolved, name)
}

func (r *resolver) resolveClasses(raw rawProblem) error {
	for _, st := range raw.Statements {
		if st.Class == "" {
			continue
		}
		class := r.classes[st.Class]
		for _, super := range st.Extends {
			c, err := r.class(super)
			if err != nil {
				return fmt.Errorf("class %s: %w", st.Class, err)
			}
			class.SuperTypes = append(class.SuperTypes, c)
		}
		for i, rawRef := range st.References {
			ref := class.References[i]
			if rawRef.Target != "" {
				c, err := r.class(rawRef.Target)
				if err != nil {
					return fmt.Errorf("reference %s: %w", ref.QualifiedName(), err)
				}
				ref.Target = c
			}
			if rawRef.Opposite != "" {
				opp, ok := r.lookupRelation(rawRef.Opposite)
				oppRef, isRef := opp.(*ReferenceDeclaration)
				if !ok || !isRef {
					return fmt.Errorf("reference %s: %w: opposite %s", ref.QualifiedName(), ErrUnresolved, rawRef.Opposite)
				}
				ref.Opposite = oppRef
			}
		}
	}
	return nil
}

func (r *resolver) lookupRelation(name string) (Relation, bool) {
	if rel, ok := r.relations[name]; ok {
		return rel, true
	}
	if r.library != nil {
		return r.library.FindRelation(name)
	}
	return nil, false
}

func (r *resolver) lookupNode(name string) *Node {
	if n, ok := r.nodes[name]; ok {
		return n
	}
	if r.library != nil {
		if n := r.library.FindNode(name); n != nil {
			return n
		}
	}
	// implicit node
	n := &Node{Name: name}
	r.nodes[name] = n
	r.problem.Nodes = append(r.problem.Nodes, n)
	return n
}

func (r *resolver) assertion(st rawStatement) (*Assertion, error) {
	rel, ok := r.lookupRelation(st.Assert)
	if !ok {
		return nil, fmt.Errorf("%w: relation %s", ErrUnresolved, st.Assert)
	}
	if want := Arity(rel); len(st.Args) != want {
		return nil, fmt.Errorf("%w: %s expects %d, got %d", ErrArgumentCount, st.Assert, want, len(st.Args))
	}
	a := &Assertion{Relation: rel, Value: truth.LiteralTrue}
	if st.Value != nil {
		a.Value = *st.Value
	}
	for _, name := range st.Args {
		a.Arguments = append(a.Arguments, r.lookupNode(strings.TrimSpace(name)))
	}
	return a, nil
}

// Arity returns the number of arguments a relation declaration takes.
func Arity(rel Relation) int {
	if _, ok := rel.(*ReferenceDeclaration); ok {
		return 2
	}
	return 1
}

// FindNode returns the node declared or introduced by the problem under name.
func (p *Problem) FindNode(name string) *Node {
	for _, n := range p.AllNodes() {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// AllNodes returns every node of the problem: prototypes, literals, individuals, plain nodes.
func (p *Problem) AllNodes() []*Node {
	var out []*Node
	for _, s := range p.Statements {
		switch st := s.(type) {
		case *ClassDeclaration:
			if st.NewNode != nil {
				out = append(out, st.NewNode)
			}
		case *EnumDeclaration:
			out = append(out, st.Literals...)
		case *IndividualDeclaration:
			out = append(out, st.Nodes...)
		}
	}
	return append(out, p.Nodes...)
}

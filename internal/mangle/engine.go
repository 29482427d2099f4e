// Package mangle evaluates Datalog rules with Google Mangle over the views of a
// partial model. Attached views become extensional predicates that follow the
// snapshot through view listeners; rules and compiled DNFs derive the rest.
package mangle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"partialmodel/internal/logging"
	"partialmodel/internal/model"
	"partialmodel/internal/query"
	"partialmodel/internal/truth"
)

var (
	// ErrNoProgram is returned when nothing has been declared yet.
	ErrNoProgram = errors.New("no predicates declared")
	// ErrUndeclared is returned for a predicate the program does not know.
	ErrUndeclared = errors.New("predicate is not declared")
	// ErrPredicateConflict is returned when two exported predicates share a name.
	ErrPredicateConflict = errors.New("predicate name already in use")
	// ErrFactLimit is returned when the extensional store is full.
	ErrFactLimit = errors.New("fact limit exceeded")
	// ErrNotAttached is returned when a DNF references a view that is not attached.
	ErrNotAttached = errors.New("view is not attached")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine closed")
)

// Config holds Mangle engine configuration.
type Config struct {
	FactLimit    int `json:"fact_limit" yaml:"fact_limit"`
	QueryTimeout int `json:"query_timeout" yaml:"query_timeout"` // seconds
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FactLimit:    100000,
		QueryTimeout: 30,
	}
}

// Engine evaluates Mangle programs over attached views.
type Engine struct {
	config Config
	log    *logging.Logger

	mu        sync.RWMutex
	edb       factstore.FactStoreWithRemove
	derived   factstore.FactStore
	program   *analysis.ProgramInfo
	fragments []parse.SourceUnit
	views     map[query.View]ast.PredicateSym
	relations map[*model.Relation]ast.PredicateSym
	names     map[string]string
	index     map[string]ast.PredicateSym
	factCount int
	dirty     bool
	asyncErr  error
	detach    []func()
	closed    bool
}

// Fact is one derived or extensional fact.
type Fact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
}

// String returns the Datalog representation of the fact.
func (f Fact) String() string {
	args := make([]string, len(f.Args))
	for i, arg := range f.Args {
		switch v := arg.(type) {
		case string:
			if strings.HasPrefix(v, "/") {
				args[i] = v
			} else {
				args[i] = fmt.Sprintf("%q", v)
			}
		case int64:
			args[i] = fmt.Sprintf("%d", v)
		default:
			args[i] = fmt.Sprintf("%v", v)
		}
	}
	return fmt.Sprintf("%s(%s).", f.Predicate, strings.Join(args, ", "))
}

// QueryResult represents the result of a query.
type QueryResult struct {
	Bindings []map[string]interface{} `json:"bindings"`
	Duration time.Duration            `json:"duration"`
}

// Stats contains engine statistics.
type Stats struct {
	ExtensionalFacts int            `json:"extensional_facts"`
	PredicateCounts  map[string]int `json:"predicate_counts"`
	Evaluated        bool           `json:"evaluated"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates an engine with an empty program.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		config:    cfg,
		log:       logging.Get(logging.CategoryEngine),
		edb:       factstore.NewSimpleInMemoryStore(),
		views:     make(map[query.View]ast.PredicateSym),
		relations: make(map[*model.Relation]ast.PredicateSym),
		names:     make(map[string]string),
		index:     make(map[string]ast.PredicateSym),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PredicateName returns the predicate a view is exported as.
func PredicateName(v query.View) string {
	return predicateSymbol(v.Name())
}

// ValuePredicateName returns the predicate carrying the non-default values of r.
// Its last argument is the value as a name constant such as /unknown.
func ValuePredicateName(r *model.Relation) string {
	return predicateSymbol("value_" + r.Name())
}

// predicateSymbol maps names to Mangle predicate symbols one to one. A name that
// already is a predicate symbol without "__" maps to itself; any other name gets
// the "q__" prefix and every character outside [A-Za-z0-9] is written as _<hex>_.
func predicateSymbol(name string) string {
	if isPlainSymbol(name) {
		return name
	}
	var b strings.Builder
	b.WriteString("q__")
	for _, r := range name {
		if isAlnum(r) {
			b.WriteRune(r)
			continue
		}
		fmt.Fprintf(&b, "_%x_", r)
	}
	return b.String()
}

func isPlainSymbol(name string) bool {
	if name == "" || name[0] < 'a' || name[0] > 'z' || strings.Contains(name, "__") {
		return false
	}
	for _, r := range name {
		if !isAlnum(r) && r != '_' {
			return false
		}
	}
	return true
}

func isAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

func declVars(n int) string {
	vars := make([]string, n)
	for i := range vars {
		vars[i] = fmt.Sprintf("X%d", i)
	}
	return strings.Join(vars, ", ")
}

// Attach exports every view of rc as an extensional predicate, and the values
// of every relation read by those views as a value_ predicate. Current tuples
// are loaded and later writes are followed.
func (e *Engine) Attach(rc *query.RuntimeContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	var decl strings.Builder
	pending := make(map[string]string)
	claim := func(name, owner string) error {
		if prev, taken := e.names[name]; taken {
			return fmt.Errorf("%w: %s for %s (used by %s)", ErrPredicateConflict, name, owner, prev)
		}
		if prev, taken := pending[name]; taken {
			return fmt.Errorf("%w: %s for %s (used by %s)", ErrPredicateConflict, name, owner, prev)
		}
		pending[name] = owner
		return nil
	}

	var views []query.View
	for _, v := range rc.Views() {
		if _, ok := e.views[v]; ok {
			continue
		}
		name := PredicateName(v)
		if err := claim(name, "view "+v.Name()); err != nil {
			return err
		}
		views = append(views, v)
		fmt.Fprintf(&decl, "Decl %s(%s).\n", name, declVars(v.Arity()))
	}
	var relations []*model.Relation
	for _, r := range rc.Relations() {
		if _, ok := e.relations[r]; ok {
			continue
		}
		name := ValuePredicateName(r)
		if err := claim(name, "values of "+r.Name()); err != nil {
			return err
		}
		relations = append(relations, r)
		fmt.Fprintf(&decl, "Decl %s(%s).\n", name, declVars(r.Arity()+1))
	}
	if len(pending) == 0 {
		return nil
	}

	if err := e.addFragmentLocked(decl.String()); err != nil {
		return err
	}
	for name, owner := range pending {
		e.names[name] = owner
	}
	for _, v := range views {
		e.views[v] = ast.PredicateSym{Symbol: PredicateName(v), Arity: v.Arity()}
	}
	for _, r := range relations {
		e.relations[r] = ast.PredicateSym{Symbol: ValuePredicateName(r), Arity: r.Arity() + 1}
	}

	// subscribe before loading so no write falls between the two
	for _, v := range views {
		sym := e.views[v]
		remove, err := rc.AddViewListener(v, query.ViewListenerFunc(e.onViewChange))
		if err != nil {
			return err
		}
		e.detach = append(e.detach, remove)

		var loadErr error
		err = rc.Enumerate(v, nil, func(t model.Tuple) bool {
			loadErr = e.addLocked(tupleAtom(sym, t))
			return loadErr == nil
		})
		if err == nil {
			err = loadErr
		}
		if err != nil {
			return fmt.Errorf("load view %s: %w", v.Name(), err)
		}
	}
	for _, r := range relations {
		sym := e.relations[r]
		remove, err := rc.AddValueListener(r, query.ValueListenerFunc(e.onValueChange))
		if err != nil {
			return err
		}
		e.detach = append(e.detach, remove)

		var loadErr error
		err = rc.Values(r, func(t model.Tuple, v truth.Value) bool {
			loadErr = e.addLocked(valueAtom(sym, t, v))
			return loadErr == nil
		})
		if err == nil {
			err = loadErr
		}
		if err != nil {
			return fmt.Errorf("load values of %s: %w", r.Name(), err)
		}
	}
	e.dirty = true
	e.log.Info("attached %d views and %d relations (%d facts)", len(views), len(relations), e.factCount)
	return nil
}

func (e *Engine) onViewChange(v query.View, t model.Tuple, inserted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sym, ok := e.views[v]
	if !ok || e.closed {
		return
	}
	if inserted {
		e.addAsyncLocked(tupleAtom(sym, t))
	} else {
		e.removeLocked(tupleAtom(sym, t))
	}
	e.dirty = true
}

func (e *Engine) onValueChange(r *model.Relation, t model.Tuple, oldValue, newValue truth.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sym, ok := e.relations[r]
	if !ok || e.closed {
		return
	}
	if oldValue != r.DefaultValue() {
		e.removeLocked(valueAtom(sym, t, oldValue))
	}
	if newValue != r.DefaultValue() {
		e.addAsyncLocked(valueAtom(sym, t, newValue))
	}
	e.dirty = true
}

func tupleAtom(sym ast.PredicateSym, t model.Tuple) ast.Atom {
	args := make([]ast.BaseTerm, t.Size())
	for i := range args {
		args[i] = ast.Number(int64(t.Get(i)))
	}
	return ast.Atom{Predicate: sym, Args: args}
}

func valueAtom(sym ast.PredicateSym, t model.Tuple, v truth.Value) ast.Atom {
	a := tupleAtom(sym, t)
	a.Args = append(a.Args, v.Constant())
	return a
}

func (e *Engine) addLocked(a ast.Atom) error {
	if e.config.FactLimit > 0 && e.factCount >= e.config.FactLimit {
		return fmt.Errorf("%w: %d", ErrFactLimit, e.config.FactLimit)
	}
	if e.edb.Add(a) {
		e.factCount++
	}
	return nil
}

// addAsyncLocked adds a fact from a listener; a failure is reported by the next
// evaluation.
func (e *Engine) addAsyncLocked(a ast.Atom) {
	if err := e.addLocked(a); err != nil {
		e.log.Warn("dropping %s: %v", a, err)
		if e.asyncErr == nil {
			e.asyncErr = err
		}
	}
}

func (e *Engine) removeLocked(a ast.Atom) {
	if e.edb.Remove(a) {
		e.factCount--
	}
}

// LoadRules loads a Mangle source file.
func (e *Engine) LoadRules(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	return e.LoadRulesString(string(data))
}

// LoadRulesString loads Mangle declarations and rules.
func (e *Engine) LoadRulesString(src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if err := e.addFragmentLocked(src); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

// AddDNF compiles dnf into rules over the attached views and loads them.
func (e *Engine) AddDNF(dnf *query.DNF) error {
	e.mu.RLock()
	src, err := Compile(dnf, func(v query.View) (string, bool) {
		sym, ok := e.views[v]
		return sym.Symbol, ok
	})
	e.mu.RUnlock()
	if err != nil {
		return err
	}
	e.log.Debug("compiled %s:\n%s", dnf.Name(), src)
	return e.LoadRulesString(src)
}

func (e *Engine) addFragmentLocked(src string) error {
	unit, err := parse.Unit(bytes.NewReader([]byte(src)))
	if err != nil {
		return fmt.Errorf("failed to parse rules: %w", err)
	}
	fragments := append(append([]parse.SourceUnit(nil), e.fragments...), unit)
	program, err := analyze(fragments)
	if err != nil {
		return fmt.Errorf("failed to analyze rules: %w", err)
	}
	e.fragments = fragments
	e.program = program
	e.index = make(map[string]ast.PredicateSym, len(program.Decls))
	for sym := range program.Decls {
		e.index[sym.Symbol] = sym
	}
	for _, rule := range program.Rules {
		e.index[rule.Head.Predicate.Symbol] = rule.Head.Predicate
	}
	return nil
}

func analyze(fragments []parse.SourceUnit) (*analysis.ProgramInfo, error) {
	var unit parse.SourceUnit
	for _, f := range fragments {
		unit.Clauses = append(unit.Clauses, f.Clauses...)
		unit.Decls = append(unit.Decls, f.Decls...)
	}
	return analysis.AnalyzeOneUnit(unit, nil)
}

// Evaluate recomputes derived facts if the extensional facts or rules changed.
func (e *Engine) Evaluate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateLocked(ctx)
}

func (e *Engine) evaluateLocked(ctx context.Context) error {
	if e.closed {
		return ErrClosed
	}
	if e.asyncErr != nil {
		err := e.asyncErr
		e.asyncErr = nil
		return err
	}
	if e.program == nil {
		return ErrNoProgram
	}
	if !e.dirty && e.derived != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fresh := factstore.NewSimpleInMemoryStore()
	for _, sym := range e.edb.ListPredicates() {
		_ = e.edb.GetFacts(ast.NewQuery(sym), func(a ast.Atom) error {
			fresh.Add(a)
			return nil
		})
	}
	derived := factstore.NewConcurrentFactStore(fresh)

	start := time.Now()
	stats, err := mengine.EvalProgramWithStats(e.program, derived)
	if err != nil {
		return fmt.Errorf("evaluate program: %w", err)
	}
	e.derived = derived
	e.dirty = false
	e.log.Debug("evaluated program in %v: %+v", time.Since(start), stats)
	return nil
}

// Query evaluates an atom such as "reach(X, 3)" and returns one binding per
// matching fact. Constant arguments filter; repeated variables must agree.
func (e *Engine) Query(ctx context.Context, q string) (*QueryResult, error) {
	shape, err := parseQueryShape(q)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok && e.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.config.QueryTimeout)*time.Second)
		defer cancel()
	}

	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.evaluateLocked(ctx); err != nil {
		return nil, err
	}
	sym, ok := e.index[shape.atom.Predicate.Symbol]
	if !ok || sym.Arity != len(shape.atom.Args) {
		return nil, fmt.Errorf("%w: %s/%d", ErrUndeclared, shape.atom.Predicate.Symbol, len(shape.atom.Args))
	}

	var rows []map[string]interface{}
	err = e.derived.GetFacts(ast.NewQuery(sym), func(fact ast.Atom) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if row, ok := shape.match(fact); ok {
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q, err)
	}
	sortRows(rows, shape.variables)
	return &QueryResult{Bindings: rows, Duration: time.Since(start)}, nil
}

// GetFacts retrieves all facts for a predicate after evaluation.
func (e *Engine) GetFacts(predicate string) ([]Fact, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.evaluateLocked(context.Background()); err != nil {
		return nil, err
	}
	sym, ok := e.index[predicate]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUndeclared, predicate)
	}

	var results []Fact
	err := e.derived.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
		args := make([]interface{}, len(atom.Args))
		for i, arg := range atom.Args {
			args[i] = convertBaseTermToInterface(arg)
		}
		results = append(results, Fact{Predicate: predicate, Args: args})
		return nil
	})
	sort.Slice(results, func(i, j int) bool { return results[i].String() < results[j].String() })
	return results, err
}

// GetStats returns per-predicate fact counts of the last evaluation.
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := Stats{ExtensionalFacts: e.factCount, PredicateCounts: make(map[string]int)}
	if e.derived == nil {
		return stats
	}
	stats.Evaluated = !e.dirty
	for _, sym := range e.derived.ListPredicates() {
		n := 0
		_ = e.derived.GetFacts(ast.NewQuery(sym), func(ast.Atom) error {
			n++
			return nil
		})
		stats.PredicateCounts[sym.Symbol] = n
	}
	return stats
}

// Close stops following attached views.
func (e *Engine) Close() error {
	e.mu.Lock()
	detach := e.detach
	e.detach = nil
	e.closed = true
	e.mu.Unlock()

	for _, remove := range detach {
		remove()
	}
	return nil
}

type queryVariable struct {
	Name  string
	Index int
}

type queryShape struct {
	atom      ast.Atom
	variables []queryVariable
}

func parseQueryShape(q string) (*queryShape, error) {
	clean := strings.TrimSpace(q)
	if clean == "" {
		return nil, fmt.Errorf("empty query")
	}
	clean = strings.TrimSpace(strings.TrimPrefix(clean, "?"))
	clean = strings.TrimSpace(strings.TrimSuffix(clean, "."))

	atom, err := parse.Atom(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query %q: %w", q, err)
	}

	var variables []queryVariable
	for idx, arg := range atom.Args {
		if v, ok := arg.(ast.Variable); ok && v.Symbol != "_" {
			variables = append(variables, queryVariable{Name: v.Symbol, Index: idx})
		}
	}
	return &queryShape{atom: atom, variables: variables}, nil
}

func (s *queryShape) match(fact ast.Atom) (map[string]interface{}, bool) {
	if len(fact.Args) != len(s.atom.Args) {
		return nil, false
	}
	for i, arg := range s.atom.Args {
		if c, ok := arg.(ast.Constant); ok && !c.Equals(fact.Args[i]) {
			return nil, false
		}
	}
	row := make(map[string]interface{}, len(s.variables))
	bound := make(map[string]ast.BaseTerm, len(s.variables))
	for _, v := range s.variables {
		term := fact.Args[v.Index]
		if prev, ok := bound[v.Name]; ok {
			if !prev.Equals(term) {
				return nil, false
			}
			continue
		}
		bound[v.Name] = term
		row[v.Name] = convertBaseTermToInterface(term)
	}
	return row, true
}

func sortRows(rows []map[string]interface{}, vars []queryVariable) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, v := range vars {
			a, b := fmt.Sprint(rows[i][v.Name]), fmt.Sprint(rows[j][v.Name])
			if a != b {
				if x, ok := rows[i][v.Name].(int64); ok {
					if y, ok := rows[j][v.Name].(int64); ok {
						return x < y
					}
				}
				return a < b
			}
		}
		return false
	})
}

func convertBaseTermToInterface(term ast.BaseTerm) interface{} {
	switch v := term.(type) {
	case ast.Constant:
		return constantToInterface(v)
	case ast.Variable:
		return v.Symbol
	default:
		return fmt.Sprintf("%v", term)
	}
}

func constantToInterface(constant ast.Constant) interface{} {
	switch constant.Type {
	case ast.StringType, ast.NameType, ast.BytesType:
		return constant.Symbol
	case ast.NumberType:
		return constant.NumValue
	case ast.Float64Type:
		return math.Float64frombits(uint64(constant.NumValue))
	default:
		return constant.String()
	}
}

// Package mapping builds the initial partial model of a specification.
//
// The mapper allocates node identifiers for the user specification and the
// built-in library from one allocator, derives the relation schema, creates a
// snapshot, and populates it: every relation starts UNKNOWN over the full
// domain, exists and equals get their reserved values, and finally assertions
// and declarations overwrite individual tuples.
package mapping

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"partialmodel/internal/logging"
	"partialmodel/internal/model"
	"partialmodel/internal/problem"
)

// Mapper turns specifications into partial models.
type Mapper struct {
	library      problem.LibraryResolver
	hashProvider model.HashProvider
	logger       *logging.Logger
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithLibrary sets where the built-in library is resolved from.
func WithLibrary(lib problem.LibraryResolver) Option {
	return func(m *Mapper) {
		m.library = lib
	}
}

// WithHashProvider sets the key encoding of every created relation.
func WithHashProvider(h model.HashProvider) Option {
	return func(m *Mapper) {
		if h != nil {
			m.hashProvider = h
		}
	}
}

// WithLogger logs through the given zap logger instead of the mapping category.
func WithLogger(l *zap.Logger) Option {
	return func(m *Mapper) {
		m.logger = logging.FromZap(logging.CategoryMapping, l)
	}
}

// New creates a Mapper using the embedded built-in library by default.
func New(opts ...Option) *Mapper {
	m := &Mapper{
		library:      problem.EmbeddedLibrary{},
		hashProvider: model.DefaultHashProvider,
		logger:       logging.Get(logging.CategoryMapping),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Stats describes one construction.
type Stats struct {
	Nodes     int
	NewNodes  int
	Relations int
	Writes    int
	Duration  time.Duration
}

// PartialModel bundles a populated snapshot with the tables used to read it.
// Callers must treat the tables as read-only.
type PartialModel struct {
	Store     *model.Store
	Snapshot  *model.Snapshot
	Relations map[problem.Relation]*model.Relation

	EnumNodes   NodeTable
	UniqueNodes NodeTable
	NewNodes    NodeTable
	Nodes       NodeTable

	Universe Universe
	Reserved Reserved
	Stats    Stats

	names []string
}

// Relation returns the relation backing a declaration.
func (pm *PartialModel) Relation(decl problem.Relation) (*model.Relation, bool) {
	r, ok := pm.Relations[decl]
	return r, ok
}

// NodeID returns the identifier of a node from any of the four tables.
func (pm *PartialModel) NodeID(n *problem.Node) (int, bool) {
	for _, table := range []NodeTable{pm.EnumNodes, pm.UniqueNodes, pm.NewNodes, pm.Nodes} {
		if id, ok := table[n]; ok {
			return id, true
		}
	}
	return 0, false
}

// NodeName returns the name of the node with the given identifier.
func (pm *PartialModel) NodeName(id int) string {
	if id >= 0 && id < len(pm.names) {
		return pm.names[id]
	}
	return fmt.Sprintf("#%d", id)
}

// IsNew reports whether id is a prototype object.
func (pm *PartialModel) IsNew(id int) bool {
	return pm.Universe.IsNew(id)
}

// Transform builds the partial model of p merged with the built-in library.
// It either returns a fully populated model or an error, never a partial result.
func (m *Mapper) Transform(ctx context.Context, p *problem.Problem) (*PartialModel, error) {
	start := time.Now()

	lib, err := m.library.BuiltinLibrary()
	if err != nil {
		m.logger.Error("builtin library unavailable: %v", err)
		return nil, fmt.Errorf("resolve builtin library: %w", err)
	}

	var alloc Allocator
	user, err := m.extract(p, &alloc)
	if err != nil {
		return nil, err
	}
	builtin, err := m.extract(lib, &alloc)
	if err != nil {
		return nil, err
	}
	reserved, err := builtin.reserved()
	if err != nil {
		return nil, err
	}

	pm := merge(user, builtin)
	pm.Reserved = reserved
	pm.Universe = alloc.Freeze(pm.NewNodes)
	pm.names = nodeNames(pm)

	relations := make([]*model.Relation, 0, len(pm.Relations))
	for _, s := range []*schema{user, builtin} {
		for _, decl := range s.order {
			relations = append(relations, s.relations[decl])
		}
	}
	store, err := model.NewStore(relations)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	pm.Store = store
	snap := store.CreateSnapshot()

	w := &writer{snap: snap}
	passes := []struct {
		name string
		run  func() error
	}{
		{"unknown", func() error { return w.fillUnknown([]*schema{user, builtin}, pm.Universe) }},
		{"exists", func() error { return w.fillExists(reserved.Exists, pm.Universe) }},
		{"equals", func() error { return w.fillEquals(reserved.Equals, pm.Universe) }},
		{"assertions", func() error { return w.applyStatements(pm, user.problem) }},
		{"builtin assertions", func() error { return w.applyStatements(pm, builtin.problem) }},
	}
	for _, pass := range passes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		before := w.writes
		if err := pass.run(); err != nil {
			m.logger.Error("%s pass failed: %v", pass.name, err)
			return nil, err
		}
		m.logger.Debug("%s pass wrote %d tuples", pass.name, w.writes-before)
	}
	pm.Snapshot = snap

	pm.Stats = Stats{
		Nodes:     pm.Universe.Len(),
		NewNodes:  len(pm.NewNodes),
		Relations: len(relations),
		Writes:    w.writes,
		Duration:  time.Since(start),
	}
	m.logger.Info("mapped %s into snapshot %s: %d nodes (%d new), %d relations, %d writes in %v",
		p.Name, snap.ID(), pm.Stats.Nodes, pm.Stats.NewNodes, pm.Stats.Relations, pm.Stats.Writes, pm.Stats.Duration)
	return pm, nil
}

func merge(schemas ...*schema) *PartialModel {
	pm := &PartialModel{
		Relations:   make(map[problem.Relation]*model.Relation),
		EnumNodes:   make(NodeTable),
		UniqueNodes: make(NodeTable),
		NewNodes:    make(NodeTable),
		Nodes:       make(NodeTable),
	}
	for _, s := range schemas {
		for decl, r := range s.relations {
			pm.Relations[decl] = r
		}
		copyTable(pm.EnumNodes, s.enumNodes)
		copyTable(pm.UniqueNodes, s.uniqueNodes)
		copyTable(pm.NewNodes, s.newNodes)
		copyTable(pm.Nodes, s.nodes)
	}
	return pm
}

func copyTable(dst, src NodeTable) {
	for n, id := range src {
		dst[n] = id
	}
}

func nodeNames(pm *PartialModel) []string {
	names := make([]string, pm.Universe.Len())
	for _, table := range []NodeTable{pm.EnumNodes, pm.UniqueNodes, pm.NewNodes, pm.Nodes} {
		for n, id := range table {
			names[id] = n.Name
		}
	}
	return names
}

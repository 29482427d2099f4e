package mapping

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"partialmodel/internal/model"
	"partialmodel/internal/problem"
	"partialmodel/internal/truth"
)

func personProblem() (*problem.Problem, *problem.ClassDeclaration, *problem.ReferenceDeclaration) {
	person := &problem.ClassDeclaration{Name: "Person", NewNode: &problem.Node{Name: "Person::new"}}
	friend := &problem.ReferenceDeclaration{Name: "friend", Owner: person, Target: person}
	person.References = []*problem.ReferenceDeclaration{friend}
	p := &problem.Problem{
		Name: "people",
		Statements: []problem.Statement{
			person,
			&problem.Assertion{
				Relation:  friend,
				Arguments: []*problem.Node{person.NewNode, person.NewNode},
				Value:     truth.LiteralFalse,
			},
		},
	}
	return p, person, friend
}

func get(t *testing.T, pm *PartialModel, r *model.Relation, tup model.Tuple) truth.Value {
	t.Helper()
	v, err := pm.Snapshot.Get(r, tup)
	require.NoError(t, err)
	return v
}

func TestTransformEndToEnd(t *testing.T) {
	p, person, friend := personProblem()
	pm, err := New().Transform(context.Background(), p)
	require.NoError(t, err)

	newID := pm.NewNodes[person.NewNode]
	assert.Equal(t, 0, newID, "user prototypes are allocated first")
	assert.True(t, pm.IsNew(newID))
	assert.Equal(t, "Person::new", pm.NodeName(newID))

	personRel, ok := pm.Relation(person)
	require.True(t, ok)
	friendRel, ok := pm.Relation(friend)
	require.True(t, ok)
	assert.Equal(t, 1, personRel.Arity())
	assert.Equal(t, 2, friendRel.Arity())

	assert.Equal(t, truth.True, get(t, pm, personRel, model.Of1(newID)))
	assert.Equal(t, truth.Unknown, get(t, pm, pm.Reserved.Exists, model.Of1(newID)))
	assert.Equal(t, truth.Unknown, get(t, pm, pm.Reserved.Equals, model.Of2(newID, newID)))

	for _, i := range pm.Universe.IDs() {
		for _, j := range pm.Universe.IDs() {
			want := truth.Unknown
			if i == newID && j == newID {
				want = truth.False
			}
			assert.Equal(t, want, get(t, pm, friendRel, model.Of2(i, j)), "friend(%d,%d)", i, j)
		}
		if i != newID {
			assert.Equal(t, truth.Unknown, get(t, pm, personRel, model.Of1(i)))
		}
	}
}

func TestBuiltinEnumLiteralsAreMembers(t *testing.T) {
	p, _, _ := personProblem()
	pm, err := New().Transform(context.Background(), p)
	require.NoError(t, err)

	lib, err := problem.EmbeddedLibrary{}.BuiltinLibrary()
	require.NoError(t, err)
	boolDecl, ok := lib.FindRelation("bool")
	require.True(t, ok)
	boolRel, ok := pm.Relation(boolDecl)
	require.True(t, ok)

	for _, lit := range boolDecl.(*problem.EnumDeclaration).Literals {
		id, ok := pm.EnumNodes[lit]
		require.True(t, ok)
		assert.Equal(t, truth.True, get(t, pm, boolRel, model.Of1(id)))
		assert.Equal(t, truth.True, get(t, pm, pm.Reserved.Exists, model.Of1(id)))
	}
}

func loadPeople(t *testing.T) *problem.Problem {
	t.Helper()
	lib, err := problem.EmbeddedLibrary{}.BuiltinLibrary()
	require.NoError(t, err)
	p, err := problem.Load(filepath.Join("..", "problem", "testdata", "people.yaml"), problem.WithLibrary(lib))
	require.NoError(t, err)
	return p
}

func TestIdentifierDisjointness(t *testing.T) {
	pm, err := New().Transform(context.Background(), loadPeople(t))
	require.NoError(t, err)

	seen := make(map[int]*problem.Node)
	allocations := 0
	for _, table := range []NodeTable{pm.EnumNodes, pm.UniqueNodes, pm.NewNodes, pm.Nodes} {
		for n, id := range table {
			allocations++
			if other, dup := seen[id]; dup {
				t.Fatalf("id %d assigned to %v and %v", id, other, n)
			}
			seen[id] = n
			assert.True(t, pm.Universe.Contains(id))
		}
	}
	assert.Equal(t, allocations, len(seen))
	assert.Equal(t, allocations, pm.Universe.Len())
	assert.Equal(t, pm.Universe.Len(), pm.Stats.Nodes)
}

func TestExistsAndEqualsLaws(t *testing.T) {
	pm, err := New().Transform(context.Background(), loadPeople(t))
	require.NoError(t, err)

	carol := pm.Nodes[findNode(t, pm.Nodes, "carol")]
	for _, a := range pm.Universe.IDs() {
		wantExists := truth.True
		if pm.IsNew(a) {
			wantExists = truth.Unknown
		}
		if a == carol {
			wantExists = truth.False // asserted
		}
		assert.Equal(t, wantExists, get(t, pm, pm.Reserved.Exists, model.Of1(a)), "exists(%d)", a)

		for _, b := range pm.Universe.IDs() {
			want := truth.False
			if a == b {
				want = truth.True
				if pm.IsNew(a) {
					want = truth.Unknown
				}
			}
			assert.Equal(t, want, get(t, pm, pm.Reserved.Equals, model.Of2(a, b)), "equals(%d,%d)", a, b)
		}
	}
}

func findNode(t *testing.T, table NodeTable, name string) *problem.Node {
	t.Helper()
	for n := range table {
		if n.Name == name {
			return n
		}
	}
	t.Fatalf("node %s not found", name)
	return nil
}

func TestErrorPredicateKeepsDefault(t *testing.T) {
	p := loadPeople(t)
	pm, err := New().Transform(context.Background(), p)
	require.NoError(t, err)

	broken, ok := p.FindRelation("broken")
	require.True(t, ok)
	r, _ := pm.Relation(broken)
	for _, v := range []truth.Value{truth.True, truth.Unknown, truth.Error} {
		n, err := pm.Snapshot.Count(r, v)
		require.NoError(t, err)
		assert.Zero(t, n, "broken holds %v somewhere", v)
	}

	lonely, _ := p.FindRelation("lonely")
	r, _ = pm.Relation(lonely)
	n, err := pm.Snapshot.Count(r, truth.Unknown)
	require.NoError(t, err)
	assert.Equal(t, uint64(pm.Universe.Len()), n)
}

func TestDefaultCoverageBeforeAssertions(t *testing.T) {
	m := New()
	var alloc Allocator
	p, _, _ := personProblem()
	s, err := m.extract(p, &alloc)
	require.NoError(t, err)
	u := alloc.Freeze(s.newNodes)

	var relations []*model.Relation
	for _, decl := range s.order {
		relations = append(relations, s.relations[decl])
	}
	store, err := model.NewStore(relations)
	require.NoError(t, err)
	w := &writer{snap: store.CreateSnapshot()}
	require.NoError(t, w.fillUnknown([]*schema{s}, u))

	for _, r := range relations {
		n, err := w.snap.Count(r, truth.Unknown)
		require.NoError(t, err)
		want := u.Len()
		if r.Arity() == 2 {
			want *= u.Len()
		}
		assert.Equal(t, uint64(want), n, r.Name())
	}
	assert.Equal(t, u.Len()+u.Len()*u.Len(), w.writes)
}

func TestAssertionOverwrite(t *testing.T) {
	p, _, friend := personProblem()
	alice := &problem.Node{Name: "alice"}
	bob := &problem.Node{Name: "bob"}
	p.Statements = append(p.Statements,
		&problem.IndividualDeclaration{Nodes: []*problem.Node{alice, bob}},
		&problem.Assertion{Relation: friend, Arguments: []*problem.Node{alice, bob}, Value: truth.LiteralTrue},
	)

	pm, err := New().Transform(context.Background(), p)
	require.NoError(t, err)
	friendRel, _ := pm.Relation(friend)
	a, b := pm.UniqueNodes[alice], pm.UniqueNodes[bob]

	assert.Equal(t, truth.True, get(t, pm, friendRel, model.Of2(a, b)))
	assert.Equal(t, truth.Unknown, get(t, pm, friendRel, model.Of2(b, a)))

	trueCount, err := pm.Snapshot.Count(friendRel, truth.True)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), trueCount)
	unknownCount, err := pm.Snapshot.Count(friendRel, truth.Unknown)
	require.NoError(t, err)
	n := uint64(pm.Universe.Len())
	// one TRUE, one FALSE (the prototype self-loop), the rest UNKNOWN
	assert.Equal(t, n*n-2, unknownCount)
}

func TestArityRejection(t *testing.T) {
	w := &writer{}
	err := w.fillRelation(model.NewRelation("triple", 3, truth.False), truth.Unknown, Universe{size: 2, isNew: make([]bool, 2)})
	assert.ErrorIs(t, err, model.ErrUnsupportedArity)
	assert.Zero(t, w.writes)
}

func TestMissingBuiltin(t *testing.T) {
	p, _, _ := personProblem()
	pm, err := New(WithLibrary(problem.StaticLibrary{})).Transform(context.Background(), p)
	assert.ErrorIs(t, err, problem.ErrBuiltinNotFound)
	assert.Nil(t, pm)
}

func TestMissingReservedRelation(t *testing.T) {
	lib := &problem.Problem{Name: "builtin", Statements: []problem.Statement{
		&problem.PredicateDefinition{Name: problem.ExistsRelation},
	}}
	p, _, _ := personProblem()
	_, err := New(WithLibrary(problem.StaticLibrary{Problem: lib})).Transform(context.Background(), p)
	assert.ErrorIs(t, err, ErrReservedRelationMissing)
}

func TestUnresolvedAssertionNode(t *testing.T) {
	p, person, _ := personProblem()
	p.Statements = append(p.Statements, &problem.Assertion{
		Relation:  person,
		Arguments: []*problem.Node{{Name: "ghost"}},
		Value:     truth.LiteralTrue,
	})
	_, err := New().Transform(context.Background(), p)
	assert.ErrorIs(t, err, ErrUnresolvedNode)
}

func TestUnknownLiteralFails(t *testing.T) {
	p, person, _ := personProblem()
	p.Statements = append(p.Statements, &problem.Assertion{
		Relation:  person,
		Arguments: []*problem.Node{person.NewNode},
		Value:     truth.Literal(17),
	})
	_, err := New().Transform(context.Background(), p)
	assert.ErrorIs(t, err, truth.ErrUnknownLiteral)
}

type wrappedStatement struct {
	*problem.Assertion
}

func TestUnknownStatementKind(t *testing.T) {
	p, _, _ := personProblem()
	p.Statements = append(p.Statements, wrappedStatement{})
	_, err := New().Transform(context.Background(), p)
	assert.ErrorIs(t, err, ErrUnknownStatement)
}

func TestDuplicateRelationAcrossSpecifications(t *testing.T) {
	p := &problem.Problem{Name: "clash", Statements: []problem.Statement{
		&problem.PredicateDefinition{Name: problem.ExistsRelation},
	}}
	_, err := New().Transform(context.Background(), p)
	assert.ErrorIs(t, err, model.ErrDuplicateRelation)
}

func TestTransformCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, _, _ := personProblem()
	_, err := New().Transform(ctx, p)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAllocatorFreeze(t *testing.T) {
	var a Allocator
	first, err := a.Allocate()
	require.NoError(t, err)
	second, _ := a.Allocate()
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)

	n := &problem.Node{Name: "n"}
	u := a.Freeze(NodeTable{n: second})
	_, err = a.Allocate()
	assert.ErrorIs(t, err, ErrAllocatorFrozen)
	assert.Equal(t, 2, u.Len())
	assert.True(t, u.IsNew(1))
	assert.False(t, u.IsNew(0))
	assert.False(t, u.IsNew(5))
	assert.Equal(t, "universe(2 nodes, 1 new)", u.String())
}

func TestWithLoggerReportsStats(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p, _, _ := personProblem()
	pm, err := New(WithLogger(zap.New(core))).Transform(context.Background(), p)
	require.NoError(t, err)

	entries := logs.FilterMessageSnippet("mapped people").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "mapping", entries[0].LoggerName)
	assert.Positive(t, pm.Stats.Writes)
	// Person, friend, plus node, equals, exists, domain, data, bool from the library
	assert.Equal(t, 8, pm.Stats.Relations)
}

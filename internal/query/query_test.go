package query

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partialmodel/internal/model"
	"partialmodel/internal/truth"
)

type fixture struct {
	person *model.Relation
	friend *model.Relation
	snap   *model.Snapshot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	person := model.NewRelation("Person", 1, truth.False)
	friend := model.NewRelation("friend", 2, truth.False)
	store, err := model.NewStore([]*model.Relation{person, friend})
	require.NoError(t, err)
	return &fixture{person: person, friend: friend, snap: store.CreateSnapshot()}
}

func (f *fixture) put(t *testing.T, r *model.Relation, tup model.Tuple, v truth.Value) {
	t.Helper()
	require.NoError(t, f.snap.Put(r, tup, v))
}

func TestViewMembership(t *testing.T) {
	f := newFixture(t)
	key := NewKeyOnlyView(f.friend)
	must := MustView(f.friend)
	may := MayView(f.friend)
	odd := NewFilteredView("odd", f.friend, func(tup model.Tuple, _ truth.Value) bool {
		return tup.Get(0)%2 == 1
	})

	tests := []struct {
		name  string
		value truth.Value
		key   bool
		must  bool
		may   bool
	}{
		{"false is the default", truth.False, false, false, false},
		{"true", truth.True, true, true, true},
		{"unknown", truth.Unknown, true, false, true},
		{"error", truth.Error, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tup := model.Of2(1, 2)
			assert.Equal(t, tt.key, Holds(key, tup, tt.value))
			assert.Equal(t, tt.must, Holds(must, tup, tt.value))
			assert.Equal(t, tt.may, Holds(may, tup, tt.value))
		})
	}

	assert.True(t, Holds(odd, model.Of2(1, 0), truth.Unknown))
	assert.False(t, Holds(odd, model.Of2(2, 0), truth.True))
	assert.False(t, Holds(odd, model.Of2(1, 0), truth.False), "default tuples are never in a view")

	assert.Equal(t, "must_friend", must.Name())
	assert.Equal(t, 2, must.Arity())
	assert.Same(t, f.friend, may.Relation())
}

func TestRelationAtomArity(t *testing.T) {
	f := newFixture(t)
	view := NewKeyOnlyView(f.friend)

	_, err := NewRelationAtom(view, NewVariable("x"))
	assert.ErrorIs(t, err, ErrArityMismatch)

	_, err = NewRelationAtom(view, NewVariable("x"), nil)
	assert.ErrorIs(t, err, ErrNilTerm)

	var missing *Variable
	_, err = NewRelationAtom(view, NewVariable("x"), missing)
	assert.ErrorIs(t, err, ErrNilTerm)

	a, err := NewRelationAtom(view, NewVariable("x"), Constant(3))
	require.NoError(t, err)
	assert.Equal(t, "friend(x, 3)", a.String())
	assert.False(t, a.Negated())

	n, err := NewNegatedAtom(view, NewVariable("x"), NewVariable("y"))
	require.NoError(t, err)
	assert.Equal(t, "!friend(x, y)", n.String())
}

func TestUnifySharesVariables(t *testing.T) {
	f := newFixture(t)
	view := NewKeyOnlyView(f.friend)

	a1, err := NewRelationAtom(view, NewVariable("x"), NewVariable("y"))
	require.NoError(t, err)
	a2, err := NewRelationAtom(view, NewVariable("y"), NewVariable("x"))
	require.NoError(t, err)

	env := make(Environment)
	a1.Unify(env)
	a2.Unify(env)

	s1, s2 := a1.Substitution(), a2.Substitution()
	assert.Same(t, s1[0], s2[1])
	assert.Same(t, s1[1], s2[0])

	// a second pass changes nothing
	a1.Unify(env)
	assert.Same(t, s1[0], a1.Substitution()[0])

	vars := make(VariableSet)
	a1.CollectVariables(vars)
	a2.CollectVariables(vars)
	assert.Len(t, vars, 2)
	assert.Equal(t, []string{"x", "y"}, vars.Names())
}

func TestEquivalenceAtom(t *testing.T) {
	x, y := NewVariable("x"), NewVariable("y")
	env := Environment{"x": x}
	eq := Equal(NewVariable("x"), y)
	eq.Unify(env)
	assert.Same(t, x, eq.Left)
	assert.Same(t, y, env["y"])
	assert.Equal(t, "x = y", eq.String())
	assert.Equal(t, "x != y", NotEqual(x, y).String())

	vars := make(VariableSet)
	eq.CollectVariables(vars)
	assert.True(t, vars.Contains(x))
	assert.True(t, vars.Contains(y))
}

func TestNewDNFClauseLocalVariables(t *testing.T) {
	f := newFixture(t)
	friend := NewKeyOnlyView(f.friend)
	person := MustView(f.person)

	p := NewVariable("p")
	a1, err := NewRelationAtom(friend, NewVariable("p"), NewVariable("q"))
	require.NoError(t, err)
	a2, err := NewRelationAtom(person, NewVariable("q"))
	require.NoError(t, err)
	b1, err := NewRelationAtom(person, NewVariable("p"))
	require.NoError(t, err)
	b2, err := NewRelationAtom(friend, NewVariable("q"), NewVariable("p"))
	require.NoError(t, err)

	c1, c2 := NewClause(a1, a2), NewClause(b1, b2)
	dnf, err := NewDNF("knowsPerson", []*Variable{p}, c1, c2)
	require.NoError(t, err)

	assert.Same(t, p, a1.Substitution()[0])
	assert.Same(t, p, b1.Substitution()[0])
	assert.Same(t, a1.Substitution()[1], a2.Substitution()[0])
	assert.NotSame(t, a1.Substitution()[1], b2.Substitution()[0], "q is local to each clause")

	assert.Equal(t, []string{"p", "q"}, c1.Variables().Names())
	assert.Equal(t, []View{friend, person}, dnf.Views())
	assert.Equal(t, "knowsPerson(p) <-> friend(p, q), must_Person(q)\nknowsPerson(p) <-> must_Person(p), friend(q, p)", dnf.String())

	_, err = NewDNF("bad", []*Variable{NewVariable("p"), NewVariable("p")})
	assert.ErrorIs(t, err, ErrDuplicateParameter)
}

func TestRuntimeContextReads(t *testing.T) {
	f := newFixture(t)
	f.put(t, f.friend, model.Of2(0, 1), truth.True)
	f.put(t, f.friend, model.Of2(0, 2), truth.Unknown)
	f.put(t, f.friend, model.Of2(1, 2), truth.Error)

	must := MustView(f.friend)
	may := MayView(f.friend)
	ec := NewEngineContext(f.snap, must, may)
	defer ec.Dispose()
	rc := ec.RuntimeContext()

	assert.Equal(t, []View{must, may}, rc.Views())

	n, err := rc.Count(must, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = rc.Count(may, []int{0, Unbound})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := rc.Contains(must, model.Of2(0, 2))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = rc.Contains(may, model.Of2(0, 2))
	require.NoError(t, err)
	assert.True(t, ok)

	var got []model.Tuple
	require.NoError(t, rc.Enumerate(may, []int{Unbound, 2}, func(tup model.Tuple) bool {
		got = append(got, tup)
		return true
	}))
	want := []model.Tuple{model.Of2(0, 2), model.Of2(1, 2)}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(model.Tuple{})); diff != "" {
		t.Errorf("Enumerate mismatch (-want +got):\n%s", diff)
	}

	_, err = rc.Count(must, []int{1})
	assert.ErrorIs(t, err, ErrArityMismatch)
	_, err = rc.Count(MustView(f.person), nil)
	assert.ErrorIs(t, err, ErrUnknownView)
}

type recorded struct {
	view     string
	tuple    model.Tuple
	inserted bool
}

func TestViewListeners(t *testing.T) {
	f := newFixture(t)
	must := MustView(f.friend)
	may := MayView(f.friend)
	ec := NewEngineContext(f.snap, must, may)
	rc := ec.RuntimeContext()

	var events []recorded
	record := ViewListenerFunc(func(v View, tup model.Tuple, inserted bool) {
		events = append(events, recorded{v.Name(), tup, inserted})
	})
	removeMust, err := rc.AddViewListener(must, record)
	require.NoError(t, err)
	_, err = rc.AddViewListener(may, record)
	require.NoError(t, err)

	tup := model.Of2(3, 4)
	f.put(t, f.friend, tup, truth.Unknown)
	f.put(t, f.friend, tup, truth.True)
	f.put(t, f.friend, tup, truth.Error)
	f.put(t, f.friend, tup, truth.False)

	want := []recorded{
		{"may_friend", tup, true},
		{"must_friend", tup, true},
		{"must_friend", tup, false},
		{"may_friend", tup, false},
	}
	if diff := cmp.Diff(want, events, cmp.AllowUnexported(recorded{}, model.Tuple{})); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	events = nil
	removeMust()
	f.put(t, f.friend, tup, truth.True)
	assert.Equal(t, []recorded{{"may_friend", tup, true}}, events)

	events = nil
	ec.Dispose()
	ec.Dispose()
	f.put(t, f.friend, tup, truth.False)
	assert.Empty(t, events)

	v, err := f.snap.Get(f.friend, tup)
	require.NoError(t, err)
	assert.Equal(t, truth.False, v, "disposal leaves the snapshot usable")

	_, err = rc.AddViewListener(NewKeyOnlyView(f.person), record)
	assert.ErrorIs(t, err, ErrUnknownView)
}

type valueChange struct {
	tup      model.Tuple
	from, to truth.Value
}

func TestValueListeners(t *testing.T) {
	f := newFixture(t)
	must := MustView(f.friend)
	ec := NewEngineContext(f.snap, must, MayView(f.friend))
	defer ec.Dispose()
	rc := ec.RuntimeContext()
	assert.Equal(t, []*model.Relation{f.friend}, rc.Relations())

	f.put(t, f.friend, model.Of2(0, 1), truth.Unknown)
	loaded := map[model.Tuple]truth.Value{}
	require.NoError(t, rc.Values(f.friend, func(tup model.Tuple, v truth.Value) bool {
		loaded[tup] = v
		return true
	}))
	assert.Equal(t, map[model.Tuple]truth.Value{model.Of2(0, 1): truth.Unknown}, loaded)

	var changes []valueChange
	remove, err := rc.AddValueListener(f.friend, ValueListenerFunc(func(r *model.Relation, tup model.Tuple, from, to truth.Value) {
		assert.Same(t, f.friend, r)
		changes = append(changes, valueChange{tup, from, to})
	}))
	require.NoError(t, err)

	// true to error moves no tuple in or out of must_friend
	tup := model.Of2(2, 3)
	f.put(t, f.friend, tup, truth.True)
	f.put(t, f.friend, tup, truth.Error)
	f.put(t, f.friend, tup, truth.Error)
	want := []valueChange{
		{tup, truth.False, truth.True},
		{tup, truth.True, truth.Error},
	}
	if diff := cmp.Diff(want, changes, cmp.AllowUnexported(valueChange{}, model.Tuple{})); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}

	changes = nil
	remove()
	f.put(t, f.friend, tup, truth.False)
	assert.Empty(t, changes)

	_, err = rc.AddValueListener(f.person, ValueListenerFunc(func(*model.Relation, model.Tuple, truth.Value, truth.Value) {}))
	assert.ErrorIs(t, err, ErrUnknownRelation)
	assert.ErrorIs(t, rc.Values(f.person, func(model.Tuple, truth.Value) bool { return true }), ErrUnknownRelation)
}

func TestModelUpdateListenerConcurrent(t *testing.T) {
	f := newFixture(t)
	key := NewKeyOnlyView(f.person)
	ec := NewEngineContext(f.snap, key)
	defer ec.Dispose()

	var mu sync.Mutex
	inserted := 0
	_, err := ec.RuntimeContext().AddViewListener(key, ViewListenerFunc(func(View, model.Tuple, bool) {
		mu.Lock()
		inserted++
		mu.Unlock()
	}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, f.snap.Put(f.person, model.Of1(id), truth.True))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16, inserted)
	n, err := ec.RuntimeContext().Count(key, nil)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
}

func TestBaseIndex(t *testing.T) {
	f := newFixture(t)
	ec := NewEngineContext(f.snap)
	defer ec.Dispose()

	idx := ec.BaseIndex()
	assert.True(t, idx.IsInitialized())
	ran := false
	require.NoError(t, idx.CoalesceTraversals(func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	idx.ResampleDerivedFeatures()
}

func TestViewNotificationsFollowWriteOrder(t *testing.T) {
	f := newFixture(t)
	tup := model.Of2(0, 1)
	f.put(t, f.friend, tup, truth.Unknown)

	must := MustView(f.friend)
	ec := NewEngineContext(f.snap, must)
	defer ec.Dispose()

	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		mu     sync.Mutex
		member bool
		calls  int
	)
	_, err := ec.RuntimeContext().AddViewListener(must, ViewListenerFunc(func(_ View, _ model.Tuple, inserted bool) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(entered)
			<-release
		}
		// reading the snapshot from a listener must not deadlock
		_, _ = f.snap.Get(f.friend, tup)
		mu.Lock()
		member = inserted
		mu.Unlock()
	}))
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() { firstDone <- f.snap.Put(f.friend, tup, truth.True) }()
	<-entered

	secondDone := make(chan error, 1)
	go func() { secondDone <- f.snap.Put(f.friend, tup, truth.False) }()

	select {
	case <-secondDone:
		t.Fatal("second write completed while the first was still notifying")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)

	v, err := f.snap.Get(f.friend, tup)
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, truth.False, v)
	assert.Equal(t, Holds(must, tup, v), member)
	assert.Equal(t, 2, calls)
}

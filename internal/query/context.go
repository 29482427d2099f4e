package query

import (
	"errors"
	"fmt"
	"sync"

	"partialmodel/internal/logging"
	"partialmodel/internal/model"
	"partialmodel/internal/truth"
)

// Unbound marks an unconstrained position of an enumeration seed.
const Unbound = -1

var (
	// ErrUnknownView is returned for a view not registered with the context.
	ErrUnknownView = errors.New("view not registered")
	// ErrUnknownRelation is returned for a relation no registered view reads.
	ErrUnknownRelation = errors.New("relation not registered")
)

// ReadableStore is the read surface of a snapshot.
type ReadableStore interface {
	Get(r *model.Relation, t model.Tuple) (truth.Value, error)
	ForEach(r *model.Relation, fn func(model.Tuple, truth.Value) bool) error
}

// ObservableStore is a readable store that reports writes.
type ObservableStore interface {
	ReadableStore
	AddListener(l model.ChangeListener) (remove func())
}

// ViewListener receives membership changes of one view.
type ViewListener interface {
	ViewChanged(view View, t model.Tuple, inserted bool)
}

// ViewListenerFunc adapts a function to ViewListener.
type ViewListenerFunc func(view View, t model.Tuple, inserted bool)

// ViewChanged implements ViewListener.
func (f ViewListenerFunc) ViewChanged(view View, t model.Tuple, inserted bool) { f(view, t, inserted) }

// ValueListener receives every value change of one relation.
type ValueListener interface {
	ValueChanged(r *model.Relation, t model.Tuple, oldValue, newValue truth.Value)
}

// ValueListenerFunc adapts a function to ValueListener.
type ValueListenerFunc func(r *model.Relation, t model.Tuple, oldValue, newValue truth.Value)

// ValueChanged implements ValueListener.
func (f ValueListenerFunc) ValueChanged(r *model.Relation, t model.Tuple, oldValue, newValue truth.Value) {
	f(r, t, oldValue, newValue)
}

type subscription struct {
	id int
	l  ViewListener
}

type valueSubscription struct {
	id int
	l  ValueListener
}

// ModelUpdateListener translates snapshot writes into view insertions and deletions.
type ModelUpdateListener struct {
	mu     sync.RWMutex
	views  []View
	byRel     map[*model.Relation][]View
	relations []*model.Relation
	subs      map[View][]subscription
	valueSubs map[*model.Relation][]valueSubscription
	nextID    int
}

// NewModelUpdateListener registers views. Repeated views are ignored.
func NewModelUpdateListener(views ...View) *ModelUpdateListener {
	l := &ModelUpdateListener{
		byRel:     make(map[*model.Relation][]View),
		subs:      make(map[View][]subscription),
		valueSubs: make(map[*model.Relation][]valueSubscription),
	}
	seen := make(map[View]bool)
	for _, v := range views {
		if v == nil || seen[v] {
			continue
		}
		seen[v] = true
		l.views = append(l.views, v)
		if _, ok := l.byRel[v.Relation()]; !ok {
			l.relations = append(l.relations, v.Relation())
		}
		l.byRel[v.Relation()] = append(l.byRel[v.Relation()], v)
	}
	return l
}

// Views returns the registered views in registration order.
func (l *ModelUpdateListener) Views() []View {
	return append([]View(nil), l.views...)
}

// Registered reports whether view was passed to NewModelUpdateListener.
func (l *ModelUpdateListener) Registered(view View) bool {
	for _, v := range l.byRel[view.Relation()] {
		if v == view {
			return true
		}
	}
	return false
}

// Relations returns the relations read by registered views, in registration order.
func (l *ModelUpdateListener) Relations() []*model.Relation {
	return append([]*model.Relation(nil), l.relations...)
}

// SubscribeValues adds a listener for every value change of r.
func (l *ModelUpdateListener) SubscribeValues(r *model.Relation, listener ValueListener) (func(), error) {
	if _, ok := l.byRel[r]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRelation, r)
	}
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.valueSubs[r] = append(append([]valueSubscription(nil), l.valueSubs[r]...), valueSubscription{id: id, l: listener})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		var next []valueSubscription
		for _, s := range l.valueSubs[r] {
			if s.id != id {
				next = append(next, s)
			}
		}
		if len(next) == 0 {
			delete(l.valueSubs, r)
			return
		}
		l.valueSubs[r] = next
	}, nil
}

// Subscribe adds a listener for view.
func (l *ModelUpdateListener) Subscribe(view View, listener ViewListener) (func(), error) {
	if !l.Registered(view) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, viewString(view))
	}
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[view] = append(append([]subscription(nil), l.subs[view]...), subscription{id: id, l: listener})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		cur := l.subs[view]
		next := make([]subscription, 0, len(cur))
		for _, s := range cur {
			if s.id != id {
				next = append(next, s)
			}
		}
		if len(next) == 0 {
			delete(l.subs, view)
			return
		}
		l.subs[view] = next
	}, nil
}

// OnChange implements model.ChangeListener.
func (l *ModelUpdateListener) OnChange(r *model.Relation, t model.Tuple, oldValue, newValue truth.Value) {
	l.mu.RLock()
	valueSubs := l.valueSubs[r]
	l.mu.RUnlock()
	for _, s := range valueSubs {
		s.l.ValueChanged(r, t, oldValue, newValue)
	}

	for _, view := range l.byRel[r] {
		was := Holds(view, t, oldValue)
		is := Holds(view, t, newValue)
		if was == is {
			continue
		}
		l.mu.RLock()
		subs := l.subs[view]
		l.mu.RUnlock()
		if len(subs) > 0 {
			logging.QueryDebug("%s %s %v", view.Name(), t, is)
		}
		for _, s := range subs {
			s.l.ViewChanged(view, t, is)
		}
	}
}

// RuntimeContext is the engine's read and subscription surface over one store.
type RuntimeContext struct {
	store    ReadableStore
	listener *ModelUpdateListener
}

// NewRuntimeContext creates a runtime context. The listener must be attached to
// the store by the caller for subscriptions to fire.
func NewRuntimeContext(store ReadableStore, listener *ModelUpdateListener) *RuntimeContext {
	return &RuntimeContext{store: store, listener: listener}
}

// Views returns the views the engine may read.
func (rc *RuntimeContext) Views() []View {
	return rc.listener.Views()
}

// Relations returns the relations read by the registered views.
func (rc *RuntimeContext) Relations() []*model.Relation {
	return rc.listener.Relations()
}

// Values calls fn for every tuple of r holding a non-default value.
func (rc *RuntimeContext) Values(r *model.Relation, fn func(model.Tuple, truth.Value) bool) error {
	if _, ok := rc.listener.byRel[r]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRelation, r)
	}
	return rc.store.ForEach(r, fn)
}

// AddValueListener subscribes listener to every value change of r.
func (rc *RuntimeContext) AddValueListener(r *model.Relation, listener ValueListener) (remove func(), err error) {
	return rc.listener.SubscribeValues(r, listener)
}

// Contains reports whether t is in view.
func (rc *RuntimeContext) Contains(view View, t model.Tuple) (bool, error) {
	if !rc.listener.Registered(view) {
		return false, fmt.Errorf("%w: %s", ErrUnknownView, viewString(view))
	}
	v, err := rc.store.Get(view.Relation(), t)
	if err != nil {
		return false, err
	}
	return Holds(view, t, v), nil
}

// Enumerate calls fn for every tuple in view that agrees with seed. A nil seed
// matches everything; otherwise seed has one entry per position, Unbound for free ones.
// Returning false from fn stops the enumeration.
func (rc *RuntimeContext) Enumerate(view View, seed []int, fn func(model.Tuple) bool) error {
	if !rc.listener.Registered(view) {
		return fmt.Errorf("%w: %s", ErrUnknownView, viewString(view))
	}
	if seed != nil && len(seed) != view.Arity() {
		return fmt.Errorf("%w: seed of %d for %s", ErrArityMismatch, len(seed), view.Name())
	}
	return rc.store.ForEach(view.Relation(), func(t model.Tuple, v truth.Value) bool {
		if !Holds(view, t, v) || !agrees(t, seed) {
			return true
		}
		return fn(t)
	})
}

// Count returns the number of tuples in view that agree with seed.
func (rc *RuntimeContext) Count(view View, seed []int) (int, error) {
	n := 0
	err := rc.Enumerate(view, seed, func(model.Tuple) bool {
		n++
		return true
	})
	return n, err
}

// AddViewListener subscribes listener to membership changes of view.
func (rc *RuntimeContext) AddViewListener(view View, listener ViewListener) (remove func(), err error) {
	return rc.listener.Subscribe(view, listener)
}

func agrees(t model.Tuple, seed []int) bool {
	for i, s := range seed {
		if s != Unbound && t.Get(i) != s {
			return false
		}
	}
	return true
}

// BaseIndex is the engine's structural index hook. The relational adapter keeps
// no index of its own.
type BaseIndex interface {
	IsInitialized() bool
	CoalesceTraversals(fn func() error) error
	ResampleDerivedFeatures()
}

type dummyBaseIndex struct{}

func (dummyBaseIndex) IsInitialized() bool                      { return true }
func (dummyBaseIndex) CoalesceTraversals(fn func() error) error { return fn() }
func (dummyBaseIndex) ResampleDerivedFeatures()                 {}

// EngineContext binds a matching engine to one snapshot.
type EngineContext struct {
	baseIndex BaseIndex
	runtime   *RuntimeContext
	listener  *ModelUpdateListener

	mu     sync.Mutex
	detach func()
}

// NewEngineContext exposes views of store to an engine and starts forwarding
// the store's writes to view listeners.
func NewEngineContext(store ObservableStore, views ...View) *EngineContext {
	listener := NewModelUpdateListener(views...)
	ec := &EngineContext{
		baseIndex: dummyBaseIndex{},
		runtime:   NewRuntimeContext(store, listener),
		listener:  listener,
	}
	ec.detach = store.AddListener(listener)
	return ec
}

func (ec *EngineContext) BaseIndex() BaseIndex { return ec.baseIndex }

func (ec *EngineContext) RuntimeContext() *RuntimeContext { return ec.runtime }

// Dispose stops forwarding writes. The store itself is untouched.
func (ec *EngineContext) Dispose() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.detach != nil {
		ec.detach()
		ec.detach = nil
	}
}

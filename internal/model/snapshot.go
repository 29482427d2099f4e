package model

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/uuid"

	"partialmodel/internal/truth"
)

// ChangeListener is notified synchronously after a snapshot write changed a value.
// A Put that stores the value already held is not reported. Notifications of
// successive writes arrive in write order; a listener must not call Put on the
// snapshot that notifies it.
type ChangeListener interface {
	OnChange(r *Relation, t Tuple, oldValue, newValue truth.Value)
}

// ChangeListenerFunc adapts a function to ChangeListener.
type ChangeListenerFunc func(r *Relation, t Tuple, oldValue, newValue truth.Value)

// OnChange implements ChangeListener.
func (f ChangeListenerFunc) OnChange(r *Relation, t Tuple, oldValue, newValue truth.Value) {
	f(r, t, oldValue, newValue)
}

// relationData stores one bitmap of encoded keys per non-default truth value.
type relationData struct {
	rel    *Relation
	values [len(truth.Values)]*roaring64.Bitmap
}

func newRelationData(r *Relation) *relationData {
	d := &relationData{rel: r}
	for _, v := range truth.Values {
		if v != r.defaultValue {
			d.values[v] = roaring64.New()
		}
	}
	return d
}

func (d *relationData) get(key uint64) truth.Value {
	for _, v := range truth.Values {
		if b := d.values[v]; b != nil && b.Contains(key) {
			return v
		}
	}
	return d.rel.defaultValue
}

func (d *relationData) clone() *relationData {
	c := &relationData{rel: d.rel}
	for i, b := range d.values {
		if b != nil {
			c.values[i] = b.Clone()
		}
	}
	return c
}

// Snapshot is one assignment of truth values to every relation of a store schema.
// Snapshots are safe for concurrent use.
type Snapshot struct {
	id    uuid.UUID
	store *Store

	// writeMu serializes Put including its notifications.
	writeMu      sync.Mutex
	mu           sync.RWMutex
	data         map[*Relation]*relationData
	listeners    []listenerEntry
	nextListener uint64
}

type listenerEntry struct {
	id uint64
	l  ChangeListener
}

// ID returns the snapshot identifier.
func (s *Snapshot) ID() uuid.UUID { return s.id }

// Store returns the store that created the snapshot.
func (s *Snapshot) Store() *Store { return s.store }

func (s *Snapshot) lookup(r *Relation, t Tuple) (*relationData, uint64, error) {
	d, ok := s.data[r]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnknownRelation, r)
	}
	if !r.IsValidKey(t) {
		return nil, 0, fmt.Errorf("%w: %v for %v", ErrInvalidKey, t, r)
	}
	key, err := r.hashProvider.Encode(t)
	if err != nil {
		return nil, 0, err
	}
	return d, key, nil
}

// Get returns the value stored at t in r, or r's default if t was never written.
func (s *Snapshot) Get(r *Relation, t Tuple) (truth.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, key, err := s.lookup(r, t)
	if err != nil {
		return truth.Error, err
	}
	return d.get(key), nil
}

// Put writes value at t in r. Attached listeners observe the change before Put returns.
func (s *Snapshot) Put(r *Relation, t Tuple, value truth.Value) error {
	if !value.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidValue, uint8(value))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	d, key, err := s.lookup(r, t)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	old := d.get(key)
	if old == value {
		s.mu.Unlock()
		return nil
	}
	if b := d.values[old]; b != nil {
		b.Remove(key)
	}
	if b := d.values[value]; b != nil {
		b.Add(key)
	}
	listeners := s.listeners
	s.mu.Unlock()

	for _, e := range listeners {
		e.l.OnChange(r, t, old, value)
	}
	return nil
}

// Count returns how many tuples of r currently hold value.
// Default values are implicit and cannot be counted.
func (s *Snapshot) Count(r *Relation, value truth.Value) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data[r]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnknownRelation, r)
	}
	if !value.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidValue, uint8(value))
	}
	if value == r.defaultValue {
		return 0, fmt.Errorf("%w: %v of %v", ErrDefaultNotCounted, value, r)
	}
	return d.values[value].GetCardinality(), nil
}

// ForEach calls fn for every tuple of r holding a non-default value, in key order.
// Iteration stops when fn returns false. fn must not write to the snapshot.
func (s *Snapshot) ForEach(r *Relation, fn func(t Tuple, value truth.Value) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data[r]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownRelation, r)
	}

	// Merge the per-value bitmaps so iteration is globally ordered by key.
	its := make([]roaring64.IntPeekable64, len(d.values))
	for i, b := range d.values {
		if b != nil {
			its[i] = b.Iterator()
		}
	}
	for {
		best := -1
		var bestKey uint64
		for i, it := range its {
			if it == nil || !it.HasNext() {
				continue
			}
			if k := it.PeekNext(); best < 0 || k < bestKey {
				best, bestKey = i, k
			}
		}
		if best < 0 {
			return nil
		}
		its[best].Next()
		if !fn(r.hashProvider.Decode(bestKey, r.arity), truth.Value(best)) {
			return nil
		}
	}
}

// AddListener attaches a change listener and returns a function detaching it.
func (s *Snapshot) AddListener(l ChangeListener) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextListener++
	id := s.nextListener
	// Copy on write so Put can iterate a stable slice outside the lock.
	next := make([]listenerEntry, len(s.listeners), len(s.listeners)+1)
	copy(next, s.listeners)
	s.listeners = append(next, listenerEntry{id: id, l: l})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		kept := make([]listenerEntry, 0, len(s.listeners))
		for _, e := range s.listeners {
			if e.id != id {
				kept = append(kept, e)
			}
		}
		s.listeners = kept
	}
}

// Fork returns an independent copy of the snapshot with a fresh id and no listeners.
func (s *Snapshot) Fork() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fork := &Snapshot{
		id:    uuid.New(),
		store: s.store,
		data:  make(map[*Relation]*relationData, len(s.data)),
	}
	for r, d := range s.data {
		fork.data[r] = d.clone()
	}
	s.store.logger.Debug("snapshot %s forked from %s", fork.id, s.id)
	return fork
}

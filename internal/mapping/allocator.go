package mapping

import (
	"fmt"

	"partialmodel/internal/problem"
)

// NodeTable maps specification nodes to their identifiers.
type NodeTable map[*problem.Node]int

// Allocator hands out dense node identifiers, starting at zero.
// One allocator is shared by every specification merged into a model.
type Allocator struct {
	next   int
	frozen bool
}

// Allocate returns the next identifier.
func (a *Allocator) Allocate() (int, error) {
	if a.frozen {
		return 0, ErrAllocatorFrozen
	}
	id := a.next
	a.next++
	return id, nil
}

// Allocated returns how many identifiers were handed out.
func (a *Allocator) Allocated() int {
	return a.next
}

// Freeze stops allocation and returns the universe of allocated identifiers.
// newNodes marks the identifiers belonging to prototype objects.
func (a *Allocator) Freeze(newNodes NodeTable) Universe {
	a.frozen = true
	u := Universe{size: a.next, isNew: make([]bool, a.next)}
	for _, id := range newNodes {
		u.isNew[id] = true
	}
	return u
}

// Universe is the immutable set of node identifiers of one model: 0..Len()-1.
type Universe struct {
	size  int
	isNew []bool
}

// Len returns the number of identifiers.
func (u Universe) Len() int { return u.size }

// Contains reports whether id belongs to the universe.
func (u Universe) Contains(id int) bool { return id >= 0 && id < u.size }

// IsNew reports whether id is a prototype object whose existence is undecided.
func (u Universe) IsNew(id int) bool { return u.Contains(id) && u.isNew[id] }

// IDs returns every identifier in ascending order.
func (u Universe) IDs() []int {
	out := make([]int, u.size)
	for i := range out {
		out[i] = i
	}
	return out
}

func (u Universe) String() string {
	n := 0
	for _, isNew := range u.isNew {
		if isNew {
			n++
		}
	}
	return fmt.Sprintf("universe(%d nodes, %d new)", u.size, n)
}

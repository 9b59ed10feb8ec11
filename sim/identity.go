package sim

import (
	"fmt"
	"slices"
	"sync"
)

// EntityKind is the concrete kind of a simulated entity. Identifiers are
// unique per kind, so kind and id together identify an entity.
type EntityKind string

const (
	KindSensor  EntityKind = "sensor"
	KindCharger EntityKind = "charger"
)

// Identifiable is any simulated object carrying a process-unique identifier.
type Identifiable interface {
	// ID returns an identifier unique among instances of the same kind.
	ID() int
	Kind() EntityKind
	// HasSameValues reports field-wise equality, independent of identity.
	HasSameValues(other Identifiable) bool
}

// UniqueIdentifier formats an entity as "kind[id]" for logs and metric records.
func UniqueIdentifier(e Identifiable) string {
	if e == nil {
		return "none"
	}
	return fmt.Sprintf("%s[%d]", e.Kind(), e.ID())
}

// SameEntity reports identity equality: same kind and same id.
func SameEntity(a, b Identifiable) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Kind() == b.Kind() && a.ID() == b.ID()
}

// idRegistry hands out identifiers per entity kind. Ids start at 1 and are
// never reused for the lifetime of the process.
type idRegistry struct {
	mu   sync.Mutex
	next map[EntityKind]int
}

var entityIDs = &idRegistry{next: make(map[EntityKind]int)}

func (r *idRegistry) nextID(kind EntityKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next[kind]++
	return r.next[kind]
}

// sameListener reports whether a and b are the same registered listener.
// Listeners whose dynamic type is not comparable, such as function adapters,
// never match anything, including themselves.
func sameListener[L any](a, b L) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return any(a) == any(b)
}

// listenerIndex returns the position of l in listeners, or -1.
func listenerIndex[L any](listeners []L, l L) int {
	return slices.IndexFunc(listeners, func(x L) bool { return sameListener(x, l) })
}

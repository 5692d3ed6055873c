package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/ganymede-dms/ganymede/internal/schema"
	"github.com/ganymede-dms/ganymede/internal/store"
)

type markKey struct {
	namespace string
	value     string
}

// Allocator arbitrates namespace-constrained values and object numbers
// across concurrent sessions. A reservation is visible only to the
// holding EditSet until commit and is released on abort.
type Allocator struct {
	mu       sync.Mutex
	store    *store.Store
	inflight map[markKey]*EditSet

	// per-type high-water marks for object number allocation, lazily
	// seeded from the store
	nextNum map[schema.ObjectType]int
}

// NewAllocator returns an allocator backed by the given store.
func NewAllocator(st *store.Store) *Allocator {
	return &Allocator{
		store:    st,
		inflight: make(map[markKey]*EditSet),
		nextNum:  make(map[schema.ObjectType]int),
	}
}

// Testmark atomically tests and reserves a namespace value for an
// EditSet. A value is free when no other object owns it committed and no
// other in-flight EditSet holds it. Reserving a value the owner object
// already holds committed succeeds (a no-op rename leg).
func (a *Allocator) Testmark(ctx context.Context, es *EditSet, namespace, value string, owner schema.Invid) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ot, on, taken, err := a.store.NamespaceOwner(ctx, namespace, value)
	if err != nil {
		return false, fmt.Errorf("testmark %s/%s: %w", namespace, value, err)
	}
	if taken && (schema.ObjectType(ot) != owner.Type || on != owner.Num) {
		return false, nil
	}

	key := markKey{namespace, value}
	if holder, held := a.inflight[key]; held && holder != es {
		return false, nil
	}

	a.inflight[key] = es
	es.reserved[key] = owner
	return true, nil
}

// Release drops one reservation if the EditSet holds it.
func (a *Allocator) Release(es *EditSet, namespace, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseLocked(es, markKey{namespace, value})
}

// ReleaseAll drops every reservation an EditSet holds; called on abort
// and after commit promotion.
func (a *Allocator) ReleaseAll(es *EditSet) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key := range es.reserved {
		a.releaseLocked(es, key)
	}
}

func (a *Allocator) releaseLocked(es *EditSet, key markKey) {
	if holder, held := a.inflight[key]; held && holder == es {
		delete(a.inflight, key)
	}
	delete(es.reserved, key)
}

// reacquire restores reservations dropped since a checkpoint. Best
// effort: a value another EditSet grabbed in the meantime stays lost and
// the next testmark on it will fail normally.
func (a *Allocator) reacquire(es *EditSet, marks map[markKey]schema.Invid) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, owner := range marks {
		if holder, held := a.inflight[key]; held && holder != es {
			continue
		}
		a.inflight[key] = es
		es.reserved[key] = owner
	}
}

// AllocNum hands out the next object number for a type, counting both
// committed objects and numbers handed out to in-flight creations.
func (a *Allocator) AllocNum(ctx context.Context, typ schema.ObjectType) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next, seeded := a.nextNum[typ]
	if !seeded {
		n, err := a.store.NextNum(ctx, int(typ))
		if err != nil {
			return 0, err
		}
		next = n
	}
	a.nextNum[typ] = next + 1
	return next, nil
}

package boot

import (
	"context"
	"sync"
)

// Scope is the registration handle a unit body receives. Registrations made
// through a scope attach to the unit that owns it, so nested units land
// under their parent instead of at the top level.
type Scope struct {
	boot     *Boot
	unit     *unit
	instance any
	dec      *decorations
}

// OverrideFunc derives the scope a unit and its descendants observe. It may
// return the parent scope unchanged, a fork of it, or an error, which is
// recorded as the unit's own failure. After-units bypass the override.
type OverrideFunc func(parent *Scope, name string) (*Scope, error)

// Instance returns the host object the orchestrator was created with.
func (s *Scope) Instance() any { return s.instance }

// Boot returns the owning orchestrator.
func (s *Scope) Boot() *Boot { return s.boot }

// Use registers fn as a child of the unit owning this scope. The child runs
// after this unit's body settles and before this unit is considered loaded.
func (s *Scope) Use(fn UnitFunc, opts ...UnitOption) *Scope {
	s.boot.register(s.unit, fn, opts)
	return s
}

// After registers a continuation that runs at the current position even when
// an earlier unit has failed, observing the ambient error.
func (s *Scope) After(h Hook) *Scope {
	s.boot.registerAfter(s.unit, h)
	return s
}

// OnClose prepends a teardown continuation to the orchestrator's close queue.
func (s *Scope) OnClose(h Hook) *Scope {
	s.boot.OnClose(h)
	return s
}

// LoadedSoFar blocks until the owning unit's body and all children known at
// the time of the call have settled, returning the ambient error observed at
// that point plus a release function. The unit stays open until release is
// called, so children registered before the release still attach; callers
// must always call release. It must not be called from inside this unit's
// own body unless the body signals completion through a callback.
func (s *Scope) LoadedSoFar(ctx context.Context) (func(), error) {
	return awaitPartial(ctx, s.unit)
}

// Decorate registers a named accessor on the scope, visible to this scope
// and its descendants. Decorating a name that is already present anywhere on
// the chain panics with a DecorationError.
func (s *Scope) Decorate(name string, v any) *Scope {
	if err := s.dec.set(name, v); err != nil {
		panic(err)
	}
	return s
}

// Lookup resolves a decoration, walking encapsulation boundaries upward.
func (s *Scope) Lookup(name string) (any, bool) {
	return s.dec.lookup(name)
}

// Fork returns an encapsulated scope: decorations added to the fork are
// visible to it and its descendants but never to the parent side. Combine
// with WithOverride to encapsulate whole subtrees.
func (s *Scope) Fork() *Scope {
	return &Scope{
		boot:     s.boot,
		unit:     s.unit,
		instance: s.instance,
		dec:      &decorations{values: make(map[string]any), parent: s.dec},
	}
}

// decorations is a chained name -> value table. The default override shares
// one table across the whole tree; Fork starts a child table.
type decorations struct {
	mu     sync.RWMutex
	values map[string]any
	parent *decorations
}

func (d *decorations) lookup(name string) (any, bool) {
	for cur := d; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		v, ok := cur.values[name]
		cur.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

func (d *decorations) set(name string, v any) error {
	if _, ok := d.lookup(name); ok {
		return &DecorationError{Name: name}
	}
	d.mu.Lock()
	d.values[name] = v
	d.mu.Unlock()
	return nil
}

// bindScope hands every unit its own handle even when the instance and the
// decoration table are shared, so registration targets stay unambiguous.
func (b *Boot) bindScope(base *Scope, u *unit) *Scope {
	if base.unit == u {
		return base
	}
	return &Scope{boot: b, unit: u, instance: base.instance, dec: base.dec}
}

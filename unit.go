package boot

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type unitState uint8

const (
	statePending unitState = iota
	stateRunning
	stateLoaded
)

// unit is one registered initialization function together with its own queue
// of nested units. State moves Pending -> Running -> Loaded exactly once; a
// unit is never reused.
type unit struct {
	b         *Boot
	id        string
	name      string
	fn        UnitFunc
	options   any
	optionsFn func(*Scope) any
	isAfter   bool
	timeout   time.Duration

	q *levelQueue

	mu        sync.Mutex
	state     unitState
	err       error
	skipped   bool
	scope     *Scope
	parent    *unit
	partials  []*partialWaiter
	startedAt time.Time
	stoppedAt time.Time
}

type unitConfig struct {
	name       string
	timeout    time.Duration
	hasTimeout bool
	options    any
	optionsFn  func(*Scope) any
}

// UnitOption configures a single registration.
type UnitOption func(*unitConfig)

// WithName overrides the name derived from the unit function.
func WithName(name string) UnitOption {
	return func(c *unitConfig) { c.name = name }
}

// WithUnitTimeout overrides the orchestrator-level timeout for this unit.
func WithUnitTimeout(d time.Duration) UnitOption {
	return func(c *unitConfig) { c.timeout = d; c.hasTimeout = true }
}

// WithOptions passes a fixed options value to the unit body.
func WithOptions(v any) UnitOption {
	return func(c *unitConfig) { c.options = v }
}

// WithOptionsFunc derives the options value from the unit's resolved scope
// just before the body runs.
func WithOptionsFunc(fn func(*Scope) any) UnitOption {
	return func(c *unitConfig) { c.optionsFn = fn }
}

func (b *Boot) newUnit(fn UnitFunc, cfg unitConfig, isAfter bool) *unit {
	u := &unit{
		b:         b,
		id:        ulid.Make().String(),
		fn:        fn,
		options:   cfg.options,
		optionsFn: cfg.optionsFn,
		isAfter:   isAfter,
		timeout:   b.timeout,
	}
	if cfg.hasTimeout {
		u.timeout = cfg.timeout
	}
	u.name = cfg.name
	if u.name == "" {
		u.name = fn.funcName()
	}
	if u.name == "" {
		u.name = "unit-" + u.id[:10]
	}
	u.q = newLevelQueue(func(child *unit, done func(error)) {
		b.loadUnit(child, done)
	})
	return u
}

// exec runs the unit's body. The children queue is untouched here; finish
// resumes it once the body has settled.
func (u *unit) exec(parent *Scope, cb func(error)) {
	b := u.b
	if err := b.loadError(); err != nil && !u.isAfter {
		u.mu.Lock()
		u.skipped = true
		u.mu.Unlock()
		b.log.WithField("unit", u.name).Debug("skipping unit, boot already errored")
		cb(nil)
		return
	}

	base := parent
	if !u.isAfter && b.override != nil {
		s, err := b.override(parent, u.name)
		if err != nil {
			u.settle(err)
			cb(err)
			return
		}
		if s != nil {
			base = s
		}
	}
	scope := b.bindScope(base, u)

	u.mu.Lock()
	u.scope = scope
	u.state = stateRunning
	u.startedAt = time.Now()
	u.mu.Unlock()
	b.notifyStart(u)

	opts := u.options
	if u.optionsFn != nil {
		opts = u.optionsFn(scope)
	}

	c := newCompletion(func(err error) {
		u.settle(err)
		cb(err)
	})
	c.guard("unit "+u.name, u.timeout)
	u.fn.call(scope, opts, c.signal)
}

func (u *unit) settle(err error) {
	u.mu.Lock()
	u.err = err
	u.mu.Unlock()
	if err != nil {
		u.b.setLoadError(err)
	}
}

// finish marks the unit loaded once its body and all children, including
// children registered while earlier ones were draining, have settled.
func (u *unit) finish(err error, cb func(error)) {
	done := func() {
		u.q.close()
		u.mu.Lock()
		if u.state == stateLoaded {
			u.mu.Unlock()
			return
		}
		u.state = stateLoaded
		u.stoppedAt = time.Now()
		skipped := u.skipped
		waiters := u.partials
		u.partials = nil
		u.mu.Unlock()
		for _, w := range waiters {
			w.ch <- err
			w.release()
		}
		u.b.notifyLoaded(u, skipped)
		cb(err)
	}

	if err != nil {
		done()
		return
	}

	var check func()
	check = func() {
		u.q.onceIdle(func() {
			if w := u.takePartial(); w != nil {
				w.ch <- u.b.loadError()
				// hold the unit open until the consumer releases; it may
				// register further children before then
				go func() {
					<-w.done
					check()
				}()
				return
			}
			// close and settle atomically with the idle check, so a
			// registration racing the drain either lands before the close
			// or fails fast at push
			if !u.q.closeIfIdle() {
				check()
				return
			}
			done()
		})
	}
	go check()
	u.q.resume()
}

func (u *unit) takePartial() *partialWaiter {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.partials) == 0 {
		return nil
	}
	w := u.partials[0]
	u.partials = u.partials[1:]
	return w
}

// partialWaiter is one pending loadedSoFar consumer. The result arrives on
// ch; the owning unit stays open, with its queue held at the idle point,
// until release is called.
type partialWaiter struct {
	ch   chan error
	done chan struct{}
	once sync.Once
}

func (w *partialWaiter) release() {
	w.once.Do(func() { close(w.done) })
}

// loadedSoFar registers a waiter for the point at which the unit's own body
// and all children known so far have settled. The caller must release the
// waiter once it is finished registering follow-up children.
func (u *unit) loadedSoFar() *partialWaiter {
	w := &partialWaiter{ch: make(chan error, 1), done: make(chan struct{})}
	u.mu.Lock()
	if u.state == stateLoaded {
		err := u.err
		u.mu.Unlock()
		w.ch <- err
		w.release()
		return w
	}
	u.partials = append(u.partials, w)
	u.mu.Unlock()
	return w
}

// awaitPartial blocks on a partial waiter. On cancellation the waiter is
// released immediately so an abandoned consumer never wedges the tree.
func awaitPartial(ctx context.Context, u *unit) (func(), error) {
	w := u.loadedSoFar()
	select {
	case err := <-w.ch:
		return w.release, err
	case <-ctx.Done():
		w.release()
		return func() {}, ctx.Err()
	}
}

func (u *unit) currentScope() *Scope {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.scope
}

func (u *unit) errValue() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

func (u *unit) started() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return !u.startedAt.IsZero()
}

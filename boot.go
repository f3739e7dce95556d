package boot

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Boot orchestrates a tree of boot units: registration, depth-first
// execution one unit at a time, failure propagation, the single ready point
// and the symmetric close teardown sequence.
type Boot struct {
	instance any
	timeout  time.Duration
	override OverrideFunc
	log      logrus.FieldLogger
	metrics  *Metrics
	tree     *TimeTree

	root      *unit
	rootScope *Scope

	mu      sync.Mutex
	current []*unit // units currently open for registration, innermost first
	err     error   // ambient error: the most recent unconsumed failure
	started bool
	booted  bool

	readyPending  []Hook
	readyDraining bool
	readyDone     bool
	readyConsumed bool
	terminal      error

	closePrepend  []Hook // built by OnClose, newest first
	closePending  []Hook
	closeStarted  bool
	closeDraining bool

	startOnce sync.Once
	readyCh   chan struct{}
}

// Option configures an orchestrator.
type Option func(*Boot)

// WithTimeout sets the default completion window inherited by every unit and
// applied to ready/close continuations that take a done callback. Zero
// means wait forever.
func WithTimeout(d time.Duration) Option {
	return func(b *Boot) { b.timeout = d }
}

// WithOverride installs the scope override hook applied to every non-after
// unit before its body runs.
func WithOverride(fn OverrideFunc) Option {
	return func(b *Boot) { b.override = fn }
}

// WithLogger replaces the orchestrator's logger. The default discards all
// output.
func WithLogger(log logrus.FieldLogger) Option {
	return func(b *Boot) { b.log = log }
}

// WithMetrics attaches prometheus collectors for unit outcomes.
func WithMetrics(m *Metrics) Option {
	return func(b *Boot) { b.metrics = m }
}

// New creates an orchestrator around the given host instance. Nothing runs
// until Start, Ready, Wait or Close releases the root unit.
func New(instance any, opts ...Option) *Boot {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	b := &Boot{
		instance: instance,
		log:      lg,
		tree:     newTimeTree(),
		readyCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.root = b.newUnit(Unit(func(*Scope) error { return nil }), unitConfig{name: "root"}, false)
	b.rootScope = &Scope{
		boot:     b,
		unit:     b.root,
		instance: instance,
		dec:      &decorations{values: make(map[string]any)},
	}
	return b
}

// Use registers fn against the innermost open unit: the root before boot
// starts, or the unit whose subtree is currently settling.
func (b *Boot) Use(fn UnitFunc, opts ...UnitOption) *Boot {
	b.register(b.currentUnit(), fn, opts)
	return b
}

// After registers an after-unit at the current position. After-units always
// run, even under an upstream failure, and observe the ambient error.
func (b *Boot) After(h Hook) *Boot {
	b.registerAfter(b.currentUnit(), h)
	return b
}

// LoadedSoFar blocks until the innermost open unit's body and all of its
// currently known children have settled, returning the ambient error
// observed at that point plus a release function. The unit stays open until
// release is called, so children registered before the release still attach;
// callers must always call release.
func (b *Boot) LoadedSoFar(ctx context.Context) (func(), error) {
	return awaitPartial(ctx, b.currentUnit())
}

// Start releases the root unit. It is idempotent: the root runs exactly once
// no matter how many of Start, Ready, Wait and Close are called.
func (b *Boot) Start() *Boot {
	b.startOnce.Do(func() {
		b.mu.Lock()
		b.started = true
		b.mu.Unlock()
		b.log.Debug("boot started")
		go b.loadUnit(b.root, b.bootFinished)
	})
	return b
}

// Started reports whether the root unit has been released.
func (b *Boot) Started() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// Booted reports whether the whole tree has settled.
func (b *Boot) Booted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.booted
}

// Ready queues continuations to run, one at a time and in registration
// order, once the whole tree has settled, and triggers the start sequence.
// Hooks registered after boot run immediately.
func (b *Boot) Ready(hooks ...Hook) *Boot {
	for _, h := range hooks {
		if !h.valid {
			panic(ErrInvalidHook)
		}
	}
	b.mu.Lock()
	if len(hooks) > 0 {
		b.readyConsumed = true
	}
	b.readyPending = append(b.readyPending, hooks...)
	kick := b.booted && !b.readyDraining
	if kick {
		b.readyDraining = true
	}
	b.mu.Unlock()
	if kick {
		go b.drainReady(func() {})
	}
	b.Start()
	return b
}

// Wait starts the boot if necessary and blocks until the tree has settled
// and the ready queue has drained, returning the host instance and the
// terminal boot error, if any.
func (b *Boot) Wait(ctx context.Context) (any, error) {
	b.mu.Lock()
	b.readyConsumed = true
	b.mu.Unlock()
	b.Start()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.readyCh:
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.instance, b.terminal
	}
}

// OnClose prepends a teardown continuation: among OnClose handlers the last
// registered runs first.
func (b *Boot) OnClose(h Hook) *Boot {
	if !h.valid {
		panic(ErrInvalidHook)
	}
	b.mu.Lock()
	if b.booted {
		b.mu.Unlock()
		panic(ErrRootBooted)
	}
	b.closePrepend = append([]Hook{h}, b.closePrepend...)
	b.mu.Unlock()
	return b
}

// Close waits for the ready point, clears the ambient error and drains the
// close queue exactly once. The given hooks run after the teardown units of
// this drain. Re-entrant calls, including calls made from inside a close
// handler, are queued behind the active drain, never double-drained.
func (b *Boot) Close(hooks ...Hook) *Boot {
	for _, h := range hooks {
		if !h.valid {
			panic(ErrInvalidHook)
		}
	}
	b.Start()
	go func() {
		<-b.readyCh
		b.mu.Lock()
		// teardown consumes the boot failure; Wait has already captured it
		b.err = nil
		entries := hooks
		if !b.closeStarted {
			b.closeStarted = true
			entries = append(append([]Hook{}, b.closePrepend...), hooks...)
			b.closePrepend = nil
		}
		b.closePending = append(b.closePending, entries...)
		if b.closeDraining {
			b.mu.Unlock()
			return
		}
		b.closeDraining = true
		b.mu.Unlock()
		b.drainClose()
	}()
	return b
}

// Shutdown closes the orchestrator and blocks until every teardown
// continuation has run, returning the last unconsumed teardown error.
func (b *Boot) Shutdown(ctx context.Context) error {
	ch := make(chan error, 1)
	b.Close(HookErr(func(err error) error {
		ch <- err
		return err
	}))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-ch:
		return err
	}
}

// TimeTree returns the timing tree recorded for the executed units.
func (b *Boot) TimeTree() *TimeTree {
	return b.tree
}

func (b *Boot) currentUnit() *unit {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.current) > 0 {
		return b.current[0]
	}
	return b.root
}

func (b *Boot) register(target *unit, fn UnitFunc, opts []UnitOption) {
	if fn == nil {
		panic(ErrInvalidUnit)
	}
	cfg := unitConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	b.attach(target, b.newUnit(fn, cfg, false))
}

func (b *Boot) registerAfter(target *unit, h Hook) {
	if !h.valid {
		panic(ErrInvalidHook)
	}
	fn := UnitCallback(func(s *Scope, _ any, done func(error)) {
		b.runHook(h, s, false, done)
	})
	b.attach(target, b.newUnit(fn, unitConfig{name: h.name}, true))
}

func (b *Boot) attach(target *unit, u *unit) {
	b.mu.Lock()
	booted := b.booted
	b.mu.Unlock()
	if booted {
		panic(ErrRootBooted)
	}
	target.mu.Lock()
	if target.state == stateLoaded {
		name := target.name
		target.mu.Unlock()
		panic(&AlreadyLoadedError{Name: name})
	}
	u.parent = target
	target.mu.Unlock()
	// the queue is the authoritative gate: it closes atomically with the
	// target's final drain check
	if !target.q.push(u) {
		panic(&AlreadyLoadedError{Name: target.name})
	}
}

// loadUnit drives one unit through exec and finish, maintaining the stack of
// units open for registration around it.
func (b *Boot) loadUnit(u *unit, done func(error)) {
	b.mu.Lock()
	parentScope := b.rootScope
	if len(b.current) > 0 {
		if s := b.current[0].currentScope(); s != nil {
			parentScope = s
		}
	}
	b.current = append([]*unit{u}, b.current...)
	b.mu.Unlock()

	u.exec(parentScope, func(err error) {
		u.finish(err, func(err error) {
			b.mu.Lock()
			if len(b.current) > 0 && b.current[0] == u {
				b.current = b.current[1:]
			}
			b.mu.Unlock()
			done(err)
		})
	})
}

func (b *Boot) loadError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// setLoadError arms the ambient slot; nil is ignored so a clean unit never
// clears a failure it did not consume.
func (b *Boot) setLoadError(err error) {
	b.mu.Lock()
	if err != nil {
		b.err = err
	}
	b.mu.Unlock()
}

// storeLoadError replaces the ambient slot outright: a continuation that
// received the error and completed clean has consumed it.
func (b *Boot) storeLoadError(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

// runHook invokes a continuation in its declared calling style, threading
// the ambient error through it. guarded applies the orchestrator timeout to
// the callback styles, which have no other way to bound a lost done signal.
func (b *Boot) runHook(h Hook, s *Scope, guarded bool, cb func(error)) {
	ambient := b.loadError()
	switch h.style {
	case styleFunc:
		if err := h.plain(); err != nil {
			b.storeLoadError(err)
			cb(err)
			return
		}
		cb(nil)
	case styleErr:
		err := h.withErr(ambient)
		b.storeLoadError(err)
		cb(err)
	default:
		c := newCompletion(func(err error) {
			b.storeLoadError(err)
			cb(err)
		})
		if guarded {
			c.guard(h.name, b.timeout)
		}
		if h.style == styleCallback {
			h.callback(ambient, c.signal)
		} else {
			h.ctxCallback(ambient, s, c.signal)
		}
	}
}

func (b *Boot) bootFinished(err error) {
	if err != nil {
		b.log.WithError(err).Debug("boot tree settled with error")
	}
	b.mu.Lock()
	b.booted = true
	b.readyDraining = true
	b.mu.Unlock()
	b.drainReady(b.finishReady)
}

func (b *Boot) drainReady(then func()) {
	for {
		b.mu.Lock()
		if len(b.readyPending) == 0 {
			b.readyDraining = false
			b.mu.Unlock()
			then()
			return
		}
		h := b.readyPending[0]
		b.readyPending = b.readyPending[1:]
		b.mu.Unlock()

		ch := make(chan error, 1)
		b.runHook(h, b.rootScope, true, func(err error) { ch <- err })
		<-ch
	}
}

func (b *Boot) finishReady() {
	b.mu.Lock()
	if b.readyDone {
		b.mu.Unlock()
		return
	}
	b.readyDone = true
	b.terminal = b.err
	terminal := b.terminal
	consumed := b.readyConsumed
	b.mu.Unlock()
	close(b.readyCh)
	if terminal != nil {
		b.log.WithError(terminal).Error("boot finished with error")
		if !consumed {
			// nothing is listening for the failure; it must not be swallowed
			b.log.WithError(terminal).Fatal("unhandled boot error")
		}
		return
	}
	b.log.Debug("boot ready")
}

func (b *Boot) drainClose() {
	for {
		b.mu.Lock()
		if len(b.closePending) == 0 {
			b.closeDraining = false
			b.mu.Unlock()
			b.log.Debug("close queue drained")
			return
		}
		h := b.closePending[0]
		b.closePending = b.closePending[1:]
		b.mu.Unlock()

		ch := make(chan error, 1)
		b.runHook(h, b.rootScope, true, func(err error) { ch <- err })
		<-ch
	}
}

func (b *Boot) notifyStart(u *unit) {
	parentID := ""
	if u.parent != nil {
		parentID = u.parent.id
	}
	b.tree.add(u.id, parentID, u.name, u.startedAt)
	if b.metrics != nil {
		b.metrics.inFlight.Inc()
	}
	b.log.WithFields(logrus.Fields{"unit": u.name, "id": u.id}).Debug("unit start")
}

func (b *Boot) notifyLoaded(u *unit, skipped bool) {
	if skipped {
		if b.metrics != nil {
			b.metrics.unitsTotal.WithLabelValues(statusSkipped).Inc()
		}
		b.log.WithField("unit", u.name).Debug("unit skipped")
		return
	}
	status := statusLoaded
	if u.errValue() != nil {
		status = statusFailed
	}
	if u.started() {
		b.tree.stop(u.id, u.stoppedAt)
		if b.metrics != nil {
			b.metrics.inFlight.Dec()
			b.metrics.loadDuration.Observe(u.stoppedAt.Sub(u.startedAt).Seconds())
		}
	}
	if b.metrics != nil {
		b.metrics.unitsTotal.WithLabelValues(status).Inc()
	}
	b.log.WithFields(logrus.Fields{"unit": u.name, "status": status}).Debug("unit loaded")
}

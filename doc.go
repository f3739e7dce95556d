// Package boot is an asynchronous, dependency-ordered initialization
// orchestrator. It brings up an application as a tree of boot units, runs
// them depth-first one at a time, funnels every failure into a single
// ambient error slot, and tears the application down through a symmetric
// close queue.
//
// # Units
//
// A unit is one initialization step. Register units with Use; they execute
// strictly in registration order, and a unit registered from inside another
// unit's body becomes its child:
//
//	b := boot.New(app)
//	b.Use(boot.Unit(func(s *boot.Scope) error {
//		// runs first
//		s.Use(boot.Unit(func(s *boot.Scope) error {
//			// runs after the parent body returns,
//			// before the parent is considered loaded
//			return nil
//		}))
//		return nil
//	}))
//	b.Use(boot.Unit(func(s *boot.Scope) error {
//		// runs after the first unit and its whole subtree
//		return nil
//	}))
//
// Children never start before their parent's body has settled, and a parent
// is not loaded until every child, including children registered while
// earlier siblings were draining, has loaded.
//
// A unit body picks one of three calling styles at registration time:
//
//	boot.Unit(func(s *boot.Scope) error { ... })
//	boot.UnitOpts(func(s *boot.Scope, opts any) error { ... })
//	boot.UnitCallback(func(s *boot.Scope, opts any, done func(error)) { ... })
//
// The callback style is for bodies that settle asynchronously; done may be
// called from any goroutine and only its first invocation counts.
//
// # Failure
//
// The orchestrator keeps a single ambient error: the first unit failure arms
// it, and every later non-after unit is skipped while it is set. After
// continuations registered with After or passed to Ready receive the error
// and consume it; completing clean clears the slot and lets subsequent units
// run again:
//
//	b.Use(boot.Unit(connectDB))
//	b.After(boot.HookErr(func(err error) error {
//		if err != nil {
//			log.Printf("db unavailable, using fallback: %v", err)
//			return nil // handled
//		}
//		return nil
//	}))
//
// A boot failure that reaches the ready point with nobody listening, no
// Ready continuation and no Wait caller, is fatal: the orchestrator logs it
// through its logrus logger at Fatal level and the process exits.
//
// # Ready and close
//
// Ready queues continuations for the moment the whole tree has settled.
// Wait is the blocking form and returns the host instance and the terminal
// error. Close drains the teardown queue: handlers registered with OnClose
// run newest-first, then the handlers passed to Close itself, strictly one
// at a time:
//
//	b.OnClose(boot.HookErr(func(err error) error { pool.Shutdown(); return err }))
//	if _, err := b.Wait(ctx); err != nil {
//		return err
//	}
//	defer b.Shutdown(context.Background())
//
// # Scopes
//
// Every unit body receives a Scope, its registration handle. Scopes also
// carry named decorations; Fork combined with WithOverride encapsulates a
// subtree so its decorations stay private:
//
//	b := boot.New(app, boot.WithOverride(func(parent *boot.Scope, name string) (*boot.Scope, error) {
//		if strings.HasPrefix(name, "plugin-") {
//			return parent.Fork(), nil
//		}
//		return parent, nil
//	}))
//
// # Observability
//
// WithLogger attaches a logrus logger (the default discards everything),
// WithMetrics attaches prometheus collectors, and TimeTree exposes the
// recorded per-unit timings as a snapshot, JSON, or rendered ASCII art:
//
//	fmt.Println(b.TimeTree())
//
// # Concurrency
//
// One unit body runs at a time; the orchestrator never executes two units
// concurrently. Registration methods and accessors are safe for concurrent
// use, and Wait, Shutdown, LoadedSoFar and Scope.LoadedSoFar are the
// blocking, context-aware entry points.
package boot

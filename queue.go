package boot

import "sync"

// levelQueue executes one unit's direct children strictly in registration
// order, one at a time. It starts paused; the owning unit resumes it only
// once its own body has settled, so children never overtake their parent.
// Dequeued units are dispatched on a fresh goroutine, keeping completions
// from re-entering the lock they were dispatched under.
type levelQueue struct {
	mu      sync.Mutex
	items   []*unit
	paused  bool
	running bool
	closed  bool
	drain   func()
	work    func(u *unit, done func(error))
}

func newLevelQueue(work func(*unit, func(error))) *levelQueue {
	return &levelQueue{paused: true, work: work}
}

// push reports whether the entry was accepted; a closed queue rejects it, so
// registration against a settled unit fails fast instead of running late.
func (q *levelQueue) push(u *unit) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, u)
	q.mu.Unlock()
	q.kick()
	return true
}

func (q *levelQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// closeIfIdle closes the queue only if nothing is queued or in flight, in
// one critical section, so a push racing the owner's final drain check
// either lands before the close or is rejected.
func (q *levelQueue) closeIfIdle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running || len(q.items) > 0 {
		return false
	}
	q.closed = true
	return true
}

func (q *levelQueue) resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.kick()
}

// onceIdle runs fn as soon as the queue is resumed with nothing queued and
// nothing in flight. The callback is one-shot: it is consumed on delivery
// and never fires a second time.
func (q *levelQueue) onceIdle(fn func()) {
	q.mu.Lock()
	if !q.paused && !q.running && len(q.items) == 0 {
		q.mu.Unlock()
		fn()
		return
	}
	q.drain = fn
	q.mu.Unlock()
}

func (q *levelQueue) kick() {
	q.mu.Lock()
	if q.paused || q.running {
		q.mu.Unlock()
		return
	}
	if len(q.items) == 0 {
		drain := q.drain
		q.drain = nil
		q.mu.Unlock()
		if drain != nil {
			drain()
		}
		return
	}
	next := q.items[0]
	q.items = q.items[1:]
	q.running = true
	q.mu.Unlock()

	go q.work(next, func(error) {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
		q.kick()
	})
}

package boot

import (
	"sync"
	"time"
)

// completion delivers a unit or continuation result exactly once. A second
// signal, such as a genuine callback arriving after the timeout guard fired,
// is discarded silently.
type completion struct {
	once    sync.Once
	mu      sync.Mutex
	timer   *time.Timer
	deliver func(error)
}

func newCompletion(deliver func(error)) *completion {
	return &completion{deliver: deliver}
}

// guard arms a timer that forces a TimeoutError completion if no signal
// arrives within d. Zero or a negative d leaves the completion unguarded.
// The timer only abandons waiting; it cannot stop the underlying work.
func (c *completion) guard(name string, d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.timer = time.AfterFunc(d, func() {
		c.signal(&TimeoutError{Name: name, Timeout: d})
	})
	c.mu.Unlock()
}

func (c *completion) signal(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		if c.timer != nil {
			c.timer.Stop()
		}
		c.mu.Unlock()
		c.deliver(err)
	})
}

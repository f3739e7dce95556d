package boot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseRunsNewestFirstThenCloseHooks(t *testing.T) {
	tr := &trace{}
	b := New(nil)
	b.OnClose(HookFunc(func() error { tr.add("h1"); return nil }))
	b.OnClose(HookFunc(func() error { tr.add("h2"); return nil }))
	b.Use(Unit(func(s *Scope) error {
		s.OnClose(HookFunc(func() error { tr.add("h3"); return nil }))
		return nil
	}))

	_, err := b.Wait(waitCtx(t))
	require.NoError(t, err)
	require.NoError(t, b.Shutdown(waitCtx(t)))
	// Shutdown appends its own probe hook, so all teardown ran before this point
	assert.Equal(t, []string{"h3", "h2", "h1"}, tr.get())
}

func TestCloseWaitsForBoot(t *testing.T) {
	tr := &trace{}
	b := New(nil)
	b.Use(UnitCallback(func(_ *Scope, _ any, done func(error)) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			tr.add("booted")
			done(nil)
		}()
	}))
	b.OnClose(HookFunc(func() error { tr.add("closed"); return nil }))

	require.NoError(t, b.Shutdown(waitCtx(t)))
	assert.Equal(t, []string{"booted", "closed"}, tr.get())
}

func TestCloseErrorFlowsThroughTeardown(t *testing.T) {
	errStop := errors.New("stop failed")
	b := New(nil)
	b.OnClose(HookErr(func(err error) error {
		// runs second, newest first: observes and forwards the failure
		assert.ErrorIs(t, err, errStop)
		return err
	}))
	b.OnClose(HookFunc(func() error { return errStop }))

	_, err := b.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.ErrorIs(t, b.Shutdown(waitCtx(t)), errStop)
}

func TestCloseHandledErrorIsCleared(t *testing.T) {
	errStop := errors.New("stop failed")
	b := New(nil)
	b.OnClose(HookErr(func(err error) error {
		assert.ErrorIs(t, err, errStop)
		return nil // handled
	}))
	b.OnClose(HookFunc(func() error { return errStop }))

	_, err := b.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.NoError(t, b.Shutdown(waitCtx(t)))
}

func TestCloseClearsBootError(t *testing.T) {
	b := New(nil)
	b.Use(Unit(func(*Scope) error { return errBoom }))
	got := make(chan error, 1)
	b.OnClose(HookErr(func(err error) error {
		got <- err
		return err
	}))

	_, err := b.Wait(waitCtx(t))
	require.ErrorIs(t, err, errBoom)
	// teardown starts clean: the boot failure was already delivered to Wait
	require.NoError(t, b.Shutdown(waitCtx(t)))
	assert.NoError(t, <-got)
}

func TestReentrantCloseIsQueuedNotRedrained(t *testing.T) {
	tr := &trace{}
	extra := make(chan struct{})
	b := New(nil)
	b.OnClose(HookFunc(func() error {
		tr.add("outer")
		b.Close(HookFunc(func() error {
			tr.add("extra")
			close(extra)
			return nil
		}))
		return nil
	}))

	require.NoError(t, b.Shutdown(waitCtx(t)))
	select {
	case <-extra:
	case <-time.After(5 * time.Second):
		t.Fatal("re-entrant close hook never ran")
	}
	steps := tr.get()
	require.Len(t, steps, 2)
	assert.Equal(t, "outer", steps[0])
	assert.Equal(t, "extra", steps[1])
}

func TestShutdownHonorsContext(t *testing.T) {
	b := New(nil)
	b.Use(UnitCallback(func(_ *Scope, _ any, done func(error)) {
		// boot never settles, so close never starts
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Shutdown(ctx), context.DeadlineExceeded)
}

func TestCloseHookTimeout(t *testing.T) {
	b := New(nil, WithTimeout(20*time.Millisecond))
	b.OnClose(HookCallback(func(err error, done func(error)) {
		// never signals
	}))

	err := b.Shutdown(waitCtx(t))
	var te *TimeoutError
	assert.ErrorAs(t, err, &te)
}

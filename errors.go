package boot

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidUnit is the panic value for a nil or untyped unit body.
	ErrInvalidUnit = errors.New("boot: unit body must be built with Unit, UnitOpts or UnitCallback")

	// ErrInvalidHook is the panic value for a zero-value or nil continuation.
	ErrInvalidHook = errors.New("boot: hook must be built with HookFunc, HookErr, HookCallback or HookCtxCallback")

	// ErrRootBooted is the panic value for any registration attempted after
	// the whole tree has settled.
	ErrRootBooted = errors.New("boot: root scope already booted")
)

// TimeoutError is the failure synthesized when a unit or continuation does
// not signal completion within its configured window.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("boot: %s did not signal completion within %s", e.Name, e.Timeout)
}

// AlreadyLoadedError is the panic value for a registration against a unit
// that has already settled.
type AlreadyLoadedError struct {
	Name string
}

func (e *AlreadyLoadedError) Error() string {
	return fmt.Sprintf("boot: unit %q already loaded, registration is closed", e.Name)
}

// DecorationError is the panic value for a duplicate accessor name on a scope.
type DecorationError struct {
	Name string
}

func (e *DecorationError) Error() string {
	return fmt.Sprintf("boot: decoration %q already present on the scope", e.Name)
}

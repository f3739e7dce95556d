package boot

import (
	"reflect"
	"runtime"
	"strings"
)

// UnitFunc is a unit body normalized to a single completion signal. Build
// one with Unit, UnitOpts or UnitCallback: the calling style is fixed at
// registration time instead of being inferred at run time.
type UnitFunc interface {
	call(s *Scope, opts any, done func(error))
	funcName() string
}

type unitSimple struct {
	fn   func(*Scope) error
	name string
}

func (u unitSimple) call(s *Scope, _ any, done func(error)) { done(u.fn(s)) }
func (u unitSimple) funcName() string                       { return u.name }

// Unit wraps a body that has settled when it returns.
func Unit(fn func(*Scope) error) UnitFunc {
	if fn == nil {
		panic(ErrInvalidUnit)
	}
	return unitSimple{fn: fn, name: functionName(fn)}
}

type unitOpts struct {
	fn   func(*Scope, any) error
	name string
}

func (u unitOpts) call(s *Scope, opts any, done func(error)) { done(u.fn(s, opts)) }
func (u unitOpts) funcName() string                          { return u.name }

// UnitOpts wraps a body that also receives the registration options value.
func UnitOpts(fn func(*Scope, any) error) UnitFunc {
	if fn == nil {
		panic(ErrInvalidUnit)
	}
	return unitOpts{fn: fn, name: functionName(fn)}
}

type unitCallback struct {
	fn   func(*Scope, any, func(error))
	name string
}

func (u unitCallback) call(s *Scope, opts any, done func(error)) { u.fn(s, opts, done) }
func (u unitCallback) funcName() string                          { return u.name }

// UnitCallback wraps a body that signals completion through a callback. The
// callback may be invoked from any goroutine; only the first invocation is
// delivered.
func UnitCallback(fn func(s *Scope, opts any, done func(error))) UnitFunc {
	if fn == nil {
		panic(ErrInvalidUnit)
	}
	return unitCallback{fn: fn, name: functionName(fn)}
}

type hookStyle uint8

const (
	styleFunc hookStyle = iota
	styleErr
	styleCallback
	styleCtxCallback
)

// Hook is an after/ready/close continuation normalized to a single
// completion signal. The constructor picks how the ambient error is threaded
// through the call:
//
//   - HookFunc never observes the error; it stays armed for the next consumer.
//   - HookErr, HookCallback and HookCtxCallback receive it and consume it:
//     whatever they complete with, nil included, replaces the ambient slot.
type Hook struct {
	style       hookStyle
	valid       bool
	name        string
	plain       func() error
	withErr     func(error) error
	callback    func(error, func(error))
	ctxCallback func(error, *Scope, func(error))
}

// HookFunc wraps a continuation that takes no arguments.
func HookFunc(fn func() error) Hook {
	if fn == nil {
		panic(ErrInvalidHook)
	}
	return Hook{style: styleFunc, valid: true, name: hookName(fn), plain: fn}
}

// HookErr wraps a continuation that receives the ambient error.
func HookErr(fn func(err error) error) Hook {
	if fn == nil {
		panic(ErrInvalidHook)
	}
	return Hook{style: styleErr, valid: true, name: hookName(fn), withErr: fn}
}

// HookCallback wraps a continuation that receives the ambient error and a
// completion callback.
func HookCallback(fn func(err error, done func(error))) Hook {
	if fn == nil {
		panic(ErrInvalidHook)
	}
	return Hook{style: styleCallback, valid: true, name: hookName(fn), callback: fn}
}

// HookCtxCallback wraps a continuation that receives the ambient error, the
// scope and a completion callback.
func HookCtxCallback(fn func(err error, s *Scope, done func(error))) Hook {
	if fn == nil {
		panic(ErrInvalidHook)
	}
	return Hook{style: styleCtxCallback, valid: true, name: hookName(fn), ctxCallback: fn}
}

func hookName(fn any) string {
	if name := functionName(fn); name != "" {
		return name
	}
	return "hook"
}

// functionName derives a human-readable unit name from the function's
// declared name, dropping the import path prefix.
func functionName(fn any) string {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return ""
	}
	name := rf.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

// Package invariant reports broken scheduler invariants. A Violation means
// the state can no longer be trusted, so it is raised as a panic and never
// returned as an error.
package invariant

import "fmt"

type Violation struct {
	Component string
	Msg       string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", v.Component, v.Msg)
}

// Panicf panics with a *Violation.
func Panicf(component, format string, args ...any) {
	panic(&Violation{Component: component, Msg: fmt.Sprintf(format, args...)})
}

// Recover converts a recovered *Violation into an error and re-panics
// anything else. Use it as `defer invariant.Recover(&err)`.
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if v, ok := r.(*Violation); ok {
		*err = v
		return
	}
	panic(r)
}

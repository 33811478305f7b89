package logging

import (
	"fmt"
	"runtime/debug"
)

// WrapError executes fn and converts a panic into an error carrying the
// panic value. The stack trace is logged; callers see a plain error.
func WrapError(component string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log := New(component)
			log.Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("panic recovered")
			err = fmt.Errorf("panic in %s: %v", component, rec)
		}
	}()
	return fn()
}

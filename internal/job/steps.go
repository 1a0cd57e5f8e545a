// Package job provides reusable Work builders for demos and tests. A
// cooperative loop has no place for blocking sleeps, so everything here is
// built from continuations.
package job

import (
	"schedq/internal/sched"
)

// Steps returns work that performs fn(i) for i in [0, n), one step per
// invocation, yielding a continuation between steps.
func Steps(n int, fn func(i int)) sched.Work {
	var step func(i int) sched.Work
	step = func(i int) sched.Work {
		return func(expired bool) (sched.Result, error) {
			if i >= n {
				return sched.Done(), nil
			}
			fn(i)
			if i+1 >= n {
				return sched.Done(), nil
			}
			return sched.Continue(step(i + 1)), nil
		}
	}
	return step(0)
}

// Chunked returns work that processes items in order, handing back a
// continuation whenever shouldYield trips between items. Once the task has
// expired it finishes the remainder without yielding.
func Chunked[T any](items []T, fn func(T), shouldYield func() bool) sched.Work {
	var run func(rest []T) sched.Work
	run = func(rest []T) sched.Work {
		return func(expired bool) (sched.Result, error) {
			for len(rest) > 0 {
				fn(rest[0])
				rest = rest[1:]
				if len(rest) > 0 && !expired && shouldYield != nil && shouldYield() {
					return sched.Continue(run(rest)), nil
				}
			}
			return sched.Done(), nil
		}
	}
	return run(items)
}

// Once wraps a plain func as single-shot work.
func Once(fn func()) sched.Work {
	return func(bool) (sched.Result, error) {
		fn()
		return sched.Done(), nil
	}
}

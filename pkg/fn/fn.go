// Package fn carries the small generic helpers the pipeline stages share:
// an explicit result type, ordered deduplication and a fan-out runner for
// independent detectors.
package fn

import "sync"

// Result is an explicit success-or-error value for code that hands results
// across goroutine and retry boundaries.
type Result[T any] struct {
	val T
	err error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{val: v} }

// Err wraps a failure.
func Err[T any](err error) Result[T] { return Result[T]{err: err} }

// IsOk reports whether the result carries a value.
func (r Result[T]) IsOk() bool { return r.err == nil }

// IsErr reports whether the result carries an error.
func (r Result[T]) IsErr() bool { return r.err != nil }

// Unwrap returns the value and the error, whichever is set.
func (r Result[T]) Unwrap() (T, error) { return r.val, r.err }

// Unique removes duplicates from items, keeping the first occurrence of each
// value and the order of the survivors. Inputs shorter than two elements come
// back unchanged.
func Unique[T comparable](items []T) []T {
	if len(items) < 2 {
		return items
	}
	seen := make(map[T]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, v := range items {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// FanOut runs every function in its own goroutine and returns their results
// in call order once all have finished.
func FanOut[T any](fns ...func() T) []T {
	out := make([]T, len(fns))
	var wg sync.WaitGroup
	for i, f := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = f()
		}()
	}
	wg.Wait()
	return out
}

package sys

import (
	"errors"
)

// Result is the outcome of an operation: a value (Ok) or an error (Err).
type Result[T any] struct {
	Ok  T
	Err error
}

// IsOk returns true if the Result contains a successful value (no error).
func (r Result[T]) IsOk() bool {
	return r.Err == nil
}

// IsErr returns true if the Result contains an error. With checks, it only
// returns true if the error matches one of them.
func (r Result[T]) IsErr(checks ...error) bool {
	if len(checks) == 0 {
		return r.Err != nil
	}
	for _, err := range checks {
		if errors.Is(r.Err, err) {
			return true
		}
	}
	return false
}

// Get returns the value and error as a Go return pair.
func (r Result[T]) Get() (T, error) {
	return r.Ok, r.Err
}

// Recover replaces an error matching one of checks with the outcome of fn.
// Other results are returned unchanged.
func (r Result[T]) Recover(fn func(err error) (T, error), checks ...error) Result[T] {
	if r.Err == nil || !r.IsErr(checks...) {
		return r
	}
	return From(fn(r.Err))
}

// Ok creates a new Result with a successful value.
func Ok[T any](value T) Result[T] {
	return Result[T]{Ok: value, Err: nil}
}

// Err creates a new Result with an error.
func Err[T any](err error) Result[T] {
	var zero T
	return Result[T]{Ok: zero, Err: err}
}

// From creates a Result from a value and error pair. The value is dropped
// when err is not nil.
func From[T any](value T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(value)
}

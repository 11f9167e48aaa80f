package cache

import (
	"context"
	"sync"
)

type producerKind uint8

const (
	producerAbsent producerKind = iota
	producerLiteral
	producerDeferred
)

// Producer supplies the value to cache on a miss. It is either a literal
// value (see Value) or a deferred computation (see Deferred). The zero
// Producer is absent and is rejected by every driver.
type Producer struct {
	kind  producerKind
	value any
	fn    func(ctx context.Context) (any, error)
}

// Value returns a Producer for an already computed value. Value(nil) is absent.
func Value(v any) Producer {
	if v == nil {
		return Producer{}
	}
	return Producer{kind: producerLiteral, value: v}
}

// Deferred returns a Producer that invokes fn on a miss.
// Deferred(nil) is absent.
func Deferred(fn func(ctx context.Context) (any, error)) Producer {
	if fn == nil {
		return Producer{}
	}
	return Producer{kind: producerDeferred, fn: fn}
}

// DeferredOf is Deferred for a function returning a concrete type.
func DeferredOf[T any](fn func(ctx context.Context) (T, error)) Producer {
	if fn == nil {
		return Producer{}
	}
	return Deferred(func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
}

// IsAbsent returns true if the producer carries neither a value nor a function.
func (p Producer) IsAbsent() bool {
	return p.kind == producerAbsent
}

// IsDeferred returns true if the producer wraps a computation.
func (p Producer) IsDeferred() bool {
	return p.kind == producerDeferred
}

// Resolve returns the literal value or invokes the deferred computation.
func (p Producer) Resolve(ctx context.Context) (any, error) {
	switch p.kind {
	case producerLiteral:
		return p.value, nil
	case producerDeferred:
		return p.fn(ctx)
	default:
		return nil, invalidValue(nil)
	}
}

// memoize returns a Producer whose computation runs at most once no matter
// how many times it is resolved.
func (p Producer) memoize() Producer {
	if p.kind != producerDeferred {
		return p
	}
	var (
		once sync.Once
		val  any
		err  error
	)
	fn := p.fn
	return Producer{kind: producerDeferred, fn: func(ctx context.Context) (any, error) {
		once.Do(func() {
			val, err = fn(ctx)
		})
		return val, err
	}}
}

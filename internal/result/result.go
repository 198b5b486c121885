// Package result implements the success/failure carrier used by the capture
// adapter and the listener. A failed Result may still carry a partial value,
// e.g. the return code of a primitive alongside its textual diagnostic.
package result

// NoErrorMessage is returned by ErrString when no diagnostic is stored.
const NoErrorMessage = "(no error message)"

// Integer covers the types SuccessOnZero accepts.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Result carries either a value, a value paired with a diagnostic, or only a
// diagnostic. The zero value is a failed Result with no value and no message.
type Result[T any] struct {
	value    T
	hasValue bool
	ok       bool
	errMsg   string
	hasErr   bool
}

// Success returns a successful Result carrying v.
func Success[T any](v T) Result[T] {
	return Result[T]{value: v, hasValue: true, ok: true}
}

// Fail returns a failed Result carrying only a diagnostic.
func Fail[T any](msg string) Result[T] {
	return Result[T]{errMsg: msg, hasErr: true}
}

// FailWith returns a failed Result that still carries a partial value.
func FailWith[T any](v T, msg string) Result[T] {
	return Result[T]{value: v, hasValue: true, errMsg: msg, hasErr: true}
}

// SuccessOnPred returns Success(v) if pred(v) holds, FailWith(v, msg) otherwise.
func SuccessOnPred[T any](v T, msg string, pred func(T) bool) Result[T] {
	if pred(v) {
		return Success(v)
	}
	return FailWith(v, msg)
}

// SuccessOnPredLazy is SuccessOnPred with the diagnostic computed only on failure.
func SuccessOnPredLazy[T any](v T, errFn func(T) string, pred func(T) bool) Result[T] {
	if pred(v) {
		return Success(v)
	}
	return FailWith(v, errFn(v))
}

// SuccessOnZero returns Success(v) if v == 0, FailWith(v, msg) otherwise.
func SuccessOnZero[T Integer](v T, msg string) Result[T] {
	return SuccessOnPred(v, msg, func(v T) bool { return v == 0 })
}

// SuccessOnZeroLazy is SuccessOnZero with the diagnostic computed only on failure.
func SuccessOnZeroLazy[T Integer](v T, errFn func(T) string) Result[T] {
	if v == 0 {
		return Success(v)
	}
	return FailWith(v, errFn(v))
}

// FromError bridges a (value, error) pair into a Result.
func FromError[T any](v T, err error) Result[T] {
	if err != nil {
		return FailWith(v, err.Error())
	}
	return Success(v)
}

// IsSuccess reports whether the Result represents success.
func (r Result[T]) IsSuccess() bool {
	return r.ok
}

// HasValue reports whether a value (possibly partial) is present.
func (r Result[T]) HasValue() bool {
	return r.hasValue
}

// Value returns the stored value. It panics when no value is present; check
// HasValue first on failure paths.
func (r Result[T]) Value() T {
	if !r.hasValue {
		panic("result: value missing")
	}
	return r.value
}

// ValueOr returns the stored value, or fallback when none is present.
func (r Result[T]) ValueOr(fallback T) T {
	if !r.hasValue {
		return fallback
	}
	return r.value
}

// ErrString returns the stored diagnostic, or NoErrorMessage when none is set.
func (r Result[T]) ErrString() string {
	if !r.hasErr {
		return NoErrorMessage
	}
	return r.errMsg
}

package ai

// Parsed is the outcome of decoding model output: either the decoded value or
// a degraded default together with the reason decoding failed.
type Parsed[T any] struct {
	value T
	err   error
}

func Ok[T any](v T) Parsed[T] { return Parsed[T]{value: v} }

func Degraded[T any](fallback T, err error) Parsed[T] {
	return Parsed[T]{value: fallback, err: err}
}

// Value returns the decoded value or the fallback.
func (p Parsed[T]) Value() T { return p.value }

// IsDegraded reports whether Value is a fallback.
func (p Parsed[T]) IsDegraded() bool { return p.err != nil }

// Err is the decoding failure for degraded results.
func (p Parsed[T]) Err() error { return p.err }

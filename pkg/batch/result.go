package batch

import "fmt"

// Outcome is the settled result of one invocation: a success when Err is nil,
// a failure otherwise.
type Outcome[T, R any] struct {
	Item  T
	Index int
	Value R
	Err   error
}

// OK reports whether the invocation succeeded.
func (o Outcome[T, R]) OK() bool {
	return o.Err == nil
}

// Failure records an item whose operation failed.
type Failure[T any] struct {
	Item  T
	Index int
	Err   error
}

// Result aggregates a completed run. Successes and Failures keep chunk order;
// within a chunk they follow settlement order, not input order.
type Result[T, R any] struct {
	Successes      []R
	Failures       []Failure[T]
	TotalAttempted int
}

// ItemError is returned by Run when an item fails and ContinueOnError is off.
type ItemError struct {
	Index int
	Err   error
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	return fmt.Sprintf("batch item %d: %v", e.Index, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ItemError) Unwrap() error {
	return e.Err
}

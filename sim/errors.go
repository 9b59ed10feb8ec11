package sim

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by the typed errors below through errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrOutOfRange = errors.New("value out of range")
)

// ValidationError reports an invalid construction parameter
// (non-positive radius, speed or power, negative capacity, ...).
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// OutOfRangeError reports a capacity mutation outside [Min, Max].
type OutOfRangeError struct {
	Value float64
	Min   float64
	Max   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("value %v out of range [%v, %v]", e.Value, e.Min, e.Max)
}

// Is makes errors.Is(err, ErrOutOfRange) true.
func (e *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }

// EventExecutionError wraps a failure raised while executing a single event.
// The loop logs it and moves on to the next event.
type EventExecutionError struct {
	Kind EventKind
	Time float64
	Err  error
}

func (e *EventExecutionError) Error() string {
	return fmt.Sprintf("event %s at time %v: %v", e.Kind, e.Time, e.Err)
}

func (e *EventExecutionError) Unwrap() error { return e.Err }

func positive(field string, v float64) error {
	if !(v > 0) {
		return &ValidationError{Field: field, Value: v, Reason: "must be positive"}
	}
	return nil
}

func nonNegative(field string, v float64) error {
	if !(v >= 0) {
		return &ValidationError{Field: field, Value: v, Reason: "must be positive or 0"}
	}
	return nil
}

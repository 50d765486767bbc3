package teamgate

import "fmt"

// Status classifies the result of a pipeline execution. The set is closed:
// every consumer switches exhaustively over it.
type Status uint8

const (
	// StatusSuccess is the only status on which a payload may be present.
	StatusSuccess Status = iota
	// StatusBadRequest covers generic validation failures.
	StatusBadRequest
	// StatusUnauthorized covers bad credentials and failed user resolution.
	StatusUnauthorized
	// StatusForbidden covers validator-tagged authorization failures.
	StatusForbidden
	// StatusNotFound covers missing user or team aggregates.
	StatusNotFound
	// StatusPreconditionRequired covers partial outcomes such as a pending
	// MFA challenge or an unconfirmed email.
	StatusPreconditionRequired
	// StatusFailure covers unexpected hard faults surfaced as outcomes.
	StatusFailure
)

// String returns the canonical status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusBadRequest:
		return "bad_request"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusForbidden:
		return "forbidden"
	case StatusNotFound:
		return "not_found"
	case StatusPreconditionRequired:
		return "precondition_required"
	default:
		return "failure"
	}
}

// FieldError is one keyed validation message. Outcome.Errors preserves
// insertion order and collapses exact key+message duplicates.
type FieldError struct {
	Key     string
	Message string
}

// Outcome is the uniform value-less result carried through every pipeline
// stage and handler. Info is always present on failure and optional on
// success.
type Outcome struct {
	Status Status
	Info   string
	Errors []FieldError
}

// Succeeded reports whether the outcome carries StatusSuccess. The two are
// equivalent by contract.
func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }

// Success returns a value-less successful outcome.
func Success() Outcome { return Outcome{Status: StatusSuccess} }

// SuccessWithInfo returns a successful outcome carrying informational text.
func SuccessWithInfo(info string) Outcome {
	return Outcome{Status: StatusSuccess, Info: info}
}

// BadRequest returns a failed outcome for generic validation problems.
func BadRequest(info string) Outcome {
	return Outcome{Status: StatusBadRequest, Info: info}
}

// Unauthorized returns a failed outcome for authentication problems.
func Unauthorized(info string) Outcome {
	return Outcome{Status: StatusUnauthorized, Info: info}
}

// Forbidden returns a failed outcome for authorization problems.
func Forbidden(info string) Outcome {
	return Outcome{Status: StatusForbidden, Info: info}
}

// NotFound returns a failed outcome for a missing aggregate.
func NotFound(info string) Outcome {
	return Outcome{Status: StatusNotFound, Info: info}
}

// PreconditionRequired returns the partial outcome used when the caller
// must complete a further step before the operation can succeed.
func PreconditionRequired(info string) Outcome {
	return Outcome{Status: StatusPreconditionRequired, Info: info}
}

// GenericFailure returns a failed outcome for an unexpected fault that was
// deliberately converted rather than propagated.
func GenericFailure(info string) Outcome {
	return Outcome{Status: StatusFailure, Info: info}
}

// Result is the value-carrying outcome variant. Value is meaningful on
// StatusSuccess, and on StatusPreconditionRequired when built through
// PartialAs (a pending MFA challenge reports which channel was used).
// Every other status carries the zero value.
type Result[T any] struct {
	Outcome
	Value T
}

// Succeed wraps a payload in a successful result.
func Succeed[T any](value T) Result[T] {
	return Result[T]{Outcome: Success(), Value: value}
}

// SucceedWithInfo wraps a payload in a successful result with info text.
func SucceedWithInfo[T any](value T, info string) Result[T] {
	return Result[T]{Outcome: SuccessWithInfo(info), Value: value}
}

// FailAs lifts a non-success outcome into a typed result. Lifting a
// successful outcome is a programming error: a success needs an explicit
// value, so FailAs panics rather than fabricate one.
func FailAs[T any](o Outcome) Result[T] {
	if o.Succeeded() {
		panic("teamgate: FailAs called with a successful outcome; use Succeed")
	}
	return Result[T]{Outcome: o}
}

// PartialAs lifts a PreconditionRequired outcome plus its partial payload
// into a typed result. Only that status may carry a partial value.
func PartialAs[T any](o Outcome, value T) Result[T] {
	if o.Status != StatusPreconditionRequired {
		panic(fmt.Sprintf("teamgate: PartialAs called with status %s", o.Status))
	}
	return Result[T]{Outcome: o, Value: value}
}

// ConvertResult re-types a failed result, preserving status, info and field
// errors. Converting a successful result without a transform is a
// programming error and panics; use MapResult instead.
func ConvertResult[U, T any](r Result[T]) Result[U] {
	if r.Succeeded() {
		panic("teamgate: ConvertResult called with a successful result; use MapResult")
	}
	return Result[U]{Outcome: r.Outcome}
}

// MapResult re-types a result with an explicit payload transform. Failed
// results convert without invoking the transform.
func MapResult[T, U any](r Result[T], transform func(T) U) Result[U] {
	if !r.Succeeded() {
		return Result[U]{Outcome: r.Outcome}
	}
	return Result[U]{Outcome: r.Outcome, Value: transform(r.Value)}
}

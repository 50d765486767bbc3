package teamgate

import "context"

// FailureClass tags a single validation failure with the severity used to
// classify the aggregate outcome.
type FailureClass uint8

const (
	// ClassBadRequest is the default classification.
	ClassBadRequest FailureClass = iota
	// ClassForbidden marks an authorization failure.
	ClassForbidden
	// ClassUnauthorized marks an authentication failure and dominates every
	// other class.
	ClassUnauthorized
)

// Failure is one classified validation finding.
type Failure struct {
	Key     string
	Message string
	Class   FailureClass
}

// Validator checks one request. Validators must be side-effect free; every
// registered validator runs even after another one has failed.
type Validator[TReq any] interface {
	Validate(ctx context.Context, req TReq) []Failure
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc[TReq any] func(ctx context.Context, req TReq) []Failure

// Validate implements Validator.
func (f ValidatorFunc[TReq]) Validate(ctx context.Context, req TReq) []Failure {
	return f(ctx, req)
}

const validationFailedInfo = "request validation failed"

// classifyFailures merges every collected failure into one outcome. The
// aggregate status is the highest-priority class present
// (Unauthorized > Forbidden > BadRequest); field errors keep insertion
// order and exact key+message duplicates collapse.
func classifyFailures(failures []Failure) Outcome {
	status := StatusBadRequest
	merged := make([]FieldError, 0, len(failures))
	seen := make(map[FieldError]struct{}, len(failures))

	for _, f := range failures {
		switch f.Class {
		case ClassUnauthorized:
			status = StatusUnauthorized
		case ClassForbidden:
			if status != StatusUnauthorized {
				status = StatusForbidden
			}
		}

		fe := FieldError{Key: f.Key, Message: f.Message}
		if _, dup := seen[fe]; dup {
			continue
		}
		seen[fe] = struct{}{}
		merged = append(merged, fe)
	}

	return Outcome{Status: status, Info: validationFailedInfo, Errors: merged}
}

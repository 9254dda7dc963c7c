package gateway

import (
	"errors"

	"forms2xml/internal/services"
)

// OutcomeKind tags the result of handling one request.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	ConversionFailure
	ProtocolViolation
	ResourceFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case ConversionFailure:
		return string(services.KindConversion)
	case ProtocolViolation:
		return string(services.KindProtocol)
	case ResourceFailure:
		return string(services.KindResource)
	default:
		return "unknown"
	}
}

// Outcome is what the orchestrator hands to the response mapper.
type Outcome struct {
	Kind    OutcomeKind
	Message string
	// Bytes counts document bytes written to the response or destination.
	Bytes int64
	// Location is the file URI of a result written to a caller path.
	Location string
	// ContentType is the media type of a successful result.
	ContentType string
	// Violation is set for ProtocolViolation outcomes.
	Violation *Violation
	// Committed means the response status was already sent while the result
	// streamed, so the mapper must not write again.
	Committed bool
	Err       error
}

func violationOutcome(v *Violation) Outcome {
	return Outcome{Kind: ProtocolViolation, Message: v.Reason, Violation: v, Err: v}
}

// failureOutcome classifies err into a failure outcome.
func failureOutcome(err error) Outcome {
	var v *Violation
	if errors.As(err, &v) {
		return violationOutcome(v)
	}
	switch services.Classify(err) {
	case services.KindResource:
		return Outcome{Kind: ResourceFailure, Message: err.Error(), Err: err}
	case services.KindProtocol:
		return Outcome{Kind: ProtocolViolation, Message: err.Error(), Violation: &Violation{Reason: err.Error()}, Err: err}
	default:
		return Outcome{Kind: ConversionFailure, Message: err.Error(), Err: err}
	}
}

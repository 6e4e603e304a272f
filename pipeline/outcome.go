package pipeline

import (
	"errors"
	"fmt"
)

// Errors that collaborators wrap (with %w) so that the Pipeline can classify failures.
var (
	ErrInvalidLocator    = errors.New("invalid source locator")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrChannelRejected   = errors.New("delivery channel rejected artifact")
	ErrTransportFailure  = errors.New("delivery transport failure")
	ErrOversizeExceeded  = errors.New("artifact still exceeds size budget after maximum conversions")
)

type OutcomeKind string

const (
	Delivered    OutcomeKind = "delivered"
	SavedLocally OutcomeKind = "saved-locally"
	Failed       OutcomeKind = "failed"
)

func (k OutcomeKind) String() string {
	return string(k)
}

// FailureReason distinguishes the ways a Pipeline invocation can fail. It is empty unless the OutcomeKind is Failed.
type FailureReason string

const (
	ReasonNone              FailureReason = ""
	ReasonInvalidLocator    FailureReason = "invalid-locator"
	ReasonSourceUnavailable FailureReason = "source-unavailable"
	ReasonOversizeExceeded  FailureReason = "oversize-exceeded"
	ReasonConversionFailed  FailureReason = "conversion-failed"
	ReasonDeliveryFailed    FailureReason = "delivery-failed"
	ReasonOther             FailureReason = "other"
)

func (r FailureReason) String() string {
	return string(r)
}

// Outcome is the single terminal result of one Pipeline invocation.
type Outcome struct {
	Kind   OutcomeKind
	Reason FailureReason
	// Err is the error that caused a Failed outcome, with its full wrap chain.
	Err error
	// Artifact is the delivered or locally saved artifact. For Delivered its file no longer exists.
	Artifact Artifact
	// Attempts is the number of conversions performed, never more than MaxConvertAttempts.
	Attempts int
	// CleanupErr collects artifact removal failures. It never changes Kind or Reason.
	CleanupErr error
}

func (o Outcome) IsSuccess() bool {
	return o.Kind == Delivered || o.Kind == SavedLocally
}

func (o Outcome) String() string {
	if o.Kind == Failed {
		return fmt.Sprintf("%s(%s): %v", o.Kind, o.Reason, o.Err)
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Artifact.Path)
}

func deliveredOutcome(artifact Artifact, attempts int) Outcome {
	return Outcome{Kind: Delivered, Artifact: artifact, Attempts: attempts}
}

func savedLocallyOutcome(artifact Artifact) Outcome {
	return Outcome{Kind: SavedLocally, Artifact: artifact}
}

func failedOutcome(reason FailureReason, err error, attempts int) Outcome {
	return Outcome{Kind: Failed, Reason: reason, Err: err, Attempts: attempts}
}

// classifyFetchError maps a Fetcher error onto the input error taxonomy.
func classifyFetchError(err error) FailureReason {
	switch {
	case errors.Is(err, ErrInvalidLocator):
		return ReasonInvalidLocator
	case errors.Is(err, ErrSourceUnavailable):
		return ReasonSourceUnavailable
	default:
		return ReasonOther
	}
}

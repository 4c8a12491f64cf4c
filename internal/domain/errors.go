package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for propagation, metrics and HTTP mapping.
// The set is closed: every failure in the pipeline maps to exactly one Kind.
type Kind uint8

const (
	// KindUnknown is reported for errors that carry no classification.
	KindUnknown Kind = iota

	// KindConfiguration is fatal at startup, e.g. zero reachable store instances.
	KindConfiguration

	// KindConnection is recoverable through failover or reconnect.
	KindConnection

	// KindValidation covers malformed task results and bad credential formats.
	KindValidation

	// KindResourceExhaustion covers admission rejection and semaphore timeouts.
	KindResourceExhaustion

	// KindTimeout means a task exceeded its execution budget.
	KindTimeout

	// KindExternalService wraps a vendor failure and is retryable.
	KindExternalService
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindConfiguration:      "configuration",
	KindConnection:         "connection",
	KindValidation:         "validation",
	KindResourceExhaustion: "resource_exhaustion",
	KindTimeout:            "timeout",
	KindExternalService:    "external_service",
}

// String returns the snake_case label used in logs and metric labels.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Retryable reports whether the retry policy should attempt the operation again.
func (k Kind) Retryable() bool {
	switch k {
	case KindConfiguration, KindValidation:
		return false
	default:
		return true
	}
}

// Error is a classified error. Op names the operation that failed
// (for example "redisconn.Init" or "task 8").
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	default:
		return e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a classified error. A nil err is allowed.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
// Use %w in the format to keep an underlying cause reachable via errors.Is.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the outermost classified error in err's chain.
// Unclassified deadline errors are reported as KindTimeout.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ErrInvalidTransition is returned when a status change is not permitted.
var ErrInvalidTransition = errors.New("invalid status transition")

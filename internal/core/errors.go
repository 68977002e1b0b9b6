package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation    ErrorCategory = "validation"    // Invalid input
	ErrCatExecution     ErrorCategory = "execution"     // Runtime failure in a worker
	ErrCatTimeout       ErrorCategory = "timeout"       // Operation timed out
	ErrCatRateLimit     ErrorCategory = "rate_limit"    // API rate limited
	ErrCatNetwork       ErrorCategory = "network"       // Network connectivity
	ErrCatConfiguration ErrorCategory = "configuration" // Malformed rubric or config
	ErrCatAggregation   ErrorCategory = "aggregation"   // Evidence gate refused to proceed
	ErrCatNotFound      ErrorCategory = "not_found"     // Resource not found
	ErrCatInternal      ErrorCategory = "internal"      // Unexpected internal error
)

// DomainError is the error type shared by every layer of an audit. The
// category drives handling (retry, exit code, HTTP status); Code names the
// specific failure.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]any
}

func (e *DomainError) Error() string {
	msg := "[" + string(e.Category) + "] " + e.Code + ": " + e.Message
	if e.Cause != nil {
		msg += " (" + e.Cause.Error() + ")"
	}
	return msg
}

func (e *DomainError) Unwrap() error { return e.Cause }

// Is matches another DomainError with the same category and code, so
// errors.Is(err, &DomainError{Category: ..., Code: ...}) works as a test.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && e.Category == t.Category && e.Code == t.Code
}

// WithCause sets the wrapped error and returns e.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail attaches a key/value for logs and API bodies and returns e.
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func newError(cat ErrorCategory, code, message string, retryable bool) *DomainError {
	return &DomainError{Category: cat, Code: code, Message: message, Retryable: retryable}
}

// ErrValidation reports bad input; never retried.
func ErrValidation(code, message string) *DomainError {
	return newError(ErrCatValidation, code, message, false)
}

// ErrExecution reports a runtime failure inside a worker; retried.
func ErrExecution(code, message string) *DomainError {
	return newError(ErrCatExecution, code, message, true)
}

func ErrTimeout(message string) *DomainError {
	return newError(ErrCatTimeout, "TIMEOUT", message, true)
}

func ErrRateLimit(message string) *DomainError {
	return newError(ErrCatRateLimit, "RATE_LIMITED", message, true)
}

func ErrNetwork(message string) *DomainError {
	return newError(ErrCatNetwork, "NETWORK_ERROR", message, true)
}

// ErrNotFound reports a missing run, rubric or file.
func ErrNotFound(resource, id string) *DomainError {
	return newError(ErrCatNotFound, "NOT_FOUND", resource+" not found: "+id, false)
}

// ErrProducer records the failure of a single stage worker. It never escapes
// the stage controller; the controller turns it into a recorded failure item.
func ErrProducer(worker string, cause error) *DomainError {
	retryable := true
	var domErr *DomainError
	if errors.As(cause, &domErr) {
		retryable = domErr.Retryable
	}
	return newError(ErrCatExecution, CodeProducerFailed, "worker "+worker+" failed", retryable).
		WithCause(cause).
		WithDetail("worker", worker)
}

// ErrOpinionValidation reports a structurally invalid opinion batch returned by a judge.
func ErrOpinionValidation(judge, reason string) *DomainError {
	// Retried: a model often returns a valid batch on the next call.
	msg := fmt.Sprintf("judge %s returned an invalid opinion: %s", judge, reason)
	return newError(ErrCatValidation, CodeOpinionInvalid, msg, true).WithDetail("judge", judge)
}

// ErrAggregationInsufficient reports that the evidence gate refused to proceed.
func ErrAggregationInsufficient(gaps []Gap) *DomainError {
	parts := make([]string, 0, len(gaps))
	for _, g := range gaps {
		parts = append(parts, g.String())
	}
	return newError(ErrCatAggregation, CodeEvidenceInsufficient, "evidence insufficient: "+strings.Join(parts, "; "), false).
		WithDetail("gaps", len(gaps))
}

// ErrConfiguration reports a malformed rubric or application configuration.
func ErrConfiguration(field, reason string) *DomainError {
	return newError(ErrCatConfiguration, CodeInvalidConfig, field+": "+reason, false).WithDetail("field", field)
}

// asDomain finds the outermost DomainError in err's chain.
func asDomain(err error) (*DomainError, bool) {
	var d *DomainError
	ok := errors.As(err, &d)
	return d, ok
}

// IsRetryable reports whether err is a DomainError marked retryable. Plain
// errors are not retried.
func IsRetryable(err error) bool {
	d, ok := asDomain(err)
	return ok && d.Retryable
}

// GetCategory returns err's category, or internal for non-domain errors.
func GetCategory(err error) ErrorCategory {
	if d, ok := asDomain(err); ok {
		return d.Category
	}
	return ErrCatInternal
}

func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

func IsConfigurationError(err error) bool {
	return IsCategory(err, ErrCatConfiguration)
}

// Error codes carried in DomainError.Code.
const (
	CodeProducerFailed       = "PRODUCER_FAILED"
	CodeOpinionInvalid       = "OPINION_INVALID"
	CodeEvidenceInsufficient = "EVIDENCE_INSUFFICIENT"
	CodeInvalidConfig        = "INVALID_CONFIG"
	CodeWorkerPanic          = "WORKER_PANIC"
	CodeNoWorkers            = "NO_WORKERS"
	CodeUnsupportedFormat    = "UNSUPPORTED_FORMAT"
	CodeCloneFailed          = "CLONE_FAILED"
	CodeParseFailed          = "PARSE_FAILED"
	CodeInvalidTarget        = "INVALID_TARGET"
	CodeCorruptRecord        = "CORRUPT_RECORD"
	CodeLLMFailed            = "LLM_FAILED"
	CodeLLMRejected          = "LLM_REJECTED"
)

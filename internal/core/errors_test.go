package core

import (
	"errors"
	"strings"
	"testing"
)

func TestDomainError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := (&DomainError{
		Category: ErrCatValidation,
		Code:     "CODE",
		Message:  "message",
	}).WithCause(cause)

	if err.Unwrap() != cause {
		t.Fatalf("expected cause to be unwrapped")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to match cause")
	}

	match := &DomainError{Category: ErrCatValidation, Code: "CODE"}
	if !errors.Is(err, match) {
		t.Fatalf("expected errors.Is to match category and code")
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := &DomainError{Category: ErrCatExecution, Code: "X", Message: "msg"}
	err.WithDetail("k", "v")
	if err.Details == nil || err.Details["k"] != "v" {
		t.Fatalf("expected details to be set")
	}
}

func TestErrorFactories(t *testing.T) {
	if ErrValidation("C", "m").Retryable {
		t.Fatalf("validation should not be retryable")
	}
	if !ErrExecution("C", "m").Retryable {
		t.Fatalf("execution should be retryable")
	}
	if !ErrTimeout("m").Retryable {
		t.Fatalf("timeout should be retryable")
	}
	if !ErrRateLimit("m").Retryable {
		t.Fatalf("rate limit should be retryable")
	}
	if !ErrOpinionValidation("Prosecutor", "bad json").Retryable {
		t.Fatalf("opinion validation should be retryable")
	}
	if ErrConfiguration("rubric", "m").Retryable {
		t.Fatalf("configuration should not be retryable")
	}
	if ErrAggregationInsufficient(nil).Retryable {
		t.Fatalf("aggregation should not be retryable")
	}
}

func TestErrProducer_InheritsRetryability(t *testing.T) {
	if ErrProducer("repo", ErrValidation("X", "m")).Retryable {
		t.Fatalf("producer wrapping a validation error should not be retryable")
	}
	if !ErrProducer("repo", errors.New("boom")).Retryable {
		t.Fatalf("producer wrapping a plain error should be retryable")
	}
	err := ErrProducer("repo", errors.New("boom"))
	if err.Details["worker"] != "repo" {
		t.Fatalf("expected worker detail, got %v", err.Details)
	}
}

func TestErrAggregationInsufficient_ListsGaps(t *testing.T) {
	err := ErrAggregationInsufficient([]Gap{
		{Kind: GapMissingCategory, Subject: "security", Detail: "no evidence"},
	})
	if !strings.Contains(err.Error(), "missing_category security") {
		t.Fatalf("expected gap in message, got %q", err.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrExecution("X", "m")) {
		t.Fatalf("expected retryable error")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("expected non-domain error to be non-retryable")
	}
}

func TestGetCategory(t *testing.T) {
	if GetCategory(errors.New("plain")) != ErrCatInternal {
		t.Fatalf("expected internal category for plain errors")
	}
	wrapped := errors.Join(errors.New("ctx"), ErrConfiguration("gate", "bad"))
	if !IsConfigurationError(wrapped) {
		t.Fatalf("expected configuration category through wrapping")
	}
}

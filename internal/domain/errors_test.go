package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyProviderError(t *testing.T) {
	tests := []struct {
		raw  string
		want error
	}{
		{"Rate limit exceeded for model", ErrRateLimited},
		{"HTTP 429 Too Many Requests", ErrRateLimited},
		{"veo: status 429: resource exhausted", ErrRateLimited},
		{"error code 429", ErrRateLimited},
		{"render job 4291-a8 failed", ErrProviderFailure},
		{"output of 14290 bytes is corrupt", ErrProviderFailure},
		{"monthly quota exhausted", ErrRateLimited},
		{"Request blocked by content policy", ErrContentPolicyViolation},
		{"SAFETY filter triggered", ErrContentPolicyViolation},
		{"upstream timed out", ErrTimeout},
		{"context deadline exceeded", ErrTimeout},
		{"internal server error", ErrProviderFailure},
		{"", ErrProviderFailure},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			if got := ClassifyProviderError(tc.raw); got != tc.want {
				t.Fatalf("ClassifyProviderError(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestJobErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("poller: %w", NewJobError(ErrRateLimited, " slow down "))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected errors.Is to match ErrRateLimited, got %v", err)
	}
	var jobErr *JobError
	if !errors.As(err, &jobErr) {
		t.Fatalf("expected *JobError in chain")
	}
	if jobErr.Detail != "slow down" {
		t.Fatalf("Detail = %q, want %q", jobErr.Detail, "slow down")
	}
	if jobErr.KindCode() != "rate_limited" {
		t.Fatalf("KindCode = %q, want rate_limited", jobErr.KindCode())
	}
}

func TestErrorCodePrefersSpecificKind(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrSubmissionFailed, ErrContentPolicyViolation)
	if got := ErrorCode(err); got != "content_policy_violation" {
		t.Fatalf("ErrorCode = %q, want content_policy_violation", got)
	}
	if got := ErrorCode(ErrSubmissionFailed); got != "submission_failed" {
		t.Fatalf("ErrorCode = %q, want submission_failed", got)
	}
	if got := ErrorCode(errors.New("boom")); got != "internal" {
		t.Fatalf("ErrorCode = %q, want internal", got)
	}
	if KindFromCode("timeout") != ErrTimeout {
		t.Fatalf("KindFromCode(timeout) mismatch")
	}
}

func TestIsAuthoringError(t *testing.T) {
	if !IsAuthoringError(fmt.Errorf("x: %w", ErrInvalidTimeline)) {
		t.Fatalf("invalid timeline should be an authoring error")
	}
	if IsAuthoringError(ErrRateLimited) {
		t.Fatalf("rate limit is a runtime error")
	}
}

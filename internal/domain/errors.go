package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidPrompt = errors.New("invalid prompt")

	// Authoring-contract errors. These are raised synchronously by submission
	// and are never retried.
	ErrUnknownClipType          = errors.New("unknown clip type")
	ErrMissingRequiredReference = errors.New("missing required reference")
	ErrInvalidTimeline          = errors.New("invalid timeline")
	ErrNoEligibleModel          = errors.New("no eligible model")

	// Runtime errors surfaced by providers and storage.
	ErrSubmissionFailed       = errors.New("submission failed")
	ErrRateLimited            = errors.New("rate limited")
	ErrContentPolicyViolation = errors.New("content policy violation")
	ErrTimeout                = errors.New("generation timed out")
	ErrProviderFailure        = errors.New("provider failure")
	ErrSigningFailed          = errors.New("signing failed")
)

// JobError pairs a runtime error kind with the raw provider detail.
type JobError struct {
	Kind   error
	Detail string
}

func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

func (e *JobError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}

// KindCode returns the stable snake_case code for the error kind.
func (e *JobError) KindCode() string {
	if e == nil {
		return ""
	}
	return ErrorCode(e.Kind)
}

// NewJobError builds a JobError, defaulting to ErrProviderFailure.
func NewJobError(kind error, detail string) *JobError {
	if kind == nil {
		kind = ErrProviderFailure
	}
	return &JobError{Kind: kind, Detail: strings.TrimSpace(detail)}
}

type classification struct {
	needle string
	kind   error
}

// Order matters: the first matching needle wins.
var providerErrorTable = []classification{
	{"rate limit", ErrRateLimited},
	{"ratelimit", ErrRateLimited},
	{"too many requests", ErrRateLimited},
	{"status 429", ErrRateLimited},
	{"http 429", ErrRateLimited},
	{"code 429", ErrRateLimited},
	{"quota", ErrRateLimited},
	{"content policy", ErrContentPolicyViolation},
	{"policy violation", ErrContentPolicyViolation},
	{"safety", ErrContentPolicyViolation},
	{"moderation", ErrContentPolicyViolation},
	{"nsfw", ErrContentPolicyViolation},
	{"blocked", ErrContentPolicyViolation},
	{"timed out", ErrTimeout},
	{"timeout", ErrTimeout},
	{"deadline exceeded", ErrTimeout},
}

// ClassifyProviderError maps raw provider error text onto a runtime error
// kind by case-insensitive substring match. Unknown text is a generic
// provider failure.
func ClassifyProviderError(raw string) error {
	lowered := strings.ToLower(raw)
	for _, c := range providerErrorTable {
		if strings.Contains(lowered, c.needle) {
			return c.kind
		}
	}
	return ErrProviderFailure
}

var errorCodes = []struct {
	kind error
	code string
}{
	{ErrUnknownClipType, "unknown_clip_type"},
	{ErrMissingRequiredReference, "missing_required_reference"},
	{ErrInvalidTimeline, "invalid_timeline"},
	{ErrNoEligibleModel, "no_eligible_model"},
	{ErrInvalidPrompt, "invalid_prompt"},
	{ErrRateLimited, "rate_limited"},
	{ErrContentPolicyViolation, "content_policy_violation"},
	{ErrTimeout, "timeout"},
	{ErrSigningFailed, "signing_failed"},
	{ErrNotFound, "not_found"},
	{ErrSubmissionFailed, "submission_failed"},
	{ErrProviderFailure, "provider_failure"},
}

// ErrorCode returns the stable code of the most specific known kind in err's
// chain, or "internal".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.kind) {
			return ec.code
		}
	}
	return "internal"
}

// KindFromCode is the inverse of ErrorCode for persisted error kinds.
func KindFromCode(code string) error {
	for _, ec := range errorCodes {
		if ec.code == code {
			return ec.kind
		}
	}
	return ErrProviderFailure
}

// IsAuthoringError reports whether err is a contract violation of the
// submission input rather than a transient runtime failure.
func IsAuthoringError(err error) bool {
	return errors.Is(err, ErrUnknownClipType) ||
		errors.Is(err, ErrMissingRequiredReference) ||
		errors.Is(err, ErrInvalidTimeline) ||
		errors.Is(err, ErrNoEligibleModel) ||
		errors.Is(err, ErrInvalidPrompt)
}

package limiter

import (
	"errors"

	"golang.org/x/net/context"
)

// ErrUnknownPolicy is returned when an admission check references a policy
// name absent from the loaded config.
var ErrUnknownPolicy = errors.New("unknown admission policy")

// Decision describes the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// Policy is the name of the policy that produced the decision.
	Policy string
	// Limit is the policy's permit limit.
	Limit uint32
	// Remaining is the number of permits left in the current window after
	// this decision.
	Remaining uint32
	// RetryAfterSeconds is the time until the current window closes. It is
	// the retry hint for denials and the reset horizon for admissions.
	RetryAfterSeconds int64
	// Queued reports whether the caller waited in the policy queue before
	// this decision was made.
	Queued bool
}

// RateLimiter admits or denies requests against named fixed-window policies.
type RateLimiter interface {
	// Admit atomically checks and consumes a permit under the named policy.
	// When the current window is exhausted but queue capacity remains, the
	// caller blocks until the next window opens, the queue wait bound
	// expires, or ctx is done. A caller abandoning the queue via ctx never
	// consumes a permit.
	// @param ctx supplies the calling context.
	// @param policyName supplies the policy to admit under.
	// @return the decision, or an error wrapping ErrUnknownPolicy when no
	// policy is configured under the name.
	Admit(ctx context.Context, policyName string) (Decision, error)
}

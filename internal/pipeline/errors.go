package pipeline

import "errors"

// Failure taxonomy shared by the source clients, normalizer, publisher, and
// secret store. Callers classify with errors.Is; concrete causes are wrapped
// into these sentinels with fmt.Errorf("%w: ...").
var (
	// ErrAuth means a credential was rejected by the upstream API or the
	// sink. It triggers cache invalidation, never a local retry.
	ErrAuth = errors.New("credential rejected")

	// ErrRateLimited means upstream throttling persisted through the retry
	// budget.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUpstream covers non-retryable upstream client errors and transient
	// upstream failures that exhausted their retries.
	ErrUpstream = errors.New("upstream error")

	// ErrMalformedResponse means a response could not satisfy the
	// required-field invariant of its category schema.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrSinkDelivery means a batch could not be delivered to the sink after
	// bounded retries.
	ErrSinkDelivery = errors.New("sink delivery failed")

	// ErrSecretUnavailable means the secret store is unreachable or the
	// named secret does not exist. Fatal to the affected operation only.
	ErrSecretUnavailable = errors.New("secret unavailable")
)

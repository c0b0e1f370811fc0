package classify

import "errors"

var (
	// ErrServiceUnavailable marks a transport or API failure talking to the
	// classification service. The whole batch fails as a unit.
	ErrServiceUnavailable = errors.New("classification service unavailable")

	// ErrBadResponse marks a response that came back but could not be
	// decoded as the expected JSON array.
	ErrBadResponse = errors.New("bad classification response")

	// ErrBatchTooLarge marks a batch above MaxBatchSize. Oversized batches
	// are rejected outright instead of risking a truncated response.
	ErrBatchTooLarge = errors.New("classification batch too large")
)

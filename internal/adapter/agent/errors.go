package agent

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted is returned when every attempt of a call failed with a
// retryable cause. The last cause is wrapped alongside it.
var ErrRetriesExhausted = errors.New("agent: retries exhausted")

// ErrNoSession means no login has succeeded yet or the last one expired.
var ErrNoSession = errors.New("agent: no active session")

// RejectedError is a definitive refusal by the platform, such as a
// success=false body. It is never retried.
type RejectedError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("agent rejected %s (status %d): %s", e.Endpoint, e.Status, e.Message)
}

// IsRejected reports whether err carries a platform rejection and returns its message.
func IsRejected(err error) (string, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Message, true
	}
	return "", false
}

// retryable causes; they never escape Call unwrapped.
var (
	errUnauthorized = errors.New("session rejected by platform")
	errServer       = errors.New("platform server error")
	errBadBody      = errors.New("unparsable platform response")
)

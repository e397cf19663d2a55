package session

import "errors"

// Error taxonomy of the session protocol. Every operation either
// completes or fails with one of these; handlers map them to HTTP
// statuses. All failures are recoverable by re-issuing the request.
var (
	ErrNotAuthenticated = errors.New("no caller identity available")
	ErrNotFound         = errors.New("session, snapshot or participant not found")
	ErrForbidden        = errors.New("caller lacks the required privilege")
	ErrInvalidState     = errors.New("session status forbids this action")
	ErrCapacityExceeded = errors.New("session participant limit reached")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTransport        = errors.New("session store unavailable")
)

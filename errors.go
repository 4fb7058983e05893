package linkedinmessaging

import (
	"errors"
	"fmt"
)

// Sentinel errors for the distinguishable failure modes callers are
// expected to branch on with errors.Is.
var (
	// ErrChallengeRequired is returned by Login when the service raised
	// a verification challenge instead of completing the login. It is a
	// control-flow signal, not a terminal failure: catch it and call
	// Enter2FA with the code the user received.
	ErrChallengeRequired = errors.New("verification challenge required")

	// ErrAuthenticationFailed means credentials or a challenge code were
	// rejected without a further challenge being raised.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNoChallenge is returned by Enter2FA when no challenge is
	// pending; start over from Login.
	ErrNoChallenge = errors.New("no verification challenge pending")

	// ErrCorruptSession means a serialized session blob could not be
	// parsed back into a cookie jar.
	ErrCorruptSession = errors.New("corrupt session data")

	// ErrInvalidURN means a caller-supplied URN has the wrong shape for
	// the operation, e.g. a compound URN where a single id is required.
	ErrInvalidURN = errors.New("invalid URN")
)

// ProtocolError reports an unexpected response from the remote API: a
// non-success HTTP status, or a body that could not be decoded. Body
// holds a truncated copy of the response body when one was available;
// Err holds the underlying decode error, if any.
type ProtocolError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("linkedin api status %d", e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

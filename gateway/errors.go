package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrProtocol marks a response that is neither a session nor a challenge.
	ErrProtocol = errors.New("protocol violation")
	// ErrTransport marks a request that never got a response.
	ErrTransport = errors.New("transport failure")
	// ErrRejected marks a non-2xx response.
	ErrRejected = errors.New("request rejected")
	// ErrUnverified marks a session token that failed verification.
	ErrUnverified = errors.New("session token not verified")
)

// Messages shown to the user for failures without a server-provided text.
const (
	MessageNetwork    = "network error"
	MessageProtocol   = "unexpected response from the authentication service"
	MessageUnverified = "session could not be verified"
	MessageExpired    = "login flow expired"
)

// Error is a normalised gateway failure. Its Error method returns Message so
// it can be shown to the user as is; Err keeps the cause for logs and
// errors.Is checks.
type Error struct {
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func transportError(err error) *Error {
	return &Error{Message: MessageNetwork, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
}

func protocolError(format string, args ...any) *Error {
	return &Error{Message: MessageProtocol, Err: fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))}
}

func rejectedError(status int, message string) *Error {
	if message == "" {
		message = "login failed: " + statusText(status)
	}
	return &Error{
		Message: message,
		Status:  status,
		Err:     fmt.Errorf("%w: status %d", ErrRejected, status),
	}
}

func statusText(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}

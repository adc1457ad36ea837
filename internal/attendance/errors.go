package attendance

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by authentication when the remote yields no identity.
	ErrNotFound = errors.New("identity not found")

	// ErrNoSession indicates the registration workflow was entered without a
	// persisted identity. Callers send the user back to login.
	ErrNoSession = errors.New("no active session")

	// ErrBusy rejects a second call while one is already in flight for the same workflow.
	ErrBusy = errors.New("a request is already in progress")
)

// ConnectionError wraps any transport failure or non-success HTTP status.
type ConnectionError struct {
	Op     string
	Status int
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: http status %d", e.Op, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": connection error"
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ExpectedChar is a challenge position and the character it holds.
type ExpectedChar struct {
	Position int    `json:"position"`
	Char     string `json:"char"`
}

// ValidationError reports bad user input: a challenge mismatch, missing
// credentials or an unusable filter. Expected is echoed back for display.
type ValidationError struct {
	Reason   string
	Expected []ExpectedChar
}

func (e *ValidationError) Error() string {
	if len(e.Expected) == 0 {
		return e.Reason
	}
	var b strings.Builder
	b.WriteString(e.Reason)
	for _, exp := range e.Expected {
		fmt.Fprintf(&b, "\ndigit %d must be: %s", exp.Position, exp.Char)
	}
	return b.String()
}

// Invalid builds a ValidationError without expected characters.
func Invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Message renders err as the single line of text shown to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return "Connection error. Please try again."
	}
	switch {
	case errors.Is(err, ErrNoSession):
		return "Please log in first."
	case errors.Is(err, ErrBusy):
		return "Please wait for the current request to finish."
	}
	return err.Error()
}

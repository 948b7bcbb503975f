package restic

import (
	"errors"
	"fmt"
)

// Exit classification kinds. An *ExitError wraps exactly one of these.
var (
	// ErrGeneric is reported for exit code 1.
	ErrGeneric = errors.New("restic: command failed")

	// ErrRuntime is reported for exit code 2.
	ErrRuntime = errors.New("restic: go runtime error")

	// ErrPartialRead is reported for exit code 3. Backup treats it as a
	// degraded success when a summary was produced.
	ErrPartialRead = errors.New("restic: could not read some source data")

	// ErrRepositoryNotFound is reported for exit code 10.
	ErrRepositoryNotFound = errors.New("restic: repository does not exist")

	// ErrLockFailed is reported for exit code 11.
	ErrLockFailed = errors.New("restic: failed to lock repository")

	// ErrWrongPassword is reported for exit code 12.
	ErrWrongPassword = errors.New("restic: wrong password")

	// ErrInterrupted is reported for exit code 130.
	ErrInterrupted = errors.New("restic: interrupted")

	// ErrUnexpectedExit is reported for any exit code not listed above.
	ErrUnexpectedExit = errors.New("restic: unexpected exit code")
)

var (
	// ErrKilled is returned when the process ended without an exit code,
	// typically because the invocation was cancelled.
	ErrKilled = errors.New("restic: process killed")

	// ErrUnexpectedResponse is returned when the output did not contain
	// exactly the messages a command requires.
	ErrUnexpectedResponse = errors.New("restic: unexpected response")

	// ErrMalformedMessage is returned by Decode for lines that are not valid JSON.
	ErrMalformedMessage = errors.New("restic: malformed message")

	// ErrUnknownMessage is returned by Decode for a message_type outside
	// the expected variant set.
	ErrUnknownMessage = errors.New("restic: unknown message type")
)

var exitKinds = map[int]error{
	1:   ErrGeneric,
	2:   ErrRuntime,
	3:   ErrPartialRead,
	10:  ErrRepositoryNotFound,
	11:  ErrLockFailed,
	12:  ErrWrongPassword,
	130: ErrInterrupted,
}

// ExitError reports a non-zero exit code.
type ExitError struct {
	Code int
	// Message is the text of the exit_error message restic printed, if any.
	Message string
	kind    error
}

func (e *ExitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v (exit code %d): %s", e.kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%v (exit code %d)", e.kind, e.Code)
}

// Unwrap returns the classification kind, so errors.Is(err, ErrWrongPassword) works.
func (e *ExitError) Unwrap() error { return e.kind }

// Kind returns the classification sentinel.
func (e *ExitError) Kind() error { return e.kind }

// Classify maps an exit code to its outcome: nil for 0, otherwise an *ExitError.
func Classify(code int) error {
	if code == 0 {
		return nil
	}
	kind, ok := exitKinds[code]
	if !ok {
		kind = ErrUnexpectedExit
	}
	return &ExitError{Code: code, kind: kind}
}

// ExitCode extracts the exit code from err, if it carries one.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// SpawnError reports that the process could not be started.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("restic: failed to execute %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// StreamError reports an I/O failure while reading process output.
type StreamError struct {
	Origin Origin
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("restic: reading %s: %v", e.Origin, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

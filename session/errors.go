package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPortBusy is returned by Attach while a session is attached or in transition
	ErrPortBusy = errors.New("serial already attached")

	// ErrNotAttached is returned by Write when no session is attached
	ErrNotAttached = errors.New("serial not attached")

	// ErrManagerClosed is returned by Attach after Shutdown
	ErrManagerClosed = errors.New("session manager shut down")
)

// PortOpenError reports that the OS refused or could not find the port, or
// that the requested settings are unusable
type PortOpenError struct {
	Port     string
	BaudRate int
	Reason   string
	Err      error
}

func (e *PortOpenError) Error() string {
	return fmt.Sprintf("failed to open serial port %s: %s", e.Port, e.Reason)
}

func (e *PortOpenError) Unwrap() error {
	return e.Err
}

// WriteError reports a failed write to an attached port
type WriteError struct {
	Port string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write to serial %s: %v", e.Port, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ReadFailure records the I/O error that ended a session. It is never
// returned to a caller; it shows up in Info().LastError.
type ReadFailure struct {
	Port       string
	Generation uint64
	At         time.Time
	Err        error
}

func (e *ReadFailure) Error() string {
	return fmt.Sprintf("serial read failed on %s: %v", e.Port, e.Err)
}

func (e *ReadFailure) Unwrap() error {
	return e.Err
}

package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrAlreadyRunning indicates Run was called twice.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrShutdown indicates the application has been shut down.
	ErrShutdown = errors.New("application shut down")

	// ErrNoStore indicates a reload with no rules file configured.
	ErrNoStore = errors.New("no rules file configured")
)

// InitError reports which component failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initializing %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get and Patch for an absent document id.
var ErrNotFound = errors.New("store: document not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// ConnectivityError reports that the backend stayed unreachable through
// every probe attempt.
type ConnectivityError struct {
	Attempts int
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("store: unreachable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

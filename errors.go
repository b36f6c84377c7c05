package pgbroker

import (
	"errors"
	"fmt"
)

// ErrUnknownConnection is returned when an operation references a connection
// ID that is not registered (never registered, or already disconnected).
var ErrUnknownConnection = errors.New("unknown connection ID")

// PoolCreationError wraps a failure to establish a connection pool for a
// connection string during registration. The connection string itself is
// never included in the message — it carries credentials.
type PoolCreationError struct {
	Err error
}

func (e *PoolCreationError) Error() string {
	return fmt.Sprintf("failed to create connection pool: %v", e.Err)
}

func (e *PoolCreationError) Unwrap() error { return e.Err }

// QueryExecutionError wraps a statement failure reported by the database.
// It is surfaced to the caller verbatim and never retried by the broker.
type QueryExecutionError struct {
	Err error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }

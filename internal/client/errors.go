package client

import (
	"errors"
	"fmt"
)

// ErrNoTransport is returned by New when no transport is given.
var ErrNoTransport = errors.New("client: transport is required")

// RPCError wraps a failed remote call.
type RPCError struct {
	Method string
	Err    error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("surrealdb %s: %v", e.Method, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// DecodeError reports a result that does not have the requested shape.
type DecodeError struct {
	// Type is the Go type decoding was attempted into.
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode result into %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

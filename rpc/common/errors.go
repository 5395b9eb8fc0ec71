package common

import (
	"fmt"
	"time"
)

// MalformedRequestError is returned when an inbound message is not a valid request
type MalformedRequestError struct {
	Reason string
	Err    error
}

func (e *MalformedRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed request: %s: %v", e.Reason, e.Err)
	}
	return "malformed request: " + e.Reason
}

func (e *MalformedRequestError) Unwrap() error { return e.Err }

func (e *MalformedRequestError) Kind() string { return "MalformedRequestError" }

// UnknownRequestTypeError is returned for a well formed request with an unhandled type
type UnknownRequestTypeError struct {
	Type RequestType
}

func (e *UnknownRequestTypeError) Error() string {
	return fmt.Sprintf("unknown request type %q", string(e.Type))
}

func (e *UnknownRequestTypeError) Kind() string { return "UnknownRequestTypeError" }

// RequestTimeoutError is returned when a request did not complete in time
type RequestTimeoutError struct {
	Board string
	After time.Duration
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("request for board %s timed out after %s", e.Board, e.After)
}

func (e *RequestTimeoutError) Kind() string { return "RequestTimeoutError" }

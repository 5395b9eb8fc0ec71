package client

import (
	"errors"
	"fmt"
)

// ErrClosed is returned for requests that were pending when the connection ended
var ErrClosed = errors.New("connection to bridge closed")

// ResponseError is returned for every response with a non-200 status
type ResponseError struct {
	Status  int
	Name    string
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Status, e.Message)
}

// Kind returns the error name sent by the bridge
func (e *ResponseError) Kind() string { return e.Name }

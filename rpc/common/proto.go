package common

import (
	"encoding/json"
	"errors"
)

// --------------------------------------------------------------------------
// Request
// --------------------------------------------------------------------------

// RequestType is the "type" tag of a request
type RequestType string

const (
	// ReqTConnect connects a board: {"type":"connect","board":"uno"}
	ReqTConnect RequestType = "connect"
	// ReqTRPC calls a component method on a board
	ReqTRPC RequestType = "rpc"
)

// Known reports whether t is handled by the server
func (t RequestType) Known() bool {
	return t == ReqTConnect || t == ReqTRPC
}

// Request is a decoded client request. Fields that are not part of the
// protocol (the correlation payload) are kept in Raw only.
type Request struct {
	Type          RequestType `json:"type"`
	Board         string      `json:"board"`
	Component     string      `json:"component,omitempty"`
	ComponentArgs []any       `json:"componentArgs,omitempty"`
	Function      string      `json:"function,omitempty"`
	FunctionArgs  []any       `json:"functionArgs,omitempty"`

	// Raw is the request exactly as received; it is echoed back in the response
	Raw json.RawMessage `json:"-"`
}

// NewConnectRequest creates a new connect request
func NewConnectRequest(board string) *Request {
	return &Request{
		Type:  ReqTConnect,
		Board: board,
	}
}

// NewRPCRequest creates a new rpc request
func NewRPCRequest(board, component string, componentArgs []any, function string, functionArgs []any) *Request {
	return &Request{
		Type:          ReqTRPC,
		Board:         board,
		Component:     component,
		ComponentArgs: componentArgs,
		Function:      function,
		FunctionArgs:  functionArgs,
	}
}

// --------------------------------------------------------------------------
// Response
// --------------------------------------------------------------------------

const (
	StatusOK    = 200
	StatusError = 500
)

// ErrorInfo is the wire form of an error
type ErrorInfo struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return e.Name + ": " + e.Message
}

// kinded is implemented by every typed error of the bridge
type kinded interface {
	Kind() string
}

// NewErrorInfo converts err to its wire form. The name is the Kind of the
// outermost typed error in the chain, "Error" if there is none.
func NewErrorInfo(err error) *ErrorInfo {
	name := "Error"
	var k kinded
	if errors.As(err, &k) {
		name = k.Kind()
	}
	return &ErrorInfo{Name: name, Message: err.Error()}
}

// Response is sent for every handled request
type Response struct {
	// Req is the original request (null if it was not valid json)
	Req    json.RawMessage `json:"req"`
	Status int             `json:"status"`
	Resp   any             `json:"resp,omitempty"`
	Error  *ErrorInfo      `json:"error,omitempty"`
}

// Ok reports whether the response signals success
func (r *Response) Ok() bool {
	return r.Status == StatusOK
}

// NewSuccessResponse creates a 200 response carrying result (may be nil)
func NewSuccessResponse(req json.RawMessage, result any) *Response {
	return &Response{
		Req:    req,
		Status: StatusOK,
		Resp:   result,
	}
}

// NewErrorResponse creates a 500 response describing err
func NewErrorResponse(req json.RawMessage, err error) *Response {
	return &Response{
		Req:    req,
		Status: StatusError,
		Error:  NewErrorInfo(err),
	}
}

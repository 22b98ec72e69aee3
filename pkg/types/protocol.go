// Package types defines the wire protocol shared between the judge engine
// and its clients (participants, organizers, spectators, and the
// administrator).
package types

import "github.com/segmentio/encoding/json"

// Request is an NDJSON-framed request: one JSON object per line.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response is the reply to a Request, correlated by ID.
type Response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// Notification is a one-way, unsolicited push (submission_pending,
// full_status_update, personal_result, started, finished, reveal_step,
// announcement). It carries no ID and expects no Response.
type Notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// RPCError is a structured error returned in place of a Response.Result.
type RPCError struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// ErrorData carries the machine-readable detail behind an RPCError.
type ErrorData struct {
	ErrorType string `json:"error_type"`
	Retryable bool   `json:"retryable"`
	Detail    string `json:"detail"`
}

// NewRPCError constructs an RPCError with the given fields.
func NewRPCError(code int, message, errorType string, retryable bool, detail string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data: &ErrorData{
			ErrorType: errorType,
			Retryable: retryable,
			Detail:    detail,
		},
	}
}

// NewErrorResponse constructs an NDJSON error Response.
func NewErrorResponse(id int64, err *RPCError) *Response {
	return &Response{ID: id, Error: err}
}

// NewSuccessResponse constructs an NDJSON success Response from a result value.
func NewSuccessResponse(id int64, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{ID: id, Result: raw}, nil
}

// NewNotification constructs a Notification envelope for method with params.
func NewNotification(method string, params any) (*Notification, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Notification{Method: method, Params: raw}, nil
}

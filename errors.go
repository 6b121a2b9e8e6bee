package toxiproxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrConnClosed is returned for every operation issued after the shared
// control connection has been closed. The connection is never revived;
// callers are expected to build a new client.
var ErrConnClosed = errors.New("toxiproxy: control connection is closed")

// ApiError is an error payload returned by the Toxiproxy server.
type ApiError struct {
	Message string `json:"error"`
	Status  int    `json:"status"`
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// RequestError wraps a transport or protocol failure with the name of the
// operation that issued the request.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func requestError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RequestError{Op: op, Err: err}
}

// PreconditionError reports a failed fault-setup step, such as attaching a
// toxic or taking a proxy down. The scenario cannot meaningfully run without
// the fault in place, so callers should treat it as fatal and abort.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Op + ": " + e.Err.Error()
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// checkStatus validates the response status for an operation, decoding the
// server's error payload when the status is unexpected.
func checkStatus(resp *Response, expected int, op string) error {
	if resp.StatusCode == expected {
		return nil
	}

	apiErr := &ApiError{}
	if err := json.Unmarshal(resp.Body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
		apiErr.Status = resp.StatusCode
	}
	return &RequestError{Op: op, Err: apiErr}
}

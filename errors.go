package hrpc

import "fmt"

// Reserved JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Bounds of the range reserved for server-defined errors.
const (
	ServerErrorMin = -32099
	ServerErrorMax = -32000
)

// ProtocolError represents an error that can be sent to the client.
// Handlers may return one to control the code, message and data of the
// resulting error object; any other error becomes an internal error.
type ProtocolError struct {
	Code    int
	Message string
	Data    any
	Cause   error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// ErrorObject returns the wire representation of the error.
func (e *ProtocolError) ErrorObject() *ErrorObject {
	return &ErrorObject{Code: e.Code, Message: e.Message, Data: e.Data}
}

// NewError creates a new protocol error.
func NewError(code int, message string) *ProtocolError {
	return &ProtocolError{Code: code, Message: message}
}

// WrapError creates a new protocol error wrapping an existing error.
func WrapError(code int, message string, cause error) *ProtocolError {
	return &ProtocolError{Code: code, Message: message, Cause: cause}
}

// ServerError creates a protocol error in the server-defined range
// (-32099..-32000). Codes outside the range are folded into an internal
// error so handlers cannot emit reserved protocol codes by accident.
func ServerError(code int, message string) *ProtocolError {
	if code < ServerErrorMin || code > ServerErrorMax {
		return NewError(CodeInternalError, message)
	}
	return NewError(code, message)
}

// ErrParse returns a parse error.
func ErrParse(reason string) *ProtocolError {
	return NewError(CodeParseError, "parse error: "+reason)
}

// ErrInvalidRequest returns an invalid request error.
func ErrInvalidRequest(reason string) *ProtocolError {
	return NewError(CodeInvalidRequest, "invalid request: "+reason)
}

// ErrMethodNotFound returns a method not found error.
func ErrMethodNotFound(method string) *ProtocolError {
	return NewError(CodeMethodNotFound, fmt.Sprintf("method not found: %s", method))
}

// ErrInvalidParams returns an invalid params error.
func ErrInvalidParams(reason string) *ProtocolError {
	return NewError(CodeInvalidParams, fmt.Sprintf("invalid params: %s", reason))
}

// ErrInternal returns an internal error. The cause is kept for logging but
// never serialized to the client.
func ErrInternal(cause error) *ProtocolError {
	return WrapError(CodeInternalError, "internal error", cause)
}

// asProtocolError classifies a handler error: ProtocolError values keep
// their code, message and data; everything else is an internal error.
func asProtocolError(err error) *ProtocolError {
	if perr, ok := err.(*ProtocolError); ok {
		return perr
	}
	return ErrInternal(err)
}

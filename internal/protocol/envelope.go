// Package protocol implements the request/response envelope the coding agent
// uses to call the dispatcher's tools, plus the closed set of error codes.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Strob0t/taskrelay/internal/domain"
)

// Code is a protocol error code.
type Code int

const (
	CodeParseError         Code = -32700
	CodeInvalidRequest     Code = -32600
	CodeMethodNotFound     Code = -32601
	CodeInvalidParams      Code = -32602
	CodeInternalError      Code = -32603
	CodeServiceUnavailable Code = -32000
	CodeTaskNotFound       Code = -32001
	CodeTaskTerminal       Code = -32002
	CodeStateConflict      Code = -32003
	CodeCapacityExceeded   Code = -32004
)

var codeNames = map[Code]string{
	CodeParseError:         "parse-error",
	CodeInvalidRequest:     "invalid-request",
	CodeMethodNotFound:     "method-not-found",
	CodeInvalidParams:      "invalid-params",
	CodeInternalError:      "internal-error",
	CodeServiceUnavailable: "service-unavailable",
	CodeTaskNotFound:       "task-not-found",
	CodeTaskTerminal:       "task-already-terminal",
	CodeStateConflict:      "state-conflict",
	CodeCapacityExceeded:   "capacity-exceeded",
}

// String returns the symbolic name of c.
func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Request is an inbound call.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	ID     json.RawMessage `json:"id"`
}

// Response is the envelope returned for every request. Exactly one of Result
// and Error is set.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
	ID     json.RawMessage `json:"id"`
}

// Error is a protocol error. Handlers may return it directly to control the
// code and data sent to the caller.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, int(e.Code), e.Message)
}

// NewError creates a protocol error.
func NewError(code Code, message string, data any) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

// FieldError describes one rejected parameter.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InvalidParams builds an invalid-params error listing each field failure.
func InvalidParams(fields ...FieldError) *Error {
	msg := "invalid params"
	if len(fields) == 1 {
		msg = fmt.Sprintf("invalid params: %s %s", fields[0].Field, fields[0].Message)
	}
	return &Error{Code: CodeInvalidParams, Message: msg, Data: map[string]any{"fields": fields}}
}

// FromError maps err onto a protocol error. Protocol errors pass through,
// domain sentinels get their dedicated codes and anything else becomes an
// internal error carrying the original message as data.
func FromError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return &Error{Code: CodeTaskNotFound, Message: err.Error()}
	case errors.Is(err, domain.ErrTerminal):
		return &Error{Code: CodeTaskTerminal, Message: err.Error()}
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDependency):
		return &Error{Code: CodeStateConflict, Message: err.Error()}
	case errors.Is(err, domain.ErrCapacity):
		return &Error{Code: CodeCapacityExceeded, Message: err.Error()}
	}
	return &Error{
		Code:    CodeInternalError,
		Message: "internal error",
		Data:    map[string]string{"error": err.Error()},
	}
}

// DecodeParams unmarshals params into v. Missing params decode as an empty
// object; malformed params yield an invalid-params error.
func DecodeParams(params json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return InvalidParams(FieldError{Field: "params", Message: err.Error()})
	}
	return nil
}

// validID reports whether id is a JSON string or number.
func validID(id json.RawMessage) bool {
	id = bytes.TrimSpace(id)
	if len(id) == 0 {
		return false
	}
	switch c := id[0]; {
	case c == '"':
		var s string
		return json.Unmarshal(id, &s) == nil
	case c == '-' || (c >= '0' && c <= '9'):
		var n json.Number
		return json.Unmarshal(id, &n) == nil
	}
	return false
}

// validParams reports whether params is absent, null or a JSON object.
func validParams(params json.RawMessage) bool {
	params = bytes.TrimSpace(params)
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		return true
	}
	return params[0] == '{'
}

package bridge

import (
	"fmt"

	"github.com/desertthunder/dlx/internal/shared"
)

// Code classifies a [CallError].
type Code string

const (
	CodeInvalidArgument      Code = "invalid_argument"
	CodeUnsupportedOperation Code = "unsupported_operation"
	CodeEngine               Code = "engine_error"
)

// CallError is the structured failure returned to callers.
type CallError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Method  string `json:"method,omitempty"`
	Details any    `json:"details,omitempty"`
}

func (e *CallError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Method, e.Code, e.Message)
}

// Is matches the shared sentinel for the error's code.
func (e *CallError) Is(target error) bool {
	switch e.Code {
	case CodeInvalidArgument:
		return target == shared.ErrInvalidArgument
	case CodeUnsupportedOperation:
		return target == shared.ErrUnsupportedOperation
	case CodeEngine:
		return target == shared.ErrEngine
	default:
		return false
	}
}

func invalidArgument(method, arg, format string, a ...any) *CallError {
	return &CallError{
		Code:    CodeInvalidArgument,
		Message: fmt.Sprintf(format, a...),
		Method:  method,
		Details: map[string]string{"argument": arg},
	}
}

func unsupportedOperation(method string) *CallError {
	return &CallError{
		Code:    CodeUnsupportedOperation,
		Message: fmt.Sprintf("no operation named %q", method),
		Method:  method,
	}
}

// engineError keeps only the message so engine internals are not reachable through errors.Unwrap.
func engineError(method string, err error) *CallError {
	return &CallError{Code: CodeEngine, Message: err.Error(), Method: method}
}

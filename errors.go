/*
Package dynamo – error types.

Every failure surfaced by the mapper is an *Error carrying one of the
ErrorCode categories below. Storage failures keep the SDK error as Cause so
callers can still errors.As into the concrete DynamoDB exception types.
*/
package dynamo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// ErrorCode is a well-known error category string.
type ErrorCode string

const (
	CodeConfiguration ErrorCode = "ConfigurationError"
	CodeValidation    ErrorCode = "ValidationError"
	CodeProvisioning  ErrorCode = "ProvisioningError"
	CodeStorage       ErrorCode = "StorageError"
	CodeTimeout       ErrorCode = "TimeoutError"
)

// ErrProvisioningTimeout is the cause of every CodeTimeout error.
var ErrProvisioningTimeout = errors.New("dynamo: table did not become active before the timeout")

// Issue describes a single rule violation found while validating attributes.
type Issue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// Error is the general error type. It carries a Code, an optional free-form
// Context map for debugging and the list of validation Issues, if any.
type Error struct {
	Message string
	Code    ErrorCode
	Context map[string]any
	Issues  []Issue
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if len(e.Issues) > 0 {
		parts := make([]string, len(e.Issues))
		for i, is := range e.Issues {
			parts[i] = is.String()
		}
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(parts, "; "))
	}
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs an Error.
func NewError(msg string, opts ...func(*Error)) *Error {
	err := &Error{Message: msg}
	for _, o := range opts {
		o(err)
	}
	return err
}

// WithCode sets the error code.
func WithCode(c ErrorCode) func(*Error) {
	return func(e *Error) { e.Code = c }
}

// WithContext attaches a context map.
func WithContext(ctx map[string]any) func(*Error) {
	return func(e *Error) { e.Context = ctx }
}

// WithCause wraps an underlying error.
func WithCause(cause error) func(*Error) {
	return func(e *Error) { e.Cause = cause }
}

// WithIssues attaches validation issues.
func WithIssues(issues []Issue) func(*Error) {
	return func(e *Error) { e.Issues = issues }
}

// IsCode reports whether any *Error in err's chain has the given code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

func configError(msg string, opts ...func(*Error)) *Error {
	return NewError(msg, append([]func(*Error){WithCode(CodeConfiguration)}, opts...)...)
}

func validationError(msg string, issues []Issue) *Error {
	return NewError(msg, WithCode(CodeValidation), WithIssues(issues))
}

// storageError wraps an SDK failure. The smithy error code, when present, is
// copied into the context so logs show "ConditionalCheckFailedException" etc.
func storageError(op, table string, cause error) *Error {
	ctx := map[string]any{"op": op, "table": table}
	var apiErr smithy.APIError
	if errors.As(cause, &apiErr) {
		ctx["awsCode"] = apiErr.ErrorCode()
	}
	return NewError(fmt.Sprintf(`%s failed for "%s"`, op, table),
		WithCode(CodeStorage), WithContext(ctx), WithCause(cause))
}

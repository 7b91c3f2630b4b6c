// Package errors provides coded errors for geoflow runs.
// Codes separate fatal directory-level failures from the per-file and
// per-row problems that are counted and skipped.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Input errors (1xx)
	CodeAccessDenied   Code = "E101"
	CodeFileUnreadable Code = "E102"
	CodeUnsupported    Code = "E103"

	// Parse errors (2xx)
	CodeParseFailed Code = "E201"
	CodeRowShape    Code = "E202"

	// Capability errors (3xx)
	CodeCapabilityUnavailable Code = "E301"

	// Output errors (4xx)
	CodeWriteFailed  Code = "E401"
	CodeUploadFailed Code = "E402"

	// System errors (5xx)
	CodeCanceled Code = "E501"

	CodeUnknown Code = "E999"
)

// Reason returns the short label used in run summaries.
func (c Code) Reason() string {
	switch c {
	case CodeAccessDenied:
		return "access_denied"
	case CodeFileUnreadable:
		return "unreadable"
	case CodeUnsupported:
		return "unsupported"
	case CodeParseFailed:
		return "parse_error"
	case CodeRowShape:
		return "row_shape"
	case CodeCapabilityUnavailable:
		return "capability_unavailable"
	case CodeWriteFailed:
		return "write_failed"
	case CodeUploadFailed:
		return "upload_failed"
	case CodeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is the base error type for geoflow.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps an existing error with a code. Returns nil for a nil err.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// --- Convenience constructors ---

// AccessError reports a root directory that is missing or unreadable.
func AccessError(path string, cause error) *Error {
	e := New(CodeAccessDenied, "cannot access data directory").WithContext("path", path)
	e.Cause = cause
	return e
}

// FileUnreadable reports a file or directory skipped during the walk.
func FileUnreadable(path string, cause error) *Error {
	e := New(CodeFileUnreadable, "cannot read entry").WithContext("path", path)
	e.Cause = cause
	return e
}

// Unsupported reports a file no format claimed.
func Unsupported(path, why string) *Error {
	return New(CodeUnsupported, why).WithContext("path", path)
}

// ParseError reports malformed content for a dispatched format.
func ParseError(path, format string, cause error) *Error {
	e := New(CodeParseFailed, "parse error").
		WithContext("path", path).
		WithContext("format", format)
	e.Cause = cause
	return e
}

// RowShapeError reports a single malformed row.
func RowShapeError(path string, row, want, got int) *Error {
	return New(CodeRowShape, "wrong column count").
		WithContext("path", path).
		WithContext("row", row).
		WithContext("want", want).
		WithContext("got", got)
}

// CapabilityUnavailable reports a disabled optional capability.
func CapabilityUnavailable(name string) *Error {
	return New(CodeCapabilityUnavailable, "capability unavailable").WithContext("capability", name)
}

// WriteFailed reports an output artifact that could not be written.
func WriteFailed(path string, cause error) *Error {
	e := New(CodeWriteFailed, "write failed").WithContext("path", path)
	e.Cause = cause
	return e
}

// UploadFailed reports an artifact that could not be uploaded.
func UploadFailed(key string, cause error) *Error {
	e := New(CodeUploadFailed, "upload failed").WithContext("key", key)
	e.Cause = cause
	return e
}

// Canceled creates a cancellation error.
func Canceled(operation string) *Error {
	return New(CodeCanceled, "operation canceled").WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var gfErr *Error
	if errors.As(err, &gfErr) {
		return gfErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var gfErr *Error
	if errors.As(err, &gfErr) {
		return gfErr.Code
	}
	return CodeUnknown
}

// IsFatal returns true if the error must abort the run.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeAccessDenied, CodeWriteFailed, CodeCanceled:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}

package faults

import (
	"errors"
	"fmt"
)

// Code classifies an error for retry decisions and caller dispatch.
type Code string

// Workspace codes.
const (
	CodeNotFound                Code = "NOT_FOUND"
	CodeAlreadyExists           Code = "ALREADY_EXISTS"
	CodeWriteFailed             Code = "WRITE_FAILED"
	CodeReadFailed              Code = "READ_FAILED"
	CodeInvalidPath             Code = "INVALID_PATH"
	CodeLockTimeout             Code = "LOCK_TIMEOUT"
	CodeParseError              Code = "PARSE_ERROR"
	CodeValidationError         Code = "VALIDATION_ERROR"
	CodeWorkspaceNotInitialized Code = "WORKSPACE_NOT_INITIALIZED"
)

// Execution codes.
const (
	CodeSkillNotFound        Code = "SKILL_NOT_FOUND"
	CodeInputNotFound        Code = "INPUT_NOT_FOUND"
	CodeAPIError             Code = "API_ERROR"
	CodeAPIRateLimited       Code = "API_RATE_LIMITED"
	CodeAPIOverloaded        Code = "API_OVERLOADED"
	CodeAPITimeout           Code = "API_TIMEOUT"
	CodeResponseEmpty        Code = "RESPONSE_EMPTY"
	CodeResponseTruncated    Code = "RESPONSE_TRUNCATED"
	CodeWorkspaceWriteFailed Code = "WORKSPACE_WRITE_FAILED"
	CodeTaskNotExecutable    Code = "TASK_NOT_EXECUTABLE"
	CodeAborted              Code = "ABORTED"
	CodeUnknown              Code = "UNKNOWN"
)

// Pipeline codes.
const (
	CodeStepFailed         Code = "STEP_FAILED"
	CodeNoSteps            Code = "NO_STEPS"
	CodeInvalidStepIndex   Code = "INVALID_STEP_INDEX"
	CodeTaskCreationFailed Code = "TASK_CREATION_FAILED"
	CodeWorkspaceError     Code = "WORKSPACE_ERROR"
	CodeAlreadyRunning     Code = "ALREADY_RUNNING"
	CodePausedForReview    Code = "PAUSED_FOR_REVIEW"
)

// Error is a coded error. Every subsystem boundary returns one of these so
// callers can switch on Code instead of matching message text.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with a message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from err, or CodeUnknown when err carries none.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeUnknown
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// retryableCodes is the fixed set of codes the executor retries with
// exponential backoff. Everything else fails fast.
var retryableCodes = map[Code]bool{
	CodeAPIError:       true,
	CodeAPIRateLimited: true,
	CodeAPIOverloaded:  true,
	CodeAPITimeout:     true,
}

// Retryable reports whether err is in the retryable API error set.
func Retryable(err error) bool {
	return retryableCodes[CodeOf(err)]
}

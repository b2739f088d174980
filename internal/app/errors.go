package app

import (
	"context"
	"errors"
	"fmt"

	"adorable/internal/agent"
	"adorable/internal/client"
	"adorable/internal/robustness"
	"adorable/internal/sandbox"
	"adorable/internal/store"
)

// ErrNoFiles is returned when a generation run emitted no files.
var ErrNoFiles = errors.New("AI did not generate any files")

// NoFilesError carries the assistant's reply from a generation run that
// emitted no files.
type NoFilesError struct {
	Reply string
}

func (e *NoFilesError) Error() string {
	if e.Reply == "" {
		return ErrNoFiles.Error()
	}
	return e.Reply
}

func (e *NoFilesError) Is(target error) bool {
	return target == ErrNoFiles
}

// ErrorCode classifies pipeline failures for clients.
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeProvider
	ErrCodeAuth
	ErrCodeAgent
	ErrCodeSandbox
	ErrCodeNotFound
	ErrCodeTimeout
	ErrCodeCancelled
	ErrCodeValidation
)

// AppError is a typed error with code for better error handling.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error with code.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Classify maps err onto an ErrorCode.
func Classify(err error) ErrorCode {
	var (
		appErr      *AppError
		provider    *client.ProviderError
		unavailable *sandbox.UnavailableError
	)
	switch {
	case err == nil:
		return ErrCodeUnknown
	case errors.As(err, &appErr):
		return appErr.Code
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		return ErrCodeCancelled
	case errors.As(err, &provider):
		if provider.IsAuth() {
			return ErrCodeAuth
		}
		return ErrCodeProvider
	case errors.Is(err, agent.ErrAgentExhausted), errors.Is(err, ErrNoFiles):
		return ErrCodeAgent
	case errors.As(err, &unavailable), errors.Is(err, robustness.ErrCircuitOpen):
		return ErrCodeSandbox
	case errors.Is(err, store.ErrNotFound):
		return ErrCodeNotFound
	}
	return ErrCodeUnknown
}

// UserMessage renders err for the error event of a stream. Internal
// detail stays in the logs.
func UserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code == ErrCodeValidation {
		return appErr.Message
	}

	switch Classify(err) {
	case ErrCodeAuth:
		return "The model provider rejected the configured API key."
	case ErrCodeProvider:
		return "The model provider is unavailable right now. Please try again."
	case ErrCodeAgent:
		var noFiles *NoFilesError
		if errors.As(err, &noFiles) {
			return noFiles.Error()
		}
		if errors.Is(err, ErrNoFiles) {
			return ErrNoFiles.Error()
		}
		return "The assistant could not finish this request. Try a more specific prompt."
	case ErrCodeSandbox:
		return "The preview sandbox is unavailable. Please try again shortly."
	case ErrCodeNotFound:
		return "Project not found."
	case ErrCodeTimeout:
		return "The request took too long and was stopped."
	case ErrCodeCancelled:
		return "The request was cancelled."
	}
	return "Something went wrong while processing your request."
}

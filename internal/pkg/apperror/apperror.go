// Package apperror carries the pipeline's error taxonomy from the service
// layer to the HTTP layer and onto the stream's error record.
package apperror

import (
	"errors"
	"fmt"

	"coi-notes-be/pkg/llm"

	"github.com/gofiber/fiber/v2"
)

type Code string

const (
	CodeInvalidInput            Code = "INVALID_INPUT"
	CodeUnauthorized            Code = "UNAUTHORIZED"
	CodeNotFound                Code = "NOT_FOUND"
	CodeUpstreamTransient       Code = "UPSTREAM_TRANSIENT"
	CodeUpstreamRejected        Code = "UPSTREAM_REJECTED"
	CodeUpstreamExhausted       Code = "UPSTREAM_EXHAUSTED"
	CodeUpstreamMalformedOutput Code = "UPSTREAM_MALFORMED_OUTPUT"
	CodeDownstreamDegraded      Code = "DOWNSTREAM_DEGRADED"
	CodeInternal                Code = "INTERNAL"
)

type AppError struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
	Err       error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

func NotFound(message string) *AppError {
	return New(CodeNotFound, message)
}

func MalformedOutput(err error) *AppError {
	return &AppError{
		Code:    CodeUpstreamMalformedOutput,
		Message: "The model returned a response that could not be read",
		Details: err.Error(),
		Err:     err,
	}
}

// FromUpstream maps invoker failures onto the taxonomy.
func FromUpstream(err error) *AppError {
	var upErr *llm.Error
	if !errors.As(err, &upErr) {
		return Wrap(CodeInternal, "Generation failed", err)
	}

	appErr := &AppError{Details: upErr.Message, Err: err}
	switch upErr.Kind {
	case llm.KindRejected:
		appErr.Code = CodeUpstreamRejected
		appErr.Message = "The model rejected the request"
	case llm.KindExhausted:
		appErr.Code = CodeUpstreamExhausted
		appErr.Message = "The model is unavailable, please try again"
		appErr.Retryable = true
	default:
		appErr.Code = CodeUpstreamTransient
		appErr.Message = "The model connection was interrupted"
		appErr.Retryable = true
	}
	return appErr
}

// As returns err as an *AppError, wrapping unknown errors as INTERNAL.
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var upErr *llm.Error
	if errors.As(err, &upErr) {
		return FromUpstream(err)
	}
	return Wrap(CodeInternal, "Internal server error", err)
}

func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return fiber.StatusBadRequest
	case CodeUnauthorized:
		return fiber.StatusUnauthorized
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeUpstreamRejected, CodeUpstreamMalformedOutput:
		return fiber.StatusBadGateway
	case CodeUpstreamTransient, CodeUpstreamExhausted:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

package common

import (
	"context"
	"errors"
	"net/http"
)

// Kind separates caller mistakes from upstream trouble from bugs.
type Kind string

const (
	KindValidation Kind = "validation"
	KindGateway    Kind = "gateway"
	KindInternal   Kind = "internal"
)

// AppError is an error that knows how it should be rendered over HTTP.
type AppError struct {
	Kind       Kind
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err == nil:
		return e.Message
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable is true only for gateway failures.
func (e *AppError) Retryable() bool {
	return e != nil && e.Kind == KindGateway
}

// status falls back to 400 for classified errors without an explicit code.
func (e *AppError) status() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return http.StatusBadRequest
}

// Validation is a 400 for bad client input.
func Validation(message string) *AppError {
	return &AppError{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: message, HTTPStatus: http.StatusBadRequest}
}

// Gateway is a 502, or 504 when err is a deadline.
func Gateway(message string, err error) *AppError {
	e := &AppError{Kind: KindGateway, Code: "GATEWAY_ERROR", Message: message, HTTPStatus: http.StatusBadGateway, Err: err}
	if errors.Is(err, context.DeadlineExceeded) {
		e.HTTPStatus = http.StatusGatewayTimeout
	}
	return e
}

// Internal is a 500 whose detail is never rendered.
func Internal(message string, err error) *AppError {
	return &AppError{Kind: KindInternal, Code: "INTERNAL", Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// KindOf treats anything unclassified as internal.
func KindOf(err error) Kind {
	if appErr, ok := asAppError(err); ok && appErr.Kind != "" {
		return appErr.Kind
	}
	return KindInternal
}

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

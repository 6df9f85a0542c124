// Package ows defines the coded exceptions returned by the SOS read path.
// Every failure that reaches a client is an *Exception carrying an OWS
// exception code, an HTTP status and, where one exists, the low-level cause.
package ows

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code is an OWS exception code.
type Code string

const (
	InvalidParameterValue    Code = "InvalidParameterValue"
	MissingParameterValue    Code = "MissingParameterValue"
	OptionNotSupported       Code = "OptionNotSupported"
	OperationNotSupported    Code = "OperationNotSupported"
	NoApplicableCode         Code = "NoApplicableCode"
	ResponseExceedsSizeLimit Code = "ResponseExceedsSizeLimit"
)

// Kinds of failure. Use errors.Is against these to classify an *Exception.
var (
	ErrUnsupportedOperator       = errors.New("unsupported temporal operator")
	ErrUnsupportedValueReference = errors.New("unsupported value reference")
	ErrUnsupportedTime           = errors.New("unsupported time")
	ErrResponseExceedsSizeLimit  = errors.New("response exceeds size limit")
	ErrStorage                   = errors.New("error while querying observation data")
	ErrNotYetSupported           = errors.New("not yet supported")
	ErrInvalidParameter          = errors.New("invalid parameter value")
	ErrMissingParameter          = errors.New("missing parameter value")
	ErrOperationNotSupported     = errors.New("operation not supported")
	ErrTimeout                   = errors.New("request timed out")
)

// Exception is a coded failure.
type Exception struct {
	Code    Code
	Locator string
	Message string
	Status  int
	Kind    error
	Err     error
}

// Error implements the error interface
func (e *Exception) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Locator != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Locator)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause
func (e *Exception) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this exception.
func (e *Exception) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

// As extracts an *Exception from an error chain.
func As(err error) (*Exception, bool) {
	var ex *Exception
	if errors.As(err, &ex) {
		return ex, true
	}
	return nil, false
}

// StatusOf returns the HTTP status an error should be reported with.
func StatusOf(err error) int {
	if ex, ok := As(err); ok && ex.Status != 0 {
		return ex.Status
	}
	return http.StatusInternalServerError
}

func UnsupportedOperator(operator, locator string) *Exception {
	return &Exception{
		Code:    OptionNotSupported,
		Locator: locator,
		Message: fmt.Sprintf("temporal operator %q is not supported", operator),
		Status:  http.StatusBadRequest,
		Kind:    ErrUnsupportedOperator,
	}
}

func UnsupportedValueReference(reference string) *Exception {
	return &Exception{
		Code:    InvalidParameterValue,
		Locator: "valueReference",
		Message: fmt.Sprintf("value reference %q is not supported", reference),
		Status:  http.StatusBadRequest,
		Kind:    ErrUnsupportedValueReference,
	}
}

func UnsupportedTime(locator, message string) *Exception {
	return &Exception{
		Code:    InvalidParameterValue,
		Locator: locator,
		Message: message,
		Status:  http.StatusBadRequest,
		Kind:    ErrUnsupportedTime,
	}
}

// SizeLimit reports a response that would exceed a configured limit. The
// message is shown to the client and should tell it how to narrow the request.
func SizeLimit(message string) *Exception {
	return &Exception{
		Code:    ResponseExceedsSizeLimit,
		Message: message,
		Status:  http.StatusBadRequest,
		Kind:    ErrResponseExceedsSizeLimit,
	}
}

// Storage wraps a backend failure. A cause that is a context deadline or
// cancellation is reported through Timeout instead.
func Storage(cause error, action string) *Exception {
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
		return Timeout(cause)
	}
	return &Exception{
		Code:    NoApplicableCode,
		Message: fmt.Sprintf("error while querying observation data: %s", action),
		Status:  http.StatusInternalServerError,
		Kind:    ErrStorage,
		Err:     cause,
	}
}

// Timeout reports a request that ran out of time (504) or whose client went
// away (503) before the response was complete.
func Timeout(cause error) *Exception {
	ex := &Exception{
		Code:    NoApplicableCode,
		Message: "the request timed out; please restrict the request or retry later",
		Status:  http.StatusGatewayTimeout,
		Kind:    ErrTimeout,
		Err:     cause,
	}
	if errors.Is(cause, context.Canceled) {
		ex.Message = "the request was canceled"
		ex.Status = http.StatusServiceUnavailable
	}
	return ex
}

func NotYetSupported(feature string) *Exception {
	return &Exception{
		Code:    OptionNotSupported,
		Locator: feature,
		Message: fmt.Sprintf("%s is not yet supported", feature),
		Status:  http.StatusNotImplemented,
		Kind:    ErrNotYetSupported,
	}
}

func InvalidParameter(locator, message string) *Exception {
	return &Exception{
		Code:    InvalidParameterValue,
		Locator: locator,
		Message: message,
		Status:  http.StatusBadRequest,
		Kind:    ErrInvalidParameter,
	}
}

func MissingParameter(locator string) *Exception {
	return &Exception{
		Code:    MissingParameterValue,
		Locator: locator,
		Message: fmt.Sprintf("parameter %s is required", locator),
		Status:  http.StatusBadRequest,
		Kind:    ErrMissingParameter,
	}
}

// UnsupportedOperation reports a request other than GetObservation.
func UnsupportedOperation(operation string) *Exception {
	return &Exception{
		Code:    OperationNotSupported,
		Locator: "request",
		Message: fmt.Sprintf("operation %q is not supported", operation),
		Status:  http.StatusNotImplemented,
		Kind:    ErrOperationNotSupported,
	}
}

/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package resterr maps internal failures onto consistent REST error
// responses.
package resterr

import (
	"fmt"
	"net/http"
)

type Code string

const (
	SystemError  Code = "system-error"
	InvalidValue Code = "invalid-value"
	DoesntExist  Code = "doesnt-exist"
	BadRequest   Code = "bad-request"
	Unauthorized Code = "unauthorized"
)

func (c Code) Name() string {
	return string(c)
}

// CustomError carries the REST error code together with enough context to
// tell a caller mistake from an internal failure.
type CustomError struct {
	Code            Code
	IncorrectValue  string
	Component       string
	FailedOperation string
	Err             error
}

// NewValidationError describes a request the caller can fix.
func NewValidationError(code Code, incorrectValue string, err error) *CustomError {
	return &CustomError{
		Code:           code,
		IncorrectValue: incorrectValue,
		Err:            err,
	}
}

// NewSystemError describes a failure inside the named component.
func NewSystemError(component, failedOperation string, err error) *CustomError {
	return &CustomError{
		Code:            SystemError,
		Component:       component,
		FailedOperation: failedOperation,
		Err:             err,
	}
}

func NewUnauthorizedError(err error) *CustomError {
	return &CustomError{Code: Unauthorized, Err: err}
}

func (e *CustomError) Error() string {
	if e.Code == SystemError {
		return fmt.Sprintf("%s[%s, %s]: %v", e.Code, e.Component, e.FailedOperation, e.Err)
	}

	if e.IncorrectValue != "" {
		return fmt.Sprintf("%s[%s]: %v", e.Code, e.IncorrectValue, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *CustomError) Unwrap() error {
	return e.Err
}

// HTTPCodeMsg returns the HTTP status and response body for the error.
func (e *CustomError) HTTPCodeMsg() (int, interface{}) {
	msg := map[string]interface{}{
		"code":    e.Code.Name(),
		"message": e.Err.Error(),
	}

	if e.IncorrectValue != "" {
		msg["incorrectValue"] = e.IncorrectValue
	}

	if e.Component != "" {
		msg["component"] = e.Component
		msg["operation"] = e.FailedOperation
	}

	switch e.Code {
	case SystemError:
		return http.StatusInternalServerError, msg
	case DoesntExist:
		return http.StatusNotFound, msg
	case Unauthorized:
		return http.StatusUnauthorized, msg
	default:
		return http.StatusBadRequest, msg
	}
}

/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resterr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidationError(t *testing.T) {
	err := NewValidationError(InvalidValue, "requestBody.qr", errors.New("some error"))
	require.Equal(t, "invalid-value[requestBody.qr]: some error", err.Error())

	httpCode, resp := err.HTTPCodeMsg()

	require.Equal(t, http.StatusBadRequest, httpCode)
	requireCode(t, resp, InvalidValue.Name())
	requireMessage(t, resp, "some error")
}

func TestNewSystemError(t *testing.T) {
	err := NewSystemError("testComp", "TestOp", errors.New("some error"))
	require.Equal(t, "system-error[testComp, TestOp]: some error", err.Error())

	httpCode, resp := err.HTTPCodeMsg()

	require.Equal(t, http.StatusInternalServerError, httpCode)
	requireCode(t, resp, SystemError.Name())
	requireMessage(t, resp, "some error")
}

func TestNewUnauthorizedError(t *testing.T) {
	err := NewUnauthorizedError(errors.New("unauthorized"))
	require.Equal(t, "unauthorized: unauthorized", err.Error())

	httpCode, resp := err.HTTPCodeMsg()

	require.Equal(t, http.StatusUnauthorized, httpCode)
	requireCode(t, resp, Unauthorized.Name())
}

func TestCustomError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := NewValidationError(BadRequest, "field", inner)
	require.ErrorIs(t, err, inner)
}

func TestCustomError_DoesntExist(t *testing.T) {
	err := NewValidationError(DoesntExist, "group", errors.New("no such group"))

	httpCode, _ := err.HTTPCodeMsg()
	require.Equal(t, http.StatusNotFound, httpCode)
}

func requireCode(t *testing.T, resp interface{}, code string) {
	t.Helper()

	require.Equal(t, code, resp.(map[string]interface{})["code"])
}

func requireMessage(t *testing.T, resp interface{}, message string) {
	t.Helper()

	require.Equal(t, message, resp.(map[string]interface{})["message"])
}

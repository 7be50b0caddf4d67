/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resterr

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func TestHTTPErrorHandler(t *testing.T) {
	t.Run("custom error", func(t *testing.T) {
		rec := handle(t, NewValidationError(InvalidValue, "qr", errors.New("bad prefix")))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "invalid-value")
		require.Contains(t, rec.Body.String(), "bad prefix")
	})

	t.Run("echo error", func(t *testing.T) {
		rec := handle(t, echo.NewHTTPError(http.StatusNotFound, "no route"))

		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Contains(t, rec.Body.String(), "no route")
	})

	t.Run("generic error", func(t *testing.T) {
		rec := handle(t, errors.New("boom"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Contains(t, rec.Body.String(), "generic-error")
	})
}

func handle(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()

	HTTPErrorHandler(err, e.NewContext(req, rec))

	return rec
}

/*
Copyright the DCC Kit Authors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resterr

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/trustbloc/logutil-go/pkg/log"
	"go.uber.org/zap"
)

var logger = log.New("rest-err")

// HTTPErrorHandler is an echo error handler that renders CustomError
// instances with their mapped status and everything else as a generic 500.
func HTTPErrorHandler(err error, c echo.Context) {
	code, message := processError(err)

	logger.Error("HTTP error", log.WithError(err),
		zap.String("uri", c.Request().RequestURI), zap.Int("status", code))

	sendResponse(c, code, message)
}

func sendResponse(c echo.Context, code int, message interface{}) {
	if c.Response().Committed {
		return
	}

	var err error

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, message)
	}

	if err != nil {
		logger.Error("Write HTTP response", log.WithError(err))
	}
}

func processError(err error) (int, interface{}) {
	switch v := err.(type) { //nolint: errorlint
	case *echo.HTTPError:
		code, message := v.Code, v.Message
		if v.Internal != nil {
			message = err.Error()
		}

		if strMsg, ok := message.(string); ok {
			message = map[string]interface{}{
				"message": strMsg,
			}
		}

		return code, message

	case *CustomError:
		return v.HTTPCodeMsg()

	default:
		return http.StatusInternalServerError, map[string]interface{}{
			"code":    "generic-error",
			"message": err.Error(),
		}
	}
}

package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	applogger "AdaptiveEnsemble/pkg/logger"
)

// APIResponse is the envelope of every JSON reply.
type APIResponse struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Data    interface{}       `json:"data,omitempty"`
	Errors  []*AppError       `json:"errors,omitempty"`
	Fields  []ValidationError `json:"fields,omitempty"`
}

// DataResponse writes the envelope with the given status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

// SuccessResponse writes success response.
func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// ValidationResponse writes a 400 listing the rejected fields.
func ValidationResponse(c echo.Context, fields []ValidationError) error {
	return c.JSON(http.StatusBadRequest, APIResponse{
		Status:  http.StatusBadRequest,
		Message: http.StatusText(http.StatusBadRequest),
		Fields:  fields,
	})
}

// ErrorResponse writes err with its AppError status; other errors become 500.
func ErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalErrorf("internal error").WithError(err)
	}
	return c.JSON(appErr.Status, APIResponse{
		Status:  appErr.Status,
		Message: http.StatusText(appErr.Status),
		Errors:  []*AppError{appErr},
	})
}

// ErrorHandler renders errors returned by handlers and middleware, including
// echo's own HTTPError, in the standard envelope.
func ErrorHandler(l *applogger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			err = FromHTTPError(he)
		}
		if werr := ErrorResponse(c, err); werr != nil {
			l.Error("write error response", applogger.Error(werr))
		}
	}
}

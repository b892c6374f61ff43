package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applogger "AdaptiveEnsemble/pkg/logger"
)

type echoReq struct {
	Symbol string `query:"symbol" validate:"required"`
	N      int    `query:"n" default:"10" validate:"gte=5"`
}

type routes func(e *echo.Echo)

func (r routes) RegisterRoutes(e *echo.Echo) { r(e) }

func serve(t *testing.T, h Handler, target string) (int, APIResponse) {
	t.Helper()
	e := NewServer(h, applogger.NewNop(), WithMetricsPath("")).Echo()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestBindAppliesDefaultsAndNamesFieldsByTag(t *testing.T) {
	var got echoReq
	h := routes(func(e *echo.Echo) {
		e.GET("/r", func(c echo.Context) error {
			if verrs := Bind(c, &got); verrs != nil {
				return ValidationResponse(c, verrs)
			}
			return SuccessResponse(c, got)
		})
	})

	code, _ := serve(t, h, "/r?symbol=BTC")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 10, got.N)

	code, body := serve(t, h, "/r?n=1")
	require.Equal(t, http.StatusBadRequest, code)
	require.Len(t, body.Fields, 2)
	assert.Equal(t, "symbol", body.Fields[0].Field)
	assert.Equal(t, "ERR_REQUIRED", body.Fields[0].Code)
	assert.Equal(t, "n", body.Fields[1].Field)
	assert.Equal(t, "n must be at least 5", body.Fields[1].Message)
}

func TestErrorHandlerUsesEnvelope(t *testing.T) {
	h := routes(func(e *echo.Echo) {
		e.GET("/app", func(c echo.Context) error {
			return ErrorResponse(c, UnavailableError("store down"))
		})
		e.GET("/plain", func(c echo.Context) error {
			return ErrorResponse(c, errors.New("boom"))
		})
		e.GET("/panic", func(c echo.Context) error {
			panic("kaboom")
		})
	})

	code, body := serve(t, h, "/app")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "ERR_UNAVAILABLE", body.Errors[0].Code)

	code, body = serve(t, h, "/plain")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "ERR_INTERNAL", body.Errors[0].Code)

	code, body = serve(t, h, "/missing")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "ERR_NOT_FOUND", body.Errors[0].Code)

	code, body = serve(t, h, "/panic")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "ERR_INTERNAL_SERVER_ERROR", body.Errors[0].Code)
}

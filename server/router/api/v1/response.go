package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	aierrors "github.com/hrygo/atabot/server/internal/errors"
	"github.com/hrygo/atabot/server/middleware"
)

// APIResponse is the envelope of every successful JSON response.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func ok(c echo.Context, message string, data any) error {
	return c.JSON(http.StatusOK, APIResponse{Success: true, Message: message, Data: data})
}

// fail maps err to its status and error envelope. Internal causes are logged,
// not returned to the client.
func fail(c echo.Context, err error) error {
	code := aierrors.GetCodeFromError(err, aierrors.ErrCodeInternal)
	status := aierrors.HTTPStatus(code)

	message := http.StatusText(status)
	var aiErr *aierrors.AIError
	if status < http.StatusInternalServerError && errors.As(err, &aiErr) {
		message = aiErr.Message
	}
	if status >= http.StatusInternalServerError && !aierrors.IsCode(err, aierrors.ErrCodeContextCanceled) {
		slog.Error("request failed",
			slog.String("path", c.Path()),
			slog.String("error_code", string(code)),
			slog.String("error", err.Error()))
	}
	return middleware.ErrorJSON(c, status, code, message)
}

func badRequest(c echo.Context, message string) error {
	return middleware.ErrorJSON(c, http.StatusBadRequest, aierrors.ErrCodeInvalidArgument, message)
}

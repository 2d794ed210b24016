package middleware

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/atabot/server/internal/observability"
)

// maxRequestIDLength bounds a client-supplied X-Request-ID.
const maxRequestIDLength = 64

// RequestID attaches a RequestContext to every request. A well-formed
// X-Request-ID header is reused, otherwise a new id is generated; either way
// it is echoed in the response.
func RequestID(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			var rc *observability.RequestContext
			if id := req.Header.Get(echo.HeaderXRequestID); validRequestID(id) {
				rc = observability.NewRequestContextWithID(logger, id, "", "")
			} else {
				rc = observability.NewRequestContext(logger, "", "")
			}
			c.Response().Header().Set(echo.HeaderXRequestID, rc.RequestID)
			c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), rc)))
			return next(c)
		}
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, r := range id {
		if !(r == '-' || r == '_' || r == '.' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}

// RequestLogger logs one structured line per request and records it in metrics.
// Requests passed through RequestID are logged with their request id.
func RequestLogger(logger *slog.Logger, metrics *observability.Metrics) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRoutePath: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			metrics.RecordHTTP(v.Method, v.RoutePath, v.Status)

			level := slog.LevelInfo
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.String("remote_ip", v.RemoteIP),
				slog.Int64(observability.LogFieldDuration, v.Latency.Milliseconds()),
			}
			if v.Error != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			log := logger
			if rc, ok := observability.FromContext(c.Request().Context()); ok {
				log = rc.WithFields()
			}
			log.LogAttrs(context.Background(), level, "http request", attrs...)
			return nil
		},
	})
}

// SecureHeaders sets the browser hardening headers on every response.
func SecureHeaders() echo.MiddlewareFunc {
	return echomw.SecureWithConfig(echomw.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	})
}

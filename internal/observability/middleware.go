package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
)

// RequestLogger logs one JSON line per request.  Request bodies are never
// logged since they carry passwords and refresh tokens.
func RequestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := log.JSON{
				"event":       "http_request",
				"method":      v.Method,
				"path":        v.URIPath,
				"status":      v.Status,
				"duration_ms": v.Latency.Milliseconds(),
				"ip":          v.RemoteIP,
			}
			if v.RequestID != "" {
				entry["request_id"] = v.RequestID
			}
			// set by the bearer guard on authenticated routes
			if uid, ok := c.Get("user_id").(string); ok && uid != "" {
				entry["user_id"] = uid
				entry["role"] = c.Get("role")
			}
			if v.Error != nil {
				entry["error"] = v.Error.Error()
			}
			if v.Status >= http.StatusInternalServerError {
				logger.Errorj(entry)
			} else {
				logger.Infoj(entry)
			}
			return nil
		},
	})
}

// Recover turns panics into 500 responses and reports them to Sentry.
func Recover(logger *log.Logger) echo.MiddlewareFunc {
	return middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisablePrintStack: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			sentry.WithScope(func(scope *sentry.Scope) {
				scope.SetExtra("stack", string(stack))
				scope.SetTag("path", c.Path())
				sentry.CaptureException(err)
			})
			logger.Errorj(log.JSON{
				"event":  "panic_recovered",
				"path":   c.Request().URL.Path,
				"method": c.Request().Method,
				"panic":  err.Error(),
				"at":     time.Now().UTC().Format(time.RFC3339),
			})
			return fmt.Errorf("panic recovered: %w", err)
		},
	})
}

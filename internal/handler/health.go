package handler // declare the package name; contains HTTP handlers

import (
	"context"  // bounded ping
	"net/http" // net/http provides status codes and response helpers
	"time"

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health reports liveness and whether the database answers a ping.  It
// returns 503 when the database is unreachable so load balancers take the
// instance out of rotation.
func Health(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status, dbState := http.StatusOK, "up"
		if db == nil || db.PingContext(ctx) != nil {
			status, dbState = http.StatusServiceUnavailable, "down"
		}
		return c.JSON(status, echo.Map{
			"ok":   status == http.StatusOK,
			"time": time.Now().UTC().Format(time.RFC3339),
			"db":   dbState,
		})
	}
}

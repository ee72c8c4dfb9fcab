package internalhttp

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Register attaches health and metrics endpoints outside the API base path.
func Register(e *echo.Echo, metrics http.Handler) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

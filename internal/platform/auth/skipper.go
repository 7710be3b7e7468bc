package auth

import "github.com/labstack/echo/v4"

var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
}

// AuthSkipper returns true for infrastructure endpoints that bypass
// authentication and tenant resolution.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()] || publicPaths[c.Request().URL.Path]
}

package http

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// QueryInt reads an integer query parameter. Missing or malformed values
// give def; others are clamped to [lo, hi].
func QueryInt(c echo.Context, name string, def, lo, hi int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return def
	}
	return min(max(v, lo), hi)
}

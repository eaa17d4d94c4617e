package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// MountEcho mounts handler under base on an echo instance.
func MountEcho(e *echo.Echo, base string, handler http.Handler) {
	base = sanitizeBase(base)
	wrapped := echo.WrapHandler(handler)
	if base == "" {
		e.Any("/*", wrapped)
		return
	}
	e.Any(base, wrapped)
	e.Any(base+"/*", wrapped)
}

package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths are route patterns reachable without a bearer token: health
// checks, the credential endpoints, and the callbacks the voice agent
// invokes during a live call.
var publicPaths = map[string]bool{
	"/":                                   true,
	"/health":                             true,
	"/health/db":                          true,
	"/health/deps":                        true,
	"/auth/register":                      true,
	"/auth/token":                         true,
	"/auth/forgot-password/otp":           true,
	"/auth/reset-password/otp":            true,
	"/calls/inbound":                      true,
	"/calls/detect-intent":                true,
	"/calls/save-summary":                 true,
	"/calls/schedule-callback":            true,
	"/healthcare/calls/detect-intent":     true,
	"/patients/create":                    true,
	"/patients/search":                    true,
	"/healthcare/appointments/create":     true,
	"/healthcare/appointments/reschedule": true,
	"/healthcare/appointments/delete":     true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given route pattern is public.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}

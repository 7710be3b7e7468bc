package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const maxHeaderValueSize = 8192

var (
	// logged only; the repositories bind every value as a parameter
	sqlPattern = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1)`)

	scriptPattern = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)
)

// Sanitize rejects requests with path traversal, NUL bytes, header
// injection or script in query parameters with a 400.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if reason := screen(c.Request(), logger); reason != "" {
				logger.Warn().
					Str("path", c.Request().URL.Path).
					Str("remote_ip", c.RealIP()).
					Str("reason", reason).
					Msg("request rejected")
				return echo.NewHTTPError(http.StatusBadRequest, reason)
			}
			return next(c)
		}
	}
}

// screen returns why req must be rejected, or "".
func screen(req *http.Request, logger zerolog.Logger) string {
	path, raw := req.URL.Path, req.URL.RawPath
	if raw == "" {
		raw = path
	}
	if hasTraversal(path) || hasTraversal(raw) {
		return "path traversal detected"
	}
	if hasNUL(path) || hasNUL(raw) {
		return "null byte in path"
	}

	for name, values := range req.Header {
		for _, v := range values {
			if len(v) > maxHeaderValueSize {
				return "header " + name + " is too large"
			}
			if strings.ContainsAny(v, "\r\n") {
				return "header injection detected in " + name
			}
		}
	}

	for key, values := range req.URL.Query() {
		if hasNUL(key) {
			return "null byte in query parameter"
		}
		for _, v := range values {
			if hasNUL(v) {
				return "null byte in query parameter " + key
			}
			if scriptPattern.MatchString(key) || scriptPattern.MatchString(v) {
				return "script in query parameter " + key
			}
			if sqlPattern.MatchString(v) {
				logger.Warn().Str("param", key).Str("path", path).Msg("suspicious SQL in query parameter")
			}
		}
	}
	return ""
}

func hasTraversal(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(s, "..") || strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e")
}

func hasNUL(s string) bool {
	return strings.ContainsRune(s, 0) || strings.Contains(strings.ToLower(s), "%00")
}

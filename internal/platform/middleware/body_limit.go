package middleware

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit caps request bodies at defaultLimit. Requests whose route path
// (as registered, e.g. "/api/v1/globalproperties") is listed in bulkRoutes
// get bulkLimit instead; those endpoints accept whole lists.
//
// Limits are strings like "1M", "512K" or "1G". A bare number is bytes.
func BodyLimit(defaultLimit, bulkLimit string, bulkRoutes ...string) echo.MiddlewareFunc {
	defaultBytes := parseLimit(defaultLimit)
	bulkBytes := parseLimit(bulkLimit)
	bulk := make(map[string]bool, len(bulkRoutes))
	for _, r := range bulkRoutes {
		bulk[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Body == nil || c.Request().Body == http.NoBody {
				return next(c)
			}

			limit := defaultBytes
			if bulk[c.Path()] {
				limit = bulkBytes
			}

			if c.Request().ContentLength > limit {
				return payloadTooLarge(limit)
			}

			// Content-Length may be absent or wrong.
			c.Request().Body = &limitedReadCloser{
				ReadCloser: c.Request().Body,
				remaining:  limit,
				limit:      limit,
			}
			return next(c)
		}
	}
}

type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
	limit     int64
	exceeded  bool
}

func (r *limitedReadCloser) Read(p []byte) (n int, err error) {
	if r.exceeded {
		return 0, payloadTooLarge(r.limit)
	}

	// one byte past the limit detects overflow
	toRead := int64(len(p))
	if toRead > r.remaining+1 {
		toRead = r.remaining + 1
	}

	n, err = r.ReadCloser.Read(p[:toRead])
	r.remaining -= int64(n)
	if r.remaining < 0 {
		r.exceeded = true
		return 0, payloadTooLarge(r.limit)
	}
	return n, err
}

func payloadTooLarge(limit int64) error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		"request body exceeds maximum allowed size of "+strconv.FormatInt(limit, 10)+" bytes")
}

// parseLimit turns "1M", "512K" or "10G" into bytes. Unparsable input
// falls back to 1 MB.
func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 1 << 20
	}

	var multiplier int64 = 1
	s = strings.TrimSuffix(s, "B")
	switch {
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
	}
	s = strings.TrimRight(s, "GMK")

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 1 << 20
	}
	return n * multiplier
}

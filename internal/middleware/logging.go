package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-management/internal/logging"
)

// RequestLogger logs one line per request after the handler ran.  Place it
// after ResolveIdentity so the account id is known.
func RequestLogger(log logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err) // let echo write the response so the status is final
			}

			req, res := c.Request(), c.Response()
			args := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"route", c.Path(),
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"ip", c.RealIP(),
			}
			if rid := res.Header().Get(echo.HeaderXRequestID); rid != "" {
				args = append(args, "request_id", rid)
			}
			if id := CurrentIdentity(c); id.Authenticated() {
				args = append(args, "account_id", id.AccountID)
			}

			switch {
			case res.Status >= 500:
				log.Error(req.Context(), "request", args...)
			case res.Status >= 400:
				log.Warn(req.Context(), "request", args...)
			default:
				log.Info(req.Context(), "request", args...)
			}
			return nil
		}
	}
}

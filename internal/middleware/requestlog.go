package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/metrics"
)

// RequestLogger logs every request with zap and records the HTTP metrics.
// The route label is the registered path, not the raw URL, to keep label
// cardinality bounded.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			elapsed := time.Since(start)

			metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status), req.Method).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(route, req.Method).Observe(elapsed.Seconds())

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("latency", elapsed),
				zap.String("ip", c.RealIP()),
			}
			if id := UserID(c); id != "" {
				fields = append(fields, zap.String("user_id", id))
			}
			switch {
			case status >= 500:
				log.Error("request", fields...)
			case status >= 400:
				log.Warn("request", fields...)
			default:
				log.Info("request", fields...)
			}
			return nil
		}
	}
}

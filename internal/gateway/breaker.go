// Package gateway holds the HTTP clients for the collaborators this
// service calls: the device-control service, the Expo push API and the
// Google token verifier.  All of them are resty clients with bounded
// retries; the device-control client also sits behind a circuit breaker.
package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/metrics"
)

// StatusError is returned when a collaborator answers with a non-2xx code.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.Code, e.Body)
}

// serverFault reports whether err should count against the breaker.
// Client errors (4xx) mean the gateway is up and answering.
func serverFault(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return err != nil
}

func newBreaker(name string, failures uint32, log *zap.Logger) *gobreaker.CircuitBreaker[*resty.Response] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	return gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool { return !serverFault(err) },
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// retryOnServerError retries transport errors and 5xx answers.
func retryOnServerError(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	return r != nil && r.StatusCode() >= 500
}

func observe(provider, service string, started time.Time) {
	metrics.ExternalAPIDuration.WithLabelValues(provider, service).Observe(time.Since(started).Seconds())
}

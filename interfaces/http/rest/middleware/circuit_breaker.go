package middleware

import (
	"errors"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	pkgerrors "todoflow/pkg/errors"
)

var errServerFailure = errors.New("handler answered with a server error")

// CircuitBreakerConfig holds configuration for circuit breaker
type CircuitBreakerConfig struct {
	Name string
	// MaxFailures consecutive 5xx responses open the breaker
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before letting a probe through
	OpenTimeout time.Duration
	// MaxRequests is the number of probes allowed while half-open
	MaxRequests uint32
}

// CircuitBreaker fails fast with 503 once the wrapped routes keep answering
// with server errors, typically because storage is down.
func CircuitBreaker(cfg CircuitBreakerConfig, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) func(http.Handler) http.Handler {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, err := cb.Execute(func() (interface{}, error) {
				ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
				next.ServeHTTP(ww, r)
				if ww.Status() >= http.StatusInternalServerError {
					return nil, errServerFailure
				}
				return nil, nil
			})

			switch {
			case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
				logger.Warn("Circuit breaker rejected request",
					zap.String("breaker", cfg.Name),
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				w.Header().Set("Retry-After", "5")
				errorHandler.Handle(w, r, pkgerrors.NewUnavailableError(cfg.Name))
			}
		})
	}
}

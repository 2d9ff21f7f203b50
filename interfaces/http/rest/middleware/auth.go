package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"todoflow/pkg/auth"
	pkgerrors "todoflow/pkg/errors"
)

// Authenticate validates the bearer access token and puts the caller into
// the request context. Expired tokens are reported with TOKEN_EXPIRED so
// clients know a refresh may help.
func Authenticate(validator *auth.JWTValidator, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				errorHandler.Handle(w, r, pkgerrors.NewUnauthorizedError("missing authentication token").
					WithCode(pkgerrors.CodeTokenInvalid))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.Debug("Invalid token",
					zap.Error(err),
					zap.String("ip", ClientIP(r)),
					zap.String("path", r.URL.Path),
				)
				if errors.Is(err, auth.ErrExpiredToken) {
					errorHandler.Handle(w, r, pkgerrors.NewUnauthorizedError("token has expired").
						WithCode(pkgerrors.CodeTokenExpired))
					return
				}
				errorHandler.Handle(w, r, pkgerrors.NewUnauthorizedError("invalid token").
					WithCode(pkgerrors.CodeTokenInvalid))
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("user.id", claims.UserID))
			ctx := auth.SetUserInContext(r.Context(), &auth.UserContext{
				UserID: claims.UserID,
				Email:  claims.Email,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit rejects callers whose bucket is empty with 429. Callers are
// keyed by client IP.
func RateLimit(limiter auth.RateLimiter, limit int, window string, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			allowed, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				// Fail open.
				logger.Error("Rate limiter error", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "1")
				errorHandler.Handle(w, r, pkgerrors.NewRateLimitError(limit, window))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// ClientIP returns the caller's address without the port. chi's RealIP
// middleware has already folded X-Forwarded-For into RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

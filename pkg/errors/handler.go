package errors

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON envelope for every failed API call.
type ErrorResponse struct {
	Error     bool           `json:"error"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Code      string         `json:"code,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
}

// ErrorHandler turns errors into HTTP responses and logs them.
type ErrorHandler struct {
	logger *zap.Logger
	debug  bool
}

func NewErrorHandler(logger *zap.Logger, debug bool) *ErrorHandler {
	return &ErrorHandler{logger: logger, debug: debug}
}

// Handle writes err as an ErrorResponse. Errors that are not an *AppError
// are reported as internal; their text is only exposed in debug mode.
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	appErr := GetAppError(err)
	if appErr == nil {
		appErr = &AppError{Type: ErrorTypeInternal, Message: "An internal error occurred", Cause: err}
		if h.debug {
			appErr.Message = err.Error()
		}
	}
	h.write(w, r, appErr)
}

// HandleStatus writes a bare status with message, for router-level failures
// such as unknown routes.
func (h *ErrorHandler) HandleStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.write(w, r, &AppError{Type: statusToErrorType(status), Message: message, HTTPStatus: status})
}

func (h *ErrorHandler) write(w http.ResponseWriter, r *http.Request, appErr *AppError) {
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	requestID, traceID := requestIDs(r)

	fields := []zap.Field{
		zap.String("error_type", string(appErr.Type)),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("request_id", requestID),
	}
	if traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if appErr.Code != "" {
		fields = append(fields, zap.String("error_code", appErr.Code))
	}
	if appErr.Cause != nil {
		fields = append(fields, zap.Error(appErr.Cause))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(appErr.Message, fields...)
	} else {
		h.logger.Warn(appErr.Message, fields...)
	}

	details := appErr.Details
	if h.debug && appErr.StackTrace != "" {
		details = maps.Clone(details)
		if details == nil {
			details = map[string]any{}
		}
		details["stack_trace"] = appErr.StackTrace
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:     true,
		Type:      string(appErr.Type),
		Message:   appErr.Message,
		Code:      appErr.Code,
		Details:   details,
		RequestID: requestID,
		TraceID:   traceID,
	}); err != nil {
		h.logger.Debug("Error response not written", zap.Error(err))
	}
}

// Middleware recovers panics into a 500 ErrorResponse.
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.Handle(w, r, NewInternalError(fmt.Sprintf("panic: %v", rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestIDs(r *http.Request) (string, string) {
	requestID := chimiddleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = r.Header.Get("X-Request-ID")
	}
	var traceID string
	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	return requestID, traceID
}

func statusToErrorType(status int) ErrorType {
	switch status {
	case http.StatusBadRequest:
		return ErrorTypeValidation
	case http.StatusUnauthorized:
		return ErrorTypeUnauthorized
	case http.StatusForbidden:
		return ErrorTypeForbidden
	case http.StatusNotFound:
		return ErrorTypeNotFound
	case http.StatusConflict:
		return ErrorTypeConflict
	case http.StatusUnprocessableEntity:
		return ErrorTypeIntegrity
	case http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case http.StatusServiceUnavailable:
		return ErrorTypeUnavailable
	case http.StatusBadGateway:
		return ErrorTypeExternal
	default:
		return ErrorTypeInternal
	}
}

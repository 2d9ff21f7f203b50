package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

var (
	// ErrNotAuthenticated means there is no credential and the identity
	// provider could not mint a token.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoRefreshToken means a 401 arrived with nothing to refresh with.
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	Code       string
	RequestID  string
	Body       []byte
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	return b.String()
}

const maxMessageBytes = 200

// parseAPIError reads the backend's error envelope. Bodies that are not the
// envelope (proxies, load balancers) still yield a usable message.
func parseAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: body}
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		e.Type = parsed.Get("type").String()
		e.Code = parsed.Get("code").String()
		e.RequestID = parsed.Get("request_id").String()
		e.Message = parsed.Get("message").String()
		if e.Message == "" {
			e.Message = parsed.Get("error").String()
		}
		return e
	}
	e.Message = truncate(strings.TrimSpace(string(body)), maxMessageBytes)
	return e
}

// truncate shortens s to at most n bytes without splitting a UTF-8 rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

package utils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	pkgerrors "todoflow/pkg/errors"
)

const maxBodyBytes = 1 << 20

// DecodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return pkgerrors.NewValidationError("request body is empty")
		case errors.As(err, &maxErr):
			return pkgerrors.NewValidationError("request body too large")
		default:
			return pkgerrors.NewValidationError("invalid request body").WithCause(err)
		}
	}
	if dec.More() {
		return pkgerrors.NewValidationError("request body must contain a single JSON object")
	}
	return nil
}

// RespondJSON writes v with the given status.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

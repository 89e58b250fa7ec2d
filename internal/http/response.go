package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", applog.FieldError, err)
	}
}

// writeError maps err to a status code and writes {"error": ...}. Internal
// errors are logged and replaced by a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status == http.StatusInternalServerError {
		applog.NewStructuredLogger(applog.FromContext(r.Context())).LogError(r.Context(),
			"Request failed", err, applog.ComponentHTTP, r.Method,
			applog.NewFields().
				WithErrorType(applog.ErrorTypeInternal).
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", ""))
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func errorStatus(err error) (int, string) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, core.ErrCategoryInUse):
		return http.StatusBadRequest, core.ErrCategoryInUse.Error()
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyDescription):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// decodeJSON reads a JSON body of at most maxBodyBytes into dst. Unknown
// fields are ignored. Decoding problems come back as validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}

	var (
		maxErr    *http.MaxBytesError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, io.EOF):
		return core.Invalid("", "request body is required")
	case errors.As(err, &maxErr):
		return core.Invalid("", "request body too large")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return core.Invalid("", "malformed JSON")
	case errors.As(err, &typeErr):
		return core.Invalid(typeErr.Field, "has the wrong type")
	case errors.Is(err, core.ErrInvalidAmount):
		return core.Invalid("amount", "must be a positive number with at most two decimals")
	case errors.Is(err, core.ErrInvalidDate):
		return core.Invalid("", "dates must be YYYY-MM-DD")
	default:
		return core.Invalid("", "invalid request body: %v", err)
	}
}

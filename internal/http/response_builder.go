package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"kas/internal/core"
	"kas/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

type messageBody struct {
	Message string `json:"message"`
}

type validationBody struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *JSONResponseBuilder) JSON(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response. A body that fails to encode becomes a
// 500 so the client never sees a half-written document.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"failed to encode response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte{'\n'})
}

// ErrorResponse creates a {"message": ...} response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).JSON(messageBody{Message: message})
}

// writeError maps service errors to status codes. notFound is the message
// used for a missing resource.
func writeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	var verr *core.ValidationError
	switch {
	case errors.Is(err, core.ErrUnauthenticated):
		ErrorResponse(http.StatusUnauthorized, "Unauthorized!").Write(w)
	case errors.Is(err, core.ErrNotFound):
		ErrorResponse(http.StatusNotFound, notFound).Write(w)
	case errors.As(err, &verr):
		NewJSONResponse().
			Status(http.StatusUnprocessableEntity).
			JSON(validationBody{Message: "Validation failed", Fields: verr.Fields}).
			Write(w)
	case errors.Is(err, core.ErrValidation):
		ErrorResponse(http.StatusBadRequest, err.Error()).Write(w)
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
		ErrorResponse(http.StatusInternalServerError, err.Error()).Write(w)
	}
}

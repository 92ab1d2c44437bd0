// Package http serves the budget board JSON API.
//
// This file implements a small builder for JSON responses so every handler
// shapes success and error bodies the same way.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"budgetcards/internal/core"
	"budgetcards/internal/editor"
	"budgetcards/internal/services"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       []byte
	headers    map[string]string
	err        error
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON encodes v as the body. An encoding failure turns the response into
// a 500 on Write.
func (b *JSONResponseBuilder) JSON(v any) *JSONResponseBuilder {
	b.body, b.err = json.Marshal(v)
	return b
}

// Raw sets an already encoded body.
func (b *JSONResponseBuilder) Raw(body []byte) *JSONResponseBuilder {
	b.body = body
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	if b.err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Server Error"}`))
		return
	}
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

type errorBody struct {
	Error any `json:"error"`
}

// ErrorResponse creates a {"error": message} response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).JSON(errorBody{Error: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func BadGatewayError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadGateway, message)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "Internal Server Error")
}

// MethodNotAllowedError creates a 405 response listing the allowed methods.
func MethodNotAllowedError(allowedMethods string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed").
		Header("Allow", allowedMethods)
}

// UpstreamError wraps an upstream error body. A JSON body is embedded as is,
// anything else as a string.
func UpstreamError(status int, body []byte) *JSONResponseBuilder {
	var detail any = string(body)
	if len(body) > 0 && json.Valid(body) {
		detail = json.RawMessage(body)
	}
	return NewJSONResponse().Status(status).JSON(errorBody{Error: detail})
}

// statusFor maps domain errors onto HTTP statuses. fallback is used for
// anything unrecognised, typically a store or upstream failure.
func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrInvalidStatus),
		errors.Is(err, editor.ErrUnknownField):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUnknownCard):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrEmptyID):
		return http.StatusConflict
	default:
		return fallback
	}
}

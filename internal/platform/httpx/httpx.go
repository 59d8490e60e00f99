// Package httpx provides HTTP middleware and JSON helpers shared by the
// case API and operational routes.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// HeaderRequestID carries the correlation id on requests and responses.
const HeaderRequestID = "X-Request-ID"

// MaxJSONBodyBytes caps decoded request bodies.
const MaxJSONBodyBytes = 64 * 1024

// Middleware wraps an HTTP handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware in declaration order.
func Chain(handler http.Handler, middleware ...Middleware) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	wrapped := handler
	for idx := len(middleware) - 1; idx >= 0; idx-- {
		if middleware[idx] == nil {
			continue
		}
		wrapped = middleware[idx](wrapped)
	}
	return wrapped
}

// RequestID assigns a request id through chi's middleware, honoring an
// inbound X-Request-ID, and echoes it on the request and response headers.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requestID := RequestIDFrom(r.Context()); requestID != "" {
				r.Header.Set(HeaderRequestID, requestID)
				w.Header().Set(HeaderRequestID, requestID)
			}
			next.ServeHTTP(w, r)
		})
		return chimw.RequestID(echo)
	}
}

// RequestIDFrom returns the request id assigned by RequestID.
func RequestIDFrom(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// RecoverPanic converts panics into HTTP 500 responses and logs the stack.
func RecoverPanic() Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return chimw.Recoverer(next)
	}
}

// WriteJSON writes a JSON response with the provided status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return fmt.Errorf("response writer is required")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// DecodeJSON decodes a single JSON object from the request body into dst.
// Unknown fields and trailing data are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

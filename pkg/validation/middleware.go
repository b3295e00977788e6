// Package validation provides middleware for HTTP request validation
package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
)

// maxBodyBytes bounds request bodies read by ValidateJSON
const maxBodyBytes = 1 << 20

type bodyKey struct{}

// Middleware provides validation middleware for HTTP handlers
type Middleware struct {
	config *ValidationConfig
}

// NewMiddleware creates a new validation middleware
func NewMiddleware(config *ValidationConfig) *Middleware {
	if config == nil {
		config = DefaultValidationConfig()
	}
	return &Middleware{config: config}
}

// ValidateJSON decodes the request body into a fresh value of structType's
// type, validates it, and stores a pointer to it in the request context for
// Body to retrieve. Invalid bodies are rejected with 400.
func (m *Middleware) ValidateJSON(structType interface{}) func(http.Handler) http.Handler {
	typ := reflect.TypeOf(structType)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			val := reflect.New(typ).Interface()

			dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			dec.DisallowUnknownFields()
			if err := dec.Decode(val); err != nil {
				m.writeErrorResponse(w, http.StatusBadRequest, ValidationErrors{{
					Field:   "request_body",
					Message: fmt.Sprintf("invalid JSON: %v", err),
				}})
				return
			}

			if err := ValidateWithConfig(val, m.config); err != nil {
				var verrs ValidationErrors
				if errors.As(err, &verrs) {
					m.writeErrorResponse(w, http.StatusBadRequest, verrs)
					return
				}
				m.writeErrorResponse(w, http.StatusBadRequest, ValidationErrors{{
					Field:   "request_body",
					Message: err.Error(),
				}})
				return
			}

			ctx := context.WithValue(r.Context(), bodyKey{}, val)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Body returns the body decoded by ValidateJSON
func Body[T any](r *http.Request) (*T, bool) {
	v, ok := r.Context().Value(bodyKey{}).(*T)
	return v, ok
}

// writeErrorResponse writes validation errors as JSON response
func (m *Middleware) writeErrorResponse(w http.ResponseWriter, statusCode int, errs ValidationErrors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	data, err := MarshalValidationErrors(errs)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"validation failed","message":"internal validation error"}`))
		return
	}
	_, _ = w.Write(data)
}

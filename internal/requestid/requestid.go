// Package requestid attaches a per-request correlation id to every HTTP
// request, grounded on the teacher's own use of uuid.New() for generated
// identifiers (internal/gvisor/sandbox_executor.go).
package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey struct{}

// HeaderName is the response header carrying the correlation id.
const HeaderName = "X-Request-Id"

// Middleware generates a new request id (or reuses an inbound X-Request-Id
// header) and attaches it to the request context and response headers.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderName)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(HeaderName, id)
		ctx := context.WithValue(r.Context(), contextKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the request id attached by Middleware, or "" if none.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

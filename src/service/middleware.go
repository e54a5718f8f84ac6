package gateway

import (
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/net/context"
)

// RequestIdHeader carries the request correlation id on both requests and
// responses.
const RequestIdHeader = "X-Request-Id"

type requestIdContextKey struct{}

// RequestIdMiddleware propagates the caller's correlation id, minting one
// when the request arrives without it.
func RequestIdMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestId := r.Header.Get(RequestIdHeader)
		if requestId == "" {
			requestId = uuid.NewString()
		}
		w.Header().Set(RequestIdHeader, requestId)
		ctx := context.WithValue(r.Context(), requestIdContextKey{}, requestId)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestId returns the correlation id bound to the context, or "" when the
// request did not pass through RequestIdMiddleware.
func RequestId(ctx context.Context) string {
	if requestId, ok := ctx.Value(requestIdContextKey{}).(string); ok {
		return requestId
	}
	return ""
}

// CorsMiddleware annotates responses for allowlisted origins and resolves
// preflight requests. Origins match exactly, never by wildcard or suffix.
// The advertised methods come from the matched route via the router's
// CORSMethodMiddleware, which runs ahead of this one.
func (this *service) CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Origin")

		origin := r.Header.Get("Origin")
		if origin != "" && this.config.OriginAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIdHeader)
		}

		if r.Method == http.MethodOptions {
			// Preflight requests never reach the admission gate or handlers.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

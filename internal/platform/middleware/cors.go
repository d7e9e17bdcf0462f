package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

const allowOriginHeader = "Access-Control-Allow-Origin"

// CORS returns the global cross-origin policy: any origin may read any
// response. go-chi/cors only decorates requests that carry an Origin header;
// requests without one still get the wildcard so that every response
// advertises the policy.
func CORS() func(http.Handler) http.Handler {
	policy := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-CSRF-Token",
			"X-Request-Id",
			"traceparent",
		},
		ExposedHeaders: []string{"Link", "Location", "X-Request-Id"},
		MaxAge:         300,
	})
	return func(next http.Handler) http.Handler {
		h := policy(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Origin") == "" {
				w.Header().Set(allowOriginHeader, "*")
			}
			h.ServeHTTP(w, r)
		})
	}
}

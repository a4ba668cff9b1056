package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS admits the admin console origins. Preflights are cached for five
// minutes.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", HeaderIdempotencyKey, HeaderRequestID},
		ExposedHeaders: []string{
			HeaderRequestID, "Retry-After", HeaderIdempotentReplay,
			HeaderRateLimit, HeaderRateLimitRemaining,
		},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

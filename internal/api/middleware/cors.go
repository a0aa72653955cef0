package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows browser clients from origins to call the connection API.
// Remediation links are opened by the client, so only the request id is exposed.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

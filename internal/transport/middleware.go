package transport

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// apiKeyMiddleware gates every route except /health behind the X-API-Key
// header. An empty configured key disables the check.
func apiKeyMiddleware(key string, next http.Handler) http.Handler {
	if key == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		supplied := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(key)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(errorResponse{Error: "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

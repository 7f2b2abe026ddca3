package middleware

import (
	"net/http"
	"os"
	"strings"
)

const (
	// allowedMethods covers every verb the booking and availability routes register
	allowedMethods  = "GET, POST, PUT, DELETE, OPTIONS"
	preflightMaxAge = "600"
)

// allowedHeaders are the request headers browsers may send cross-origin.
// The identity headers are the ones IdentityMiddleware reads.
var allowedHeaders = strings.Join([]string{"Content-Type", "Authorization", HeaderUserID, HeaderUserRole}, ", ")

// allowedOrigins reads ALLOWED_ORIGINS as a comma separated list. Unset means any origin.
func allowedOrigins() []string {
	raw := os.Getenv("ALLOWED_ORIGINS")
	if raw == "" {
		return []string{"*"}
	}
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// CORSMiddleware lets browser clients call the booking API and open event streams from allowed origins
func CORSMiddleware(next http.Handler) http.Handler {
	origins := allowedOrigins()
	wildcard := len(origins) > 0 && origins[0] == "*"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case origin == "":
		case wildcard:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		default:
			w.Header().Add("Vary", "Origin")
			for _, allowed := range origins {
				if allowed == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Max-Age", preflightMaxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

package middleware

import (
	"net/http"
	"strings"
)

// What browsers may send to the items API.
var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsHeaders = strings.Join([]string{"Content-Type", RequestIDHeader}, ", ")
)

const corsMaxAge = "600"

// CORS admits cross-origin requests from origins, compared case-insensitively.
// "*" admits any origin. Preflight requests are answered with 204 and never
// reach the items handlers.
func CORS(origins []string) Middleware {
	allowAny := false
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			allowAny = true
			continue
		}
		allowed[strings.ToLower(origin)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			header := w.Header()
			header.Add("Vary", "Origin")

			if origin != "" && (allowAny || allowed[strings.ToLower(origin)]) {
				header.Set("Access-Control-Allow-Origin", origin)
				header.Set("Access-Control-Expose-Headers", RequestIDHeader)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				header.Set("Access-Control-Allow-Methods", corsMethods)
				header.Set("Access-Control-Allow-Headers", corsHeaders)
				header.Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Options answers a plain OPTIONS request with the methods the API accepts.
func Options(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", corsMethods)
	w.WriteHeader(http.StatusNoContent)
}

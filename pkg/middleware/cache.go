package middleware

import "net/http"

// NoStore marks responses as uncacheable. Stock and cart contents change with
// every ledger mutation, so intermediaries must not serve stale copies.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

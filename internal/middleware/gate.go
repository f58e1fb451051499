package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"aetheris-web/internal/observability"
)

// Gate enforces the route table. It must run after Session.
func Gate(table *RouteTable) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, hasToken := GetSession(r.Context())
			decision := table.Authorize(hasToken, r.URL.Path)
			observability.GateDecisions.WithLabelValues(decision.String()).Inc()

			switch decision {
			case Redirect:
				http.Redirect(w, r, LoginRedirect(r.URL.Path), http.StatusTemporaryRedirect)
			case Deny:
				observability.FromContext(r.Context()).Debug("unauthenticated request denied",
					slog.String("path", r.URL.Path))
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

package middleware

import (
	"log/slog"
	"net/http"

	"aetheris-web/internal/observability"
	"aetheris-web/internal/security"
)

const (
	CSRFCookieName = "aetheris.csrf-token"
	CSRFHeader     = "X-CSRF-Token"
	CSRFFormField  = "csrfToken"
)

// CSRF enforces double-submit tokens on state-changing requests: the value
// of the CSRF cookie must be echoed back in a header or form field.
//
// Token sources (checked in order):
//   - Header: X-CSRF-Token
//   - Header: X-XSRF-Token (alternate)
//   - Form field: csrfToken
func CSRF(tm *security.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			var cookieValue string
			if c, err := r.Cookie(CSRFCookieName); err == nil {
				cookieValue = c.Value
			}
			submitted := extractCSRFToken(r)

			if err := tm.Verify(cookieValue, submitted); err != nil {
				reason := "invalid token"
				switch {
				case cookieValue == "":
					reason = "missing cookie"
				case submitted == "":
					reason = "missing token"
				}
				logCSRFFailure(r, reason)
				writeJSONError(w, http.StatusForbidden, "Forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod returns true if the HTTP method should not modify state.
func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

func extractCSRFToken(r *http.Request) string {
	if token := r.Header.Get(CSRFHeader); token != "" {
		return token
	}
	if token := r.Header.Get("X-XSRF-Token"); token != "" {
		return token
	}
	// Only parses the body for form content types.
	return r.FormValue(CSRFFormField)
}

func logCSRFFailure(r *http.Request, reason string) {
	observability.FromContext(r.Context()).Warn("CSRF validation failed",
		slog.String("reason", reason),
		slog.String("method", r.Method),
		slog.String("path", r.RequestURI),
		slog.String("remote_addr", r.RemoteAddr),
	)
}

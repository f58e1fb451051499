package middleware

import (
	"context"
	"net/http"

	"aetheris-web/internal/domain"
	"aetheris-web/internal/observability"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionReader materializes the session of a request.
type SessionReader interface {
	Read(ctx context.Context, w http.ResponseWriter, r *http.Request) (domain.Outcome, bool)
}

// Session reads the session once per request and stores the outcome in
// the request context. Excluded paths are passed through untouched.
func Session(reader SessionReader, table *RouteTable) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if table.Classify(r.URL.Path) == Excluded {
				next.ServeHTTP(w, r)
				return
			}

			out, ok := reader.Read(r.Context(), w, r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithSession(r.Context(), out)
			ctx = observability.WithUserID(ctx, out.LastKnown().ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSession returns the session outcome placed by Session. An errored
// outcome is still returned with ok set.
func GetSession(ctx context.Context) (domain.Outcome, bool) {
	out, ok := ctx.Value(sessionKey).(domain.Outcome)
	return out, ok
}

func WithSession(ctx context.Context, out domain.Outcome) context.Context {
	return context.WithValue(ctx, sessionKey, out)
}

// RequestLogging copies chi's request ID into the logging context.
func RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(observability.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

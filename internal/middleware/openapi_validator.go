package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"aetheris-web/internal/observability"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	// Enabled controls whether validation is active
	Enabled bool
	// SpecPath is the path to the OpenAPI specification file
	SpecPath string
	// PathPrefix limits validation to requests under it
	PathPrefix string
	// ValidateResponses also checks responses; mismatches are only logged
	ValidateResponses bool
}

// DefaultOpenAPIValidatorConfig validates the auth endpoints outside production.
func DefaultOpenAPIValidatorConfig(environment, specPath string) OpenAPIValidatorConfig {
	return OpenAPIValidatorConfig{
		Enabled:    environment != "production" && environment != "prod",
		SpecPath:   specPath,
		PathPrefix: "/api/auth",
	}
}

// LoadOpenAPIRouter loads and validates the document at specPath.
func LoadOpenAPIRouter(specPath string) (routers.Router, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, err
	}
	return gorillamux.NewRouter(doc)
}

// OpenAPIValidator creates a middleware that validates requests against an
// OpenAPI 3 document. A document that cannot be loaded disables validation
// instead of failing startup.
func OpenAPIValidator(config OpenAPIValidatorConfig) func(next http.Handler) http.Handler {
	noop := func(next http.Handler) http.Handler { return next }

	if !config.Enabled {
		observability.Info("OpenAPI validation disabled")
		return noop
	}

	router, err := LoadOpenAPIRouter(config.SpecPath)
	if err != nil {
		observability.Error("failed to load OpenAPI spec",
			slog.String("path", config.SpecPath),
			slog.String("error", err.Error()))
		return noop
	}

	observability.Info("OpenAPI validation enabled",
		slog.String("spec_path", config.SpecPath),
		slog.String("path_prefix", config.PathPrefix),
		slog.Bool("validate_responses", config.ValidateResponses))

	options := &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, config.PathPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			log := observability.FromContext(r.Context())

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				log.Warn("request path not found in OpenAPI spec",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				writeJSONError(w, http.StatusNotFound, "Not found")
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				log.Warn("request validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()))
				writeJSONError(w, http.StatusBadRequest, "Request validation failed")
				return
			}

			if !config.ValidateResponses {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			respInput := &openapi3filter.ResponseValidationInput{
				RequestValidationInput: input,
				Status:                 recorder.statusCode,
				Header:                 recorder.Header(),
				Body:                   io.NopCloser(bytes.NewReader(recorder.body)),
				Options:                options,
			}
			if err := openapi3filter.ValidateResponse(r.Context(), respInput); err != nil {
				log.Warn("response validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", recorder.statusCode),
					slog.String("error", err.Error()))
			}
		})
	}
}

// responseRecorder keeps a copy of the response for validation
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}

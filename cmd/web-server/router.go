package main

import (
	"net/http"

	"aetheris-web/internal/handler"
	"aetheris-web/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// publicPages maps public paths to the HTML file served for them.
var publicPages = map[string]string{
	"/":                "index.html",
	"/login":           "login.html",
	"/register":        "register.html",
	"/forgot-password": "forgot-password.html",
	"/reset-password":  "reset-password.html",
	"/about":           "about.html",
	"/contact":         "contact.html",
	"/privacy":         "privacy.html",
	"/terms":           "terms.html",
	"/pricing":         "pricing.html",
	"/features":        "features.html",
}

// dashboardRoots are the sections of the dashboard app. Each is served the
// app shell, including every path below it.
var dashboardRoots = []string{
	"/dashboard",
	"/customers",
	"/conversations",
	"/documents",
	"/integrations",
	"/organizations",
	"/agent",
}

type routerDeps struct {
	table    *middleware.RouteTable
	sessions middleware.SessionReader
	auth     *handler.AuthHandler
	pages    *handler.Pages
	csrf     func(http.Handler) http.Handler
	limiter  *middleware.RateLimiter
	openapi  middleware.OpenAPIValidatorConfig
	origins  []string
	ready    map[string]handler.Pinger
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(d.origins))
	r.Use(middleware.Session(d.sessions, d.table))
	r.Use(middleware.Gate(d.table))

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(d.ready))
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/static/*", d.pages.Static())

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.OpenAPIValidator(d.openapi))
		r.Use(d.csrf)

		r.Get("/csrf", d.auth.CSRF)
		r.Get("/session", d.auth.Session)
		r.Post("/logout", d.auth.Logout)

		r.Group(func(r chi.Router) {
			r.Use(d.limiter.Middleware())
			r.Post("/login", d.auth.Login)
			r.Post("/register", d.auth.Register)
			r.Post("/forgot-password", d.auth.ForgotPassword)
			r.Post("/reset-password", d.auth.ResetPassword)
		})
	})

	for path, file := range publicPages {
		r.Get(path, d.pages.Page(file))
	}

	shell := d.pages.Dashboard()
	for _, root := range dashboardRoots {
		r.Get(root, shell)
		r.Get(root+"/*", shell)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	return r
}

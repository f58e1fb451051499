package handler

import (
	"net/http"
	"os"
	"path/filepath"
)

// DashboardShell is the single-page app document served for every
// dashboard route.
const DashboardShell = "app.html"

// Pages serves the static HTML pages of the front-end from a directory.
type Pages struct {
	dir string
}

func NewPages(dir string) *Pages {
	return &Pages{dir: dir}
}

// Page serves dir/name. A missing file is a 404.
func (p *Pages) Page(name string) http.HandlerFunc {
	path := filepath.Join(p.dir, name)
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(path); err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.ServeFile(w, r, path)
	}
}

// Dashboard serves the app shell. The shell reads the session from
// /api/auth/session, so responses must not be cached.
func (p *Pages) Dashboard() http.HandlerFunc {
	page := p.Page(DashboardShell)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		page(w, r)
	}
}

// Static serves files under dir/static at /static/.
func (p *Pages) Static() http.Handler {
	return http.StripPrefix("/static/", http.FileServer(http.Dir(filepath.Join(p.dir, "static"))))
}

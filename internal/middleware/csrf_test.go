package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"aetheris-web/internal/security"
	"aetheris-web/internal/testutil"
)

func csrfHandler() http.Handler {
	return CSRF(security.NewTokenManager())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCSRF_SkipsSafeMethod(t *testing.T) {
	handler := csrfHandler()

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/api/auth/session", nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("expected %d, got %d", http.StatusOK, w.Code)
			}
		})
	}
}

func TestCSRF_RejectsUnsafeMethod(t *testing.T) {
	const token = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	tests := []struct {
		name   string
		cookie string
		header string
		want   int
	}{
		{"missing_cookie_and_header", "", "", http.StatusForbidden},
		{"missing_cookie", "", token, http.StatusForbidden},
		{"missing_header", token, "", http.StatusForbidden},
		{"mismatch", token, strings.Repeat("f", 64), http.StatusForbidden},
		{"match", token, token, http.StatusOK},
	}

	handler := csrfHandler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/signout", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(CSRFHeader, tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
			if tt.want == http.StatusForbidden && !strings.Contains(w.Body.String(), "Forbidden") {
				t.Errorf("expected Forbidden body, got %q", w.Body.String())
			}
		})
	}
}

func TestCSRF_AcceptsAlternateSources(t *testing.T) {
	tm := security.NewTokenManager()
	token, err := tm.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	handler := csrfHandler()

	t.Run("xsrf_header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signout", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})
		req.Header.Set("X-XSRF-Token", token)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected %d, got %d", http.StatusOK, w.Code)
		}
	})

	t.Run("form_field", func(t *testing.T) {
		form := url.Values{CSRFFormField: {token}, "email": {"a@b.co"}}
		req := httptest.NewRequest(http.MethodPost, "/api/auth/callback/credentials", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected %d, got %d", http.StatusOK, w.Code)
		}
	})
}

func TestCSRF_AcceptsIssuedToken(t *testing.T) {
	token, err := security.NewTokenManager().Generate()
	if err != nil {
		t.Fatal(err)
	}
	req := testutil.WithCSRF(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), token)
	w := httptest.NewRecorder()

	csrfHandler().ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
}

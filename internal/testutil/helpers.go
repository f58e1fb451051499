package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

// Value assertions, for tests that stay off testify.

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
}

// AssertNotNil also catches typed nils held in an interface.
func AssertNotNil(t *testing.T, v any) {
	t.Helper()
	if v == nil {
		t.Fatal("expected a value, got nil")
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		if rv.IsNil() {
			t.Fatalf("expected a value, got nil %T", v)
		}
	}
}

func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Error(msg)
	}
}

func AssertFalse(t *testing.T, condition bool, msg string) {
	t.Helper()
	if condition {
		t.Error(msg)
	}
}

func AssertContains(t *testing.T, s, substring string) {
	t.Helper()
	if !strings.Contains(s, substring) {
		t.Errorf("%q does not contain %q", s, substring)
	}
}

func AssertLen[T any](t *testing.T, slice []T, expected int) {
	t.Helper()
	if len(slice) != expected {
		t.Errorf("got %d elements, want %d", len(slice), expected)
	}
}

// Response assertions.

func AssertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("status %d, want %d; body: %s", w.Code, expected, w.Body.String())
	}
}

// AssertJSONResponse checks the status and decodes the body as an object.
// The body is consumed.
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) map[string]any {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)
	return DecodeJSON[map[string]any](t, w)
}

// AssertJSONContains compares one top-level field. Numbers decode as float64.
// The body is left intact.
func AssertJSONContains(t *testing.T, w *httptest.ResponseRecorder, key string, expected any) {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not a JSON object: %v; body: %s", err, w.Body.String())
	}
	got, ok := body[key]
	if !ok {
		t.Errorf("response has no %q field; body: %s", key, w.Body.String())
		return
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("field %q = %v (%T), want %v (%T)", key, got, got, expected, expected)
	}
}

// AssertJSONError checks the status and the {"error": ...} message.
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedMsg string) {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)
	AssertJSONContains(t, w, "error", expectedMsg)
}

func AssertHeader(t *testing.T, w *httptest.ResponseRecorder, key, expected string) {
	t.Helper()
	if got := w.Header().Get(key); got != expected {
		t.Errorf("header %s = %q, want %q", key, got, expected)
	}
}

func AssertHeaderContains(t *testing.T, w *httptest.ResponseRecorder, key, substring string) {
	t.Helper()
	if got := w.Header().Get(key); !strings.Contains(got, substring) {
		t.Errorf("header %s = %q, want it to contain %q", key, got, substring)
	}
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// AssertCookie returns the cookie set under name, failing when there is none.
func AssertCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	c := findCookie(w, name)
	if c == nil {
		t.Fatalf("no %s cookie was set", name)
	}
	return c
}

// AssertNoCookie fails when name is set to a live value. Clearing the
// cookie is allowed.
func AssertNoCookie(t *testing.T, w *httptest.ResponseRecorder, name string) {
	t.Helper()
	if c := findCookie(w, name); c != nil && c.Value != "" && c.MaxAge >= 0 {
		t.Errorf("unexpected %s cookie with value %q", name, c.Value)
	}
}

// Requests.

func NewJSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		r = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func NewFormRequest(t *testing.T, method, target string, form url.Values) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func NewRequestWithCookie(t *testing.T, method, target, cookieName, cookieValue string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cookieValue})
	return req
}

// WithCSRF attaches a double-submit token as both cookie and header.
func WithCSRF(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: "aetheris.csrf-token", Value: token})
	req.Header.Set("X-CSRF-Token", token)
	return req
}

func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v; body: %s", err, w.Body.String())
	}
	return out
}

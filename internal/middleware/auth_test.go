package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware_WithValidToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetOperatorIDFromContext(r.Context())
		if !ok {
			t.Fatalf("operator id not in context")
		}
		if id != 42 {
			t.Fatalf("operator id from context = %d, want 42", id)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+m.Issue(42))

	handler := m.Middleware(next)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_WithoutToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	handler := m.Middleware(next)
	handler.ServeHTTP(w, r)

	res := w.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_RejectsForeignSignature(t *testing.T) {
	issuer := NewAuthMiddleware("other-secret")
	m := NewAuthMiddleware("test-secret")

	tests := []struct {
		name   string
		header string
	}{
		{name: "foreign secret", header: "Bearer " + issuer.Issue(42)},
		{name: "tampered id", header: "Bearer 43" + m.Issue(42)[2:]},
		{name: "no signature", header: "Bearer 42"},
		{name: "no bearer prefix", header: m.Issue(42)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			r.Header.Set("Authorization", tt.header)

			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestNewAuthMiddleware_EmptySecretStillSigns(t *testing.T) {
	m := NewAuthMiddleware("")

	id, ok := m.parseToken(m.Issue(7))
	if !ok || id != 7 {
		t.Fatalf("parseToken = %d, %v; want 7, true", id, ok)
	}

	if _, ok := NewAuthMiddleware("").parseToken(m.Issue(7)); ok {
		t.Fatalf("random keys must differ between instances")
	}
}

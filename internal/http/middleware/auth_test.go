package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wolfman30/medpractice-booking/internal/auth"
)

type stubAuthenticator struct {
	principal auth.Principal
	err       error
	gotToken  string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (auth.Principal, error) {
	s.gotToken = token
	return s.principal, s.err
}

func serve(mw func(http.Handler) http.Handler, req *http.Request, next http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	return rec
}

func TestAuthenticateMissingHeader(t *testing.T) {
	mw := Authenticate(&stubAuthenticator{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/reservations", nil)

	rec := serve(mw, req, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected json error body")
	}
}

func TestAuthenticateInvalidToken(t *testing.T) {
	for _, err := range []error{auth.ErrInvalidToken, auth.ErrSessionRevoked, auth.ErrUnknownUser} {
		mw := Authenticate(&stubAuthenticator{err: err}, nil)
		req := httptest.NewRequest(http.MethodGet, "/reservations", nil)
		req.Header.Set("Authorization", "Bearer abc")

		rec := serve(mw, req, func(w http.ResponseWriter, r *http.Request) {
			t.Fatalf("handler must not run")
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%v: expected status %d, got %d", err, http.StatusUnauthorized, rec.Code)
		}
	}
}

func TestAuthenticateBackendFailure(t *testing.T) {
	mw := Authenticate(&stubAuthenticator{err: errors.New("redis down")}, nil)
	req := httptest.NewRequest(http.MethodGet, "/reservations", nil)
	req.Header.Set("Authorization", "Bearer abc")

	rec := serve(mw, req, func(w http.ResponseWriter, r *http.Request) {})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestAuthenticateStoresPrincipal(t *testing.T) {
	stub := &stubAuthenticator{principal: auth.Principal{UserID: "u-1", Role: auth.RoleDoctor}}
	mw := Authenticate(stub, nil)
	req := httptest.NewRequest(http.MethodGet, "/reservations", nil)
	req.Header.Set("Authorization", "Bearer tok-123")

	called := false
	rec := serve(mw, req, func(w http.ResponseWriter, r *http.Request) {
		called = true
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok || p.UserID != "u-1" {
			t.Fatalf("expected principal in context, got %+v", p)
		}
		w.WriteHeader(http.StatusOK)
	})

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if stub.gotToken != "tok-123" {
		t.Fatalf("expected bearer token to be forwarded, got %q", stub.gotToken)
	}
}

func TestRequireRoles(t *testing.T) {
	tests := []struct {
		name      string
		principal *auth.Principal
		want      int
	}{
		{name: "no principal", want: http.StatusUnauthorized},
		{name: "wrong role", principal: &auth.Principal{UserID: "p", Role: auth.RolePatient}, want: http.StatusForbidden},
		{name: "doctor", principal: &auth.Principal{UserID: "d", Role: auth.RoleDoctor}, want: http.StatusOK},
		{name: "admin", principal: &auth.Principal{UserID: "a", Role: auth.RoleAdmin}, want: http.StatusOK},
	}
	mw := RequireRoles(auth.RoleDoctor, auth.RoleAdmin)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/doctor/availability", nil)
			if tt.principal != nil {
				req = req.WithContext(auth.WithPrincipal(req.Context(), *tt.principal))
			}
			rec := serve(mw, req, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

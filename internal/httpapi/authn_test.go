package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"archmarket.io/internal/identity"
)

func signRaw(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestWithAuthStoresPrincipal(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(identity.RoleArchitect, "u-arch", "a-1")

	var got identity.Principal
	h := env.api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = principal(r)
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/anything", nil)
	req.Header.Set("Authorization", "bearer "+tok)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got.UserID() != "u-arch" || got.Role() != identity.RoleArchitect || got.RoleEntityID() != "a-1" {
		t.Fatalf("unexpected principal %+v", got)
	}
}

func TestWithAuthRejectsMissingEntityID(t *testing.T) {
	env := newTestEnv(t)
	tok := signRaw(t, jwt.MapClaims{
		"userId": "u-1", "role": "BUYER", "iss": "archmarket",
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Hour).Unix(),
	})
	called := false
	h := env.api.withAuth(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	req := httptest.NewRequest(http.MethodGet, "/v1/anything", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if called || rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without calling next, got %d called=%v", rr.Code, called)
	}
}

func TestWithAuthWithoutResolverFailsClosed(t *testing.T) {
	a := New(Deps{})
	called := false
	h := a.withAuth(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/anything", nil))
	if called || rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestPaymentConfirmationRequiresServiceCredential(t *testing.T) {
	a := New(Deps{})
	defer a.Close()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/internal/modification-requests/mr-1/payment-confirmations", nil)
	a.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a payment resolver, got %d", rr.Code)
	}
}

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"samplecore/pkg/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	p := domain.Principal{UserID: "u-1", DisplayName: "K. Sato", Role: domain.RoleAnalyst, LabIDs: []string{"aomori-main"}}
	tok, err := SignToken(testSecret, p)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	got, err := principalFromHeader("Bearer "+tok, testSecret)
	if err != nil {
		t.Fatalf("principalFromHeader: %v", err)
	}
	if got.UserID != p.UserID || got.Role != p.Role || len(got.LabIDs) != 1 || got.LabIDs[0] != "aomori-main" {
		t.Fatalf("principal mismatch: %+v", got)
	}
}

func TestTokenRejections(t *testing.T) {
	good, _ := SignToken(testSecret, domain.Principal{UserID: "u-1", Role: domain.RoleAnalyst})

	if _, err := principalFromHeader("", testSecret); err == nil {
		t.Fatalf("missing header should fail")
	}
	if _, err := principalFromHeader("Basic abc", testSecret); err == nil {
		t.Fatalf("non-bearer scheme should fail")
	}
	if _, err := principalFromHeader("Bearer "+good, []byte("other-secret")); err == nil {
		t.Fatalf("wrong secret should fail")
	}

	badRole, _ := SignToken(testSecret, domain.Principal{UserID: "u-1", Role: domain.Role("janitor")})
	if _, err := principalFromHeader("Bearer "+badRole, testSecret); err == nil {
		t.Fatalf("unknown role should fail")
	}

	noSubject, _ := SignToken(testSecret, domain.Principal{Role: domain.RoleAnalyst})
	if _, err := principalFromHeader("Bearer "+noSubject, testSecret); err == nil {
		t.Fatalf("missing subject should fail")
	}
}

func TestAuthenticatorSkipsPrefixes(t *testing.T) {
	var sawPrincipal bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawPrincipal = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Authenticator(testSecret, "/healthz")(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || sawPrincipal {
		t.Fatalf("skip path: code %d principal %v", rec.Code, sawPrincipal)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/queues", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated api path: code %d, want 401", rec.Code)
	}

	tok, _ := SignToken(testSecret, domain.Principal{UserID: "u-1", Role: domain.RoleAnalyst})
	req := httptest.NewRequest(http.MethodGet, "/api/queues", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !sawPrincipal {
		t.Fatalf("authenticated path: code %d principal %v", rec.Code, sawPrincipal)
	}
}

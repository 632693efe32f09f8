package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"samplecore/pkg/domain"
)

type contextKey string

const principalKey contextKey = "principal"

// principalClaims is the expected HS256 token payload. The identity provider
// is external; this layer only verifies the signature and lifts claims into
// a domain.Principal.
type principalClaims struct {
	jwt.RegisteredClaims
	DisplayName string   `json:"name"`
	Role        string   `json:"role"`
	LabIDs      []string `json:"labs"`
}

var knownRoles = map[domain.Role]struct{}{
	domain.RoleCollector:        {},
	domain.RoleAnalyst:          {},
	domain.RoleTechnicalLead:    {},
	domain.RoleAssociationAdmin: {},
	domain.RoleSuperAdmin:       {},
}

// Authenticator verifies the Bearer token on every request and stores the
// resulting principal in the request context. Paths in skipPrefixes pass
// through unauthenticated.
func Authenticator(secret []byte, skipPrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range skipPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			p, err := principalFromHeader(r.Header.Get("Authorization"), secret)
			if err != nil {
				writeErrorCode(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
		})
	}
}

func principalFromHeader(header string, secret []byte) (domain.Principal, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return domain.Principal{}, fmt.Errorf("missing bearer token")
	}
	raw := strings.TrimSpace(header[len(prefix):])
	claims := &principalClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return domain.Principal{}, fmt.Errorf("invalid token")
	}
	role := domain.Role(claims.Role)
	if _, ok := knownRoles[role]; !ok {
		return domain.Principal{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	if claims.Subject == "" {
		return domain.Principal{}, fmt.Errorf("token missing subject")
	}
	return domain.Principal{
		UserID:      claims.Subject,
		DisplayName: claims.DisplayName,
		Role:        role,
		LabIDs:      claims.LabIDs,
	}, nil
}

// PrincipalFrom returns the authenticated principal placed in the context by
// Authenticator.
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(domain.Principal)
	return p, ok
}

// SignToken issues an HS256 token for the given principal. Used by tests and
// local tooling; production tokens come from the identity provider.
func SignToken(secret []byte, p domain.Principal) (string, error) {
	claims := principalClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: p.UserID},
		DisplayName:      p.DisplayName,
		Role:             string(p.Role),
		LabIDs:           p.LabIDs,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

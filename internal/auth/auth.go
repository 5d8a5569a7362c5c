// Package auth issues and verifies per-team bearer keys.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in a key.
const (
	RoleTeam     = "team"
	RoleObserver = "observer"
	RoleReferee  = "referee"
)

var (
	ErrNoToken   = errors.New("missing bearer token")
	ErrForbidden = errors.New("forbidden")
)

// Claims identify the key holder. Team is only meaningful for RoleTeam.
type Claims struct {
	Team int    `json:"team"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies HS256 keys.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// New creates an Authenticator. The secret must not be empty.
func New(secret string) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("HS256 requires secret key")
	}
	return &Authenticator{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a key for team with role. A zero ttl never expires.
func (a *Authenticator) Issue(team int, role string, ttl time.Duration) (string, error) {
	switch role {
	case RoleTeam, RoleObserver, RoleReferee:
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := a.now()
	claims := Claims{
		Team: team,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  fmt.Sprintf("team-%d", team),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses and validates a key.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNoToken
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return &claims, nil
}

type ctxKey struct{}

// NewContext stores claims in ctx.
func NewContext(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the claims stored by the middleware, if any.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}

// AllowSubmit reports whether the caller may submit on behalf of team.
// Requests without claims are allowed; that is the unauthenticated mode. A
// negative team stands for an event with no source, which only referees may
// submit.
func AllowSubmit(ctx context.Context, team int) bool {
	c, ok := FromContext(ctx)
	if !ok {
		return true
	}
	switch c.Role {
	case RoleReferee:
		return true
	case RoleTeam:
		return team >= 0 && c.Team == team
	default:
		return false
	}
}

func bearer(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", ErrNoToken
	}
	if !strings.HasPrefix(h, "Bearer ") {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	return strings.TrimPrefix(h, "Bearer "), nil
}

// Middleware rejects requests without a valid key with 401 and stores the
// claims in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearer(r)
		if err != nil {
			http.Error(w, "401", http.StatusUnauthorized)
			return
		}
		claims, err := a.Verify(token)
		if err != nil {
			http.Error(w, "401", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), claims)))
	})
}

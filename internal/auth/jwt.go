// Package auth verifies bearer tokens and carries the acting user through
// request contexts.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/orgdesk/hrops/internal/apperrors"
)

// Role tiers. Role is the authorization tier; the recipient key is a separate
// routing identity and never substitutes for it.
const (
	RoleEmployee   = "employee"
	RoleHR         = "hr"
	RoleChairman   = "chairman"
	RoleCEO        = "ceo"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

var hrTier = map[string]bool{
	RoleHR:         true,
	RoleChairman:   true,
	RoleCEO:        true,
	RoleAdmin:      true,
	RoleSuperadmin: true,
}

// IsHRTier reports whether the role belongs to the administrative tier that
// may broadcast announcements and manage employee records.
func IsHRTier(role string) bool {
	return hrTier[role]
}

// Actor is the authenticated caller.
type Actor struct {
	UID          string
	Email        string
	Role         string
	RecipientKey string // empty when the user is not bound to a recipient
}

// Claims is the JWT payload.
type Claims struct {
	jwt.RegisteredClaims
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
	RecipientKey string `json:"recipient_key,omitempty"`
}

// GenerateToken signs a token for a user. Used by tests and tooling; token
// issuance in production belongs to the identity provider.
func GenerateToken(actor Actor, secret []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		Email:        actor.Email,
		Role:         actor.Role,
		RecipientKey: actor.RecipientKey,
	})
	return token.SignedString(secret)
}

// ParseToken verifies a signed token and returns the actor it describes.
func ParseToken(tokenString string, secret []byte) (*Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "invalid token")
	}
	if !token.Valid || claims.Subject == "" {
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "invalid token")
	}

	role := claims.Role
	if role == "" {
		role = RoleEmployee
	}

	return &Actor{
		UID:          claims.Subject,
		Email:        claims.Email,
		Role:         role,
		RecipientKey: claims.RecipientKey,
	}, nil
}

// FromRequest extracts and verifies the bearer token of an HTTP request.
func FromRequest(r *http.Request, secret []byte) (*Actor, error) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "missing bearer token")
	}
	return ParseToken(strings.TrimSpace(h[len(prefix):]), secret)
}

type contextKey struct{}

// WithActor stores the actor in a context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFrom returns the actor previously stored by the auth middleware.
func ActorFrom(ctx context.Context) (*Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(*Actor)
	return a, ok
}

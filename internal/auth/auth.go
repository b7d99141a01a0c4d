// Package auth identifies the owner of each request from an HS256 bearer
// token. The token's subject is the owner id every store query filters on.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/dharsanguruparan/fieldmemo/internal/apperr"
)

type ctxKey struct{}

// Claims are the access token claims we rely on.
type Claims struct {
	gojwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Authenticator issues and verifies access tokens.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// New returns an Authenticator. An empty issuer accepts any issuer.
func New(secret, issuer string) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue signs a token for ownerID valid for ttl.
func (a *Authenticator) Issue(ownerID string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := &Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   ownerID,
			Issuer:    a.issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
		Role: "authenticated",
	}
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and returns its claims.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, gojwt.WithIssuer(a.issuer))
	}
	claims := &Claims{}
	parsed, err := gojwt.ParseWithClaims(token, claims, func(*gojwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// owner id in the request context. fail writes the rejection.
func (a *Authenticator) Middleware(fail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				fail(w, r, apperr.Unauthorized("missing authorization header"))
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			if token == header || token == "" {
				fail(w, r, apperr.Unauthorized("expected 'Bearer <token>'"))
				return
			}
			claims, err := a.Verify(token)
			if err != nil {
				fail(w, r, apperr.New(apperr.KindUnauthorized, "invalid or expired token", err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), claims.Subject)))
		})
	}
}

// WithOwner returns a context carrying ownerID.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, ownerID)
}

// OwnerID returns the authenticated owner, if any.
func OwnerID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

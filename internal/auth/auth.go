// Package auth resolves the authenticated subject of a request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hackgods/clinic-booking-engine/internal/identifier"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// DevSubjectHeader is honored only by the dev authenticator.
const DevSubjectHeader = "X-Subject-ID"

type ctxKey struct{}

// WithSubject stores the canonical subject id in ctx.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ctxKey{}, subject)
}

// SubjectFrom returns the subject stored by WithSubject.
func SubjectFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ctxKey{}).(string)
	return s, ok && s != ""
}

// Authenticator yields the caller's canonical identifier or
// ErrUnauthenticated.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// JWTAuthenticator verifies HS256 bearer tokens and uses the sub claim.
type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrUnauthenticated
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" || len(a.secret) == 0 {
		return "", ErrUnauthenticated
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	return canonicalSubject(claims.Subject)
}

// DevAuthenticator trusts DevSubjectHeader and otherwise defers to next.
type DevAuthenticator struct {
	next Authenticator
}

func NewDevAuthenticator(next Authenticator) *DevAuthenticator {
	return &DevAuthenticator{next: next}
}

func (a *DevAuthenticator) Authenticate(r *http.Request) (string, error) {
	if s := r.Header.Get(DevSubjectHeader); s != "" {
		return canonicalSubject(s)
	}
	if a.next == nil {
		return "", ErrUnauthenticated
	}
	return a.next.Authenticate(r)
}

// canonicalSubject accepts only subjects that normalize to a stable id. An
// opaque subject would get a new random id on every request.
func canonicalSubject(sub string) (string, error) {
	id := identifier.Parse(sub)
	switch id.Kind() {
	case identifier.KindCanonical, identifier.KindLegacyNumeric:
		return id.Canonical(), nil
	default:
		return "", ErrUnauthenticated
	}
}

// IssueToken signs a token for subject. Used by the load simulator and
// tests.
func IssueToken(secret, subject string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = subject
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking-engine/internal/identifier"
)

const secret = "test-secret"

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
}

func requestWith(header, value string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		r.Header.Set(header, value)
	}
	return r
}

func TestJWTAuthenticator(t *testing.T) {
	a := NewJWTAuthenticator(secret)
	sub := "3f2504e0-4f89-41d3-9a0c-0305e82c3301"

	t.Run("valid token", func(t *testing.T) {
		token, err := IssueToken(secret, sub, validClaims())
		require.NoError(t, err)

		got, err := a.Authenticate(requestWith("Authorization", "Bearer "+token))

		require.NoError(t, err)
		assert.Equal(t, sub, got)
	})

	t.Run("legacy numeric subject is canonicalized", func(t *testing.T) {
		token, err := IssueToken(secret, "42", validClaims())
		require.NoError(t, err)

		got, err := a.Authenticate(requestWith("Authorization", "Bearer "+token))

		require.NoError(t, err)
		assert.Equal(t, identifier.EnsureCanonical("42"), got)
	})

	rejected := map[string]func() *http.Request{
		"no header": func() *http.Request { return requestWith("", "") },
		"not bearer": func() *http.Request {
			return requestWith("Authorization", "Basic abc")
		},
		"wrong secret": func() *http.Request {
			token, _ := IssueToken("other", sub, validClaims())
			return requestWith("Authorization", "Bearer "+token)
		},
		"expired": func() *http.Request {
			token, _ := IssueToken(secret, sub, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))})
			return requestWith("Authorization", "Bearer "+token)
		},
		"no expiry": func() *http.Request {
			token, _ := IssueToken(secret, sub, jwt.RegisteredClaims{})
			return requestWith("Authorization", "Bearer "+token)
		},
		"opaque subject": func() *http.Request {
			token, _ := IssueToken(secret, "user@example.com", validClaims())
			return requestWith("Authorization", "Bearer "+token)
		},
		"empty subject": func() *http.Request {
			token, _ := IssueToken(secret, "", validClaims())
			return requestWith("Authorization", "Bearer "+token)
		},
	}
	for name, build := range rejected {
		t.Run(name, func(t *testing.T) {
			_, err := a.Authenticate(build())
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestDevAuthenticator(t *testing.T) {
	a := NewDevAuthenticator(NewJWTAuthenticator(secret))

	got, err := a.Authenticate(requestWith(DevSubjectHeader, "7"))
	require.NoError(t, err)
	assert.Equal(t, identifier.EnsureCanonical("7"), got)

	_, err = a.Authenticate(requestWith("", ""))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSubjectContext(t *testing.T) {
	_, ok := SubjectFrom(context.Background())
	assert.False(t, ok)

	s, ok := SubjectFrom(WithSubject(context.Background(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", s)
}

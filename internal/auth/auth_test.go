package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

type fakeDirectory struct {
	byEmail map[string]string
}

func (d *fakeDirectory) UserIDByEmail(_ context.Context, email string) (string, error) {
	id, ok := d.byEmail[email]
	if !ok {
		return "", errors.New("no such user")
	}
	return id, nil
}

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func validClaims(sub, email string) Claims {
	return Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestCredentialPrecedence(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{
			name: "explicit auth field wins over everything",
			setup: func(r *http.Request) {
				q := r.URL.Query()
				q.Set("auth", "from-auth")
				q.Set("token", "from-query")
				r.URL.RawQuery = q.Encode()
				r.Header.Set("Authorization", "Bearer from-header")
				r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
			},
			want: "from-auth",
		},
		{
			name: "bearer header beats query and cookie",
			setup: func(r *http.Request) {
				q := r.URL.Query()
				q.Set("token", "from-query")
				r.URL.RawQuery = q.Encode()
				r.Header.Set("Authorization", "Bearer from-header")
				r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
			},
			want: "from-header",
		},
		{
			name: "query parameter beats cookie",
			setup: func(r *http.Request) {
				q := r.URL.Query()
				q.Set("token", "from-query")
				r.URL.RawQuery = q.Encode()
				r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
			},
			want: "from-query",
		},
		{
			name: "cookie as last resort",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
			},
			want: "from-cookie",
		},
		{
			name:  "nothing present",
			setup: func(r *http.Request) {},
			want:  "",
		},
		{
			name: "malformed authorization header is ignored",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Basic abc123")
				r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
			},
			want: "from-cookie",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.setup(r)
			if got := CredentialFromRequest(r); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestValidateSubjectID(t *testing.T) {
	a := New(testSecret, nil)
	const userID = "7b8a1fd0-3f1e-4a7e-9a41-6a2b9cf3d511"

	tok := signToken(t, validClaims(userID, ""))
	got, err := a.Validate(context.Background(), tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != userID {
		t.Errorf("expected %q, got %q", userID, got)
	}
}

func TestValidateEmailFallback(t *testing.T) {
	dir := &fakeDirectory{byEmail: map[string]string{
		"ana@example.com": "9d2c6c51-1111-4e7e-9a41-000000000001",
	}}
	a := New(testSecret, dir)

	// Subject is not a storage-compatible id, so the email claim resolves it.
	tok := signToken(t, validClaims("legacy-user-42", "ana@example.com"))
	got, err := a.Validate(context.Background(), tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "9d2c6c51-1111-4e7e-9a41-000000000001" {
		t.Errorf("unexpected id: %q", got)
	}
}

func TestValidateFailures(t *testing.T) {
	dir := &fakeDirectory{byEmail: map[string]string{}}
	a := New(testSecret, dir)

	expired := validClaims("", "ana@example.com")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongKey := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("", "a@b.c"))
	wrongSigned, err := wrongKey.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage token", "not.a.jwt"},
		{"expired token", signToken(t, expired)},
		{"wrong signature", wrongSigned},
		{"failed email lookup", signToken(t, validClaims("legacy", "missing@example.com"))},
		{"no identity claims", signToken(t, validClaims("", ""))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Validate(context.Background(), tt.token)
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestAuthenticateRejectsMissingCredential(t *testing.T) {
	a := New(testSecret, nil)
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if _, err := a.Authenticate(context.Background(), r); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

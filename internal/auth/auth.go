// Package auth validates the credential presented during the WebSocket
// handshake and binds a storage-compatible user id to the connection. A
// failed credential rejects the upgrade with 401 before any event is read;
// authentication errors never travel over the socket.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName is the cookie consulted as the last credential source.
const CookieName = "token"

// ErrUnauthorized is returned for any credential failure: missing token, bad
// signature, expired claims, or a subject that cannot be resolved to a user.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Claims is the accepted token payload. Subject normally carries the user id;
// Email is the fallback identity for tokens minted before ids were stable.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserDirectory resolves an email claim to a user id. Implemented by the
// user store; only consulted when the subject claim is not itself an id.
type UserDirectory interface {
	UserIDByEmail(ctx context.Context, email string) (string, error)
}

// Authenticator validates HS256-signed tokens against a shared secret.
type Authenticator struct {
	secret []byte
	users  UserDirectory
}

// New creates an Authenticator with the given signing secret and directory.
func New(secret []byte, users UserDirectory) *Authenticator {
	return &Authenticator{secret: secret, users: users}
}

// CredentialFromRequest extracts the raw token from the handshake request.
// Precedence: explicit "auth" query field, bearer Authorization header,
// "token" query parameter, "token" cookie. Returns "" when none is present.
func CredentialFromRequest(r *http.Request) string {
	if tok := r.URL.Query().Get("auth"); tok != "" {
		return tok
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// Authenticate validates the request's credential and returns the user id to
// bind to the connection. Every failure path collapses into ErrUnauthorized;
// the cause is wrapped for logs, never for the client.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (string, error) {
	tok := CredentialFromRequest(r)
	if tok == "" {
		return "", fmt.Errorf("%w: no credential", ErrUnauthorized)
	}
	return a.Validate(ctx, tok)
}

// Validate checks the token's signature and expiry and resolves the bound
// user id, falling back to the email claim when the subject is not a
// storage-compatible identifier.
func (a *Authenticator) Validate(ctx context.Context, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: invalid claims", ErrUnauthorized)
	}

	// Subject is the primary identity when it is a well-formed user id.
	if claims.Subject != "" {
		if _, err := uuid.Parse(claims.Subject); err == nil {
			return claims.Subject, nil
		}
	}

	// Fall back to the email claim resolved through the user directory.
	if claims.Email == "" {
		return "", fmt.Errorf("%w: no resolvable identity in claims", ErrUnauthorized)
	}
	if a.users == nil {
		return "", fmt.Errorf("%w: email fallback unavailable", ErrUnauthorized)
	}
	id, err := a.users.UserIDByEmail(ctx, claims.Email)
	if err != nil {
		return "", fmt.Errorf("%w: email lookup: %v", ErrUnauthorized, err)
	}
	return id, nil
}

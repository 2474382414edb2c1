package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned for a missing or invalid bearer token.
var ErrUnauthenticated = errors.New("missing or invalid token")

// Identity is the caller as asserted by the identity provider.
type Identity struct {
	UserID   string
	Username string
}

// Authenticator verifies HS256 tokens issued by the identity provider.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthenticator creates a verifier. Empty issuer or audience are not checked.
func NewAuthenticator(secret, issuer, audience string) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &Authenticator{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

// Verify parses token and returns the caller. The subject claim is the user id.
func (a *Authenticator) Verify(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	_, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	id := Identity{UserID: sub}
	for _, key := range []string{"preferred_username", "username", "email"} {
		if v, ok := claims[key].(string); ok && v != "" {
			id.Username = v
			break
		}
	}
	return id, nil
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter browsers need for websockets.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("access_token")
}

type ctxKey int

const (
	userIDKey ctxKey = iota
	requestIDKey
)

// UserID returns the authenticated user id stored by the auth middleware.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func withRequestIDValue(r *http.Request, id string) context.Context {
	return context.WithValue(r.Context(), requestIDKey, id)
}

// RequestID returns the id assigned by the request id middleware.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

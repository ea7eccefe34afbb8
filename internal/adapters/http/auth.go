package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/doc-summarizer/internal/core/domain"
)

// Claims carries the caller identity in "sub" and the role in "role".
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

type principalContextKey struct{}

func principalFromContext(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(domain.Principal)
	return principal, ok
}

// Authenticator validates HS256 bearer tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// SignToken issues a token for userID. Used by tooling and tests.
func SignToken(secret, userID string, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(role),
	})
	return token.SignedString([]byte(secret))
}

func (a *Authenticator) Principal(headerValue string) (domain.Principal, error) {
	if len(a.secret) == 0 {
		return domain.Principal{}, domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("jwt secret is not configured"))
	}
	tokenString, ok := bearerToken(headerValue)
	if !ok {
		return domain.Principal{}, domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("missing bearer token"))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return domain.Principal{}, domain.WrapError(domain.ErrUnauthorized, "authenticate", err)
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return domain.Principal{}, domain.WrapError(domain.ErrUnauthorized, "authenticate", fmt.Errorf("invalid token claims"))
	}

	role := domain.RoleUser
	if domain.Role(claims.Role) == domain.RoleAdmin {
		role = domain.RoleAdmin
	}
	return domain.Principal{UserID: claims.Subject, Role: role}, nil
}

func (a *Authenticator) Middleware(onError func(http.ResponseWriter, *http.Request, error), next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.Principal(r.Header.Get("Authorization"))
		if err != nil {
			onError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(headerValue string) (string, bool) {
	headerValue = strings.TrimSpace(headerValue)
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return token, token != ""
}

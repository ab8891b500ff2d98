package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/omnipdfs/relay/internal/ierr"
)

const Audience = "omnipdfs"

type Claims struct {
	jwt.RegisteredClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserId   string
	UserName string
	IsAdmin  bool
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*Identity)
	return identity, ok
}

type Authenticator struct {
	secret    []byte
	apiKeys   []string
	jwtParser *jwt.Parser
}

func NewAuthenticator(secret string, apiKeys []string) *Authenticator {
	jwtParser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithAudience(Audience),
	)

	return &Authenticator{
		secret:    []byte(secret),
		apiKeys:   apiKeys,
		jwtParser: jwtParser,
	}
}

func (a *Authenticator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("unexpected signing method"))
	}
	return a.secret, nil
}

func (a *Authenticator) AuthenticateJWT(tokenString string) (*Identity, error) {
	claims := Claims{}

	_, err := a.jwtParser.ParseWithClaims(tokenString, &claims, a.keyFunc)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("invalid subject claim"))
	}

	return &Identity{
		UserId:   subject,
		UserName: displayName(claims, subject),
	}, nil
}

func (a *Authenticator) AuthenticateAPIKey(apiKey string) (*Identity, error) {
	for _, key := range a.apiKeys {
		if key == "" {
			continue
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			return &Identity{
				UserId:   "api",
				UserName: "api",
				IsAdmin:  true,
			}, nil
		}
	}

	return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("invalid api key"))
}

// AuthenticateRequest resolves the caller of r from a bearer token in the
// Authorization header or, for WebSocket handshakes, the token query
// parameter. API keys are tried before JWTs.
func (a *Authenticator) AuthenticateRequest(r *http.Request) (*Identity, error) {
	token := BearerToken(r)
	if token == "" {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("missing credentials"))
	}

	if identity, err := a.AuthenticateAPIKey(token); err == nil {
		return identity, nil
	}

	return a.AuthenticateJWT(token)
}

func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}

	return strings.TrimPrefix(r.URL.Query().Get("token"), "Bearer ")
}

func displayName(claims Claims, subject string) string {
	if claims.Name != "" {
		return claims.Name
	}

	if claims.Email != "" {
		return claims.Email
	}

	return subject
}

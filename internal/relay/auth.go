package relay

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the token's type claim.
const (
	RoleUser    = "user"
	RoleCourier = "driver"
)

var (
	// ErrMissingToken is returned when a connection carries no token.
	ErrMissingToken = errors.New("authentication required")

	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the token payload the relay cares about. Subject is the
// user or courier ID; Type distinguishes the two client apps.
type Claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Identity is an authenticated relay connection's principal.
type Identity struct {
	ID   string
	Role string
}

// Authenticator verifies HMAC-signed access tokens at connect time.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authenticate parses and verifies a token and returns the identity it
// carries. A missing type claim defaults to the user role.
func (a *Authenticator) Authenticate(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	role := claims.Type
	if role == "" {
		role = RoleUser
	}
	return &Identity{ID: claims.Subject, Role: role}, nil
}

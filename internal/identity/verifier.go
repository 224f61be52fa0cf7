package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"collab-service/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Resolver resolves a bearer token to the user it identifies.
type Resolver interface {
	ResolveToken(ctx context.Context, token string) (models.User, error)
}

type claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC-signed tokens issued by the identity provider.
// Token issuance lives outside this service; the shared secret is the only
// coupling.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// ResolveToken parses and validates the token and returns the claimed user.
// Expired, malformed, or badly signed tokens all map to ErrInvalidToken.
func (v *Verifier) ResolveToken(_ context.Context, token string) (models.User, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return models.User{}, ErrInvalidToken
	}

	userID, err := strconv.Atoi(c.Subject)
	if err != nil || userID == 0 {
		return models.User{}, ErrInvalidToken
	}

	role := c.Role
	switch role {
	case models.RoleStudent, models.RoleFaculty, models.RoleAdmin:
	default:
		role = models.RoleStudent
	}

	return models.User{
		ID:    userID,
		Name:  c.Name,
		Email: c.Email,
		Role:  role,
	}, nil
}

var _ Resolver = (*Verifier)(nil)

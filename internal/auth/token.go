// Package auth issues and verifies the identity tokens that scope every
// request to one owner.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"

	"kas/internal/core"
)

// ErrNoToken is returned when a request carries no token at all.
var ErrNoToken = errors.New("no token provided")

// Claims carries the owner id in the "id" claim.
type Claims struct {
	ID string `json:"id"`
	jwt.StandardClaims
}

// Verifier turns a token into an owner id.
type Verifier interface {
	Verify(token string) (string, error)
}

// JWT signs and verifies HS256 tokens with a shared secret.
type JWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWT(secret string, ttl time.Duration) *JWT {
	return &JWT{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for ownerID.
func (j *JWT) Issue(ownerID string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("owner id is required")
	}
	now := j.now()
	claims := &Claims{
		ID: ownerID,
		StandardClaims: jwt.StandardClaims{
			IssuedAt: now.Unix(),
		},
	}
	if j.ttl > 0 {
		claims.ExpiresAt = now.Add(j.ttl).Unix()
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err := t.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify checks the signature and expiry and returns the owner id.
func (j *JWT) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrNoToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.ID == "" {
		return "", fmt.Errorf("%w: token has no owner", core.ErrUnauthenticated)
	}
	return claims.ID, nil
}

type ownerKey struct{}

// WithOwner returns a copy of ctx carrying ownerID.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFromContext returns the authenticated owner id, or "".
func OwnerFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ownerKey{}).(string)
	return id
}

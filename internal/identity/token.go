package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"campus-chat/internal/chat"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("identity: invalid token")

// Identity is the caller as vouched for by the identity provider. Both fields are normalized.
type Identity struct {
	UserID   string
	TenantID string
}

type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Tokens signs and validates HS256 tokens. The subject is the user id.
type Tokens struct {
	secret []byte
	issuer string
}

func NewTokens(secret, issuer string) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer}
}

// Issue mints a token. Production tokens come from the campus identity provider; this exists
// for the load driver and tests.
func (t *Tokens) Issue(userID, tenantID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(t.secret)
}

func (t *Tokens) Validate(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := Identity{
		UserID:   chat.NormalizeID(claims.Subject),
		TenantID: strings.TrimSpace(claims.TenantID),
	}
	if id.UserID == "" || id.TenantID == "" {
		return Identity{}, fmt.Errorf("%w: subject and tenant are required", ErrInvalidToken)
	}
	return id, nil
}

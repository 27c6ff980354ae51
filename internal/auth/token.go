package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/acardoso/go-pos-store/internal/models"
)

// StaffClaims are the session claims issued on a successful login.
type StaffClaims struct {
	StaffID int64  `json:"staff_id"`
	Login   string `json:"login"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the session may perform destructive operations.
func (c *StaffClaims) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// TokenIssuer signs and validates staff session tokens with an HMAC secret
// injected from config.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (i *TokenIssuer) Issue(staff *models.Staff) (string, error) {
	now := time.Now()
	claims := &StaffClaims{
		StaffID: staff.ID,
		Login:   staff.Login,
		Role:    staff.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			Subject:   staff.Login,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

func (i *TokenIssuer) Validate(tokenString string) (*StaffClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StaffClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*StaffClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}

	return claims, nil
}

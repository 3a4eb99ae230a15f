package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// UserClaims represents the JWT claims for an authenticated caller. The
// subject is the user ID; TenantID is nil only for SUPERADMIN.
type UserClaims struct {
	Email    string  `json:"email"`
	Role     string  `json:"role"`
	TenantID *string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim
func (c *UserClaims) UserID() string {
	return c.Subject
}

var config *JWTConfig

// Initialize sets the package-level JWT configuration
func Initialize(cfg *JWTConfig) {
	config = cfg
}

// GenerateToken creates a JWT token carrying the user's identity, role and tenant
func GenerateToken(userID, email, role string, tenantID *string) (string, error) {
	if config == nil {
		return "", errors.New("JWT configuration not provided")
	}

	claims := UserClaims{
		Email:    email,
		Role:     role,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(config.ExpirationHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "geomun",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.SigningKey))
}

// ValidateToken validates and parses the JWT token
func ValidateToken(tokenString string) (*UserClaims, error) {
	if config == nil {
		return nil, errors.New("JWT configuration not provided")
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&UserClaims{},
		func(token *jwt.Token) (interface{}, error) {
			// Validate the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(config.SigningKey), nil
		},
	)

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
